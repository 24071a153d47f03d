package recommend

import (
	"strings"

	"github.com/fyrsmithlabs/assessd/internal/vectorstore"
)

// PromptTemplate is filled with the retrieved context and the user's query.
const PromptTemplate = `Given the job description or query below, recommend the 6-10 most relevant assessments from the catalog. Include the assessment name and the URL.

Context:
{context}

Query:
{question}

Answer:
`

// contextSeparator joins retrieved segments, one blank line apart.
const contextSeparator = "\n\n"

// BuildPrompt fills PromptTemplate. Placeholders inside the context or the
// question are not expanded again.
func BuildPrompt(results []vectorstore.Result, question string) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Content)
	}
	r := strings.NewReplacer(
		"{context}", strings.Join(parts, contextSeparator),
		"{question}", question,
	)
	return r.Replace(PromptTemplate)
}
