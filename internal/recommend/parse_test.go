package recommend

import (
	"fmt"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/assessd/internal/vectorstore"
	"github.com/stretchr/testify/assert"
)

func TestParseRecommendations(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   []Recommendation
	}{
		{
			name: "numbered list",
			answer: "Here are my picks:\n" +
				"1. Verify Numerical Reasoning - https://example.com/verify\n" +
				"2. OPQ32r - https://example.com/opq\n",
			want: []Recommendation{
				{Name: "1. Verify Numerical Reasoning", URL: "https://example.com/verify"},
				{Name: "2. OPQ32r", URL: "https://example.com/opq"},
			},
		},
		{
			name:   "prose without links",
			answer: "No assessment in the catalog matches this role.",
			want:   nil,
		},
		{
			name:   "link without hyphen",
			answer: "See https://example.com/catalog",
			want:   nil,
		},
		{
			name:   "empty name",
			answer: "- https://example.com/x",
			want:   nil,
		},
		{
			name:   "hyphenated name splits on the first hyphen",
			answer: "Entry-Level Sales - https://example.com/sales",
			want:   []Recommendation{{Name: "Entry", URL: "Level Sales - https://example.com/sales"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRecommendations(tt.answer))
		})
	}
}

func TestParseRecommendations_Cap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxRecommendations+5; i++ {
		fmt.Fprintf(&b, "Test %d - https://example.com/%d\n", i, i)
	}
	got := ParseRecommendations(b.String())
	assert.Len(t, got, MaxRecommendations)
	assert.Equal(t, "Test 0", got[0].Name)
}

func TestBuildPrompt(t *testing.T) {
	results := []vectorstore.Result{
		{Content: "Java 8 | https://example.com/java"},
		{Content: "uses {question} literally"},
	}
	got := BuildPrompt(results, "hire a {context} engineer")

	assert.Contains(t, got, "Context:\nJava 8 | https://example.com/java\n\nuses {question} literally\n")
	assert.Contains(t, got, "Query:\nhire a {context} engineer\n")
	assert.True(t, strings.HasSuffix(got, "Answer:\n"))
	assert.Equal(t, 1, strings.Count(got, "Java 8"))
}

func TestBuildPrompt_NoResults(t *testing.T) {
	got := BuildPrompt(nil, "q")
	assert.Contains(t, got, "Context:\n\n\nQuery:\nq\n")
}
