package secrets

import "sort"

// Result is the outcome of scrubbing one text.
type Result struct {
	// Scrubbed is the text with every finding replaced.
	Scrubbed string `json:"scrubbed"`

	Findings []Finding `json:"findings,omitempty"`

	// ByRule counts findings per rule ID.
	ByRule map[string]int `json:"by_rule,omitempty"`
}

// Finding locates one match in the original text. The matched value is
// deliberately absent.
type Finding struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// RuleIDs returns the matched rule IDs in sorted order.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
