package secrets

import (
	"regexp"
	"sort"
	"strings"
)

// Scrubber redacts matches of its rules. It is immutable after New and
// safe for concurrent use.
type Scrubber struct {
	enabled   bool
	redaction string
	rules     []*compiledRule
	allow     []*regexp.Regexp
}

// New compiles cfg into a Scrubber.
func New(cfg Config) (*Scrubber, error) {
	if cfg.Redaction == "" {
		cfg.Redaction = DefaultRedaction
	}
	rules, allow, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	return &Scrubber{
		enabled:   cfg.Enabled,
		redaction: cfg.Redaction,
		rules:     rules,
		allow:     allow,
	}, nil
}

// Enabled reports whether Scrub changes anything.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.enabled
}

type span struct{ start, end int }

// Scrub returns text with every rule match replaced. A nil or disabled
// Scrubber returns text unchanged.
func (s *Scrubber) Scrub(text string) *Result {
	res := &Result{Scrubbed: text, ByRule: map[string]int{}}
	if !s.Enabled() || text == "" {
		return res
	}

	var spans []span
	for _, r := range s.rules {
		if !r.applies(text) {
			continue
		}
		for _, m := range r.pattern.FindAllStringIndex(text, -1) {
			if s.allowed(text[m[0]:m[1]]) {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				RuleID:   r.ID,
				Severity: r.Severity,
				Start:    m[0],
				End:      m[1],
			})
			res.ByRule[r.ID]++
			spans = append(spans, span{m[0], m[1]})
		}
	}
	if len(spans) == 0 {
		return res
	}

	var b strings.Builder
	last := 0
	for _, sp := range merge(spans) {
		b.WriteString(text[last:sp.start])
		b.WriteString(s.redaction)
		last = sp.end
	}
	b.WriteString(text[last:])
	res.Scrubbed = b.String()
	return res
}

// String is a convenience for callers that only need the redacted text.
func (s *Scrubber) String(text string) string {
	return s.Scrub(text).Scrubbed
}

func (r *compiledRule) applies(text string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(text) {
			return true
		}
	}
	return false
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// merge sorts spans and joins overlapping or touching ones.
func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &out[len(out)-1]
		if cur.start <= last.end {
			if cur.end > last.end {
				last.end = cur.end
			}
			continue
		}
		out = append(out, cur)
	}
	return out
}
