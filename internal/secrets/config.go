package secrets

import (
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/assessd/internal/config"
)

// DefaultRedaction replaces every match unless Config.Redaction is set.
const DefaultRedaction = "[REDACTED]"

// Config configures a Scrubber.
type Config struct {
	Enabled bool `koanf:"enabled"`

	// Rules are applied in order; overlapping matches are merged.
	Rules []Rule `koanf:"rules"`

	// Redaction replaces each merged match.
	Redaction string `koanf:"redaction"`

	// AllowList holds patterns for matches that must be left alone.
	AllowList []string `koanf:"allow_list"`
}

// Rule is a single detection pattern.
type Rule struct {
	ID          string `koanf:"id"`
	Description string `koanf:"description"`
	Pattern     string `koanf:"pattern"`
	// Keywords gate the rule: when set, at least one must occur
	// (case-insensitively) somewhere in the text.
	Keywords []string `koanf:"keywords"`
	Severity string   `koanf:"severity"`
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig enables the built-in rule set.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Rules:     DefaultRules(),
		Redaction: DefaultRedaction,
	}
}

// FromSettings maps the scrub section of the service config.
func FromSettings(s config.ScrubConfig) Config {
	cfg := DefaultConfig()
	cfg.Enabled = s.Enabled
	return cfg
}

func (c Config) compile() ([]*compiledRule, []*regexp.Regexp, error) {
	rules := make([]*compiledRule, 0, len(c.Rules))
	for i, r := range c.Rules {
		if r.ID == "" {
			return nil, nil, fmt.Errorf("rule %d: id is required", i)
		}
		if r.Pattern == "" {
			return nil, nil, fmt.Errorf("rule %s: pattern is required", r.ID)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
		}
		cr := &compiledRule{Rule: r, pattern: re}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		rules = append(rules, cr)
	}

	allow := make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, p := range c.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		allow = append(allow, re)
	}
	return rules, allow, nil
}
