package recommend

import "strings"

// MaxRecommendations caps the parsed list.
const MaxRecommendations = 10

// Recommendation is one assessment extracted from a model answer.
type Recommendation struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ParseRecommendations extracts "name - url" lines from answer. A line is
// considered when it mentions "http" and contains a hyphen; it is split on
// the first hyphen and kept when both halves are non-empty after trimming.
// Anything else is ignored, so the result may be empty.
func ParseRecommendations(answer string) []Recommendation {
	var out []Recommendation
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "http") {
			continue
		}
		name, url, ok := strings.Cut(line, "-")
		if !ok {
			continue
		}
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if name == "" || url == "" {
			continue
		}
		out = append(out, Recommendation{Name: name, URL: url})
		if len(out) == MaxRecommendations {
			break
		}
	}
	return out
}
