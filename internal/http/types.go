package http

import "github.com/fyrsmithlabs/assessd/internal/recommend"

// RecommendRequest is the body of POST /api/v1/recommend. Query is a pointer
// so a missing field can be told apart from an empty one.
type RecommendRequest struct {
	Query *string `json:"query" form:"query"`
}

// RecommendResponse carries either parsed recommendations or, when none
// could be extracted, the model's raw answer.
type RecommendResponse struct {
	Recommendations []recommend.Recommendation `json:"recommendations,omitempty"`
	Answer          string                     `json:"answer,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	// IndexReady is false until the first query or warmup opens the index.
	IndexReady bool `json:"index_ready"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
