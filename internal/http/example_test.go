package http_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	httpserver "github.com/fyrsmithlabs/assessd/internal/http"
	"github.com/fyrsmithlabs/assessd/internal/recommend"
	"go.uber.org/zap"
)

type staticRecommender struct{}

func (staticRecommender) Recommend(context.Context, string) (*recommend.Response, error) {
	answer := "OPQ32r - https://example.com/opq"
	return &recommend.Response{Answer: answer, Recommendations: recommend.ParseRecommendations(answer)}, nil
}

func (staticRecommender) Ready() bool { return true }

// ExampleServer sends one recommendation request through the server's handler.
func ExampleServer() {
	server, err := httpserver.NewServer(staticRecommender{}, zap.NewNop(), nil)
	if err != nil {
		panic(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommend", strings.NewReader(`{"query":"personality test for managers"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	fmt.Println(rec.Code)
	fmt.Print(rec.Body.String())
	// Output:
	// 200
	// {"recommendations":[{"name":"OPQ32r","url":"https://example.com/opq"}]}
}
