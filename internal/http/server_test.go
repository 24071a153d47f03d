package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/assessd/internal/recommend"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubRecommender returns a canned response or error and records queries.
type stubRecommender struct {
	mu      sync.Mutex
	resp    *recommend.Response
	err     error
	ready   bool
	queries []string
}

func (s *stubRecommender) Recommend(_ context.Context, query string) (*recommend.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubRecommender) Ready() bool { return s.ready }

func setupTestServer(t *testing.T, rec *stubRecommender) *Server {
	t.Helper()
	server, err := NewServer(rec, zap.NewNop(), &Config{Host: "localhost", Port: 0})
	require.NoError(t, err)
	return server
}

func doRequest(server *Server, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&stubRecommender{}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", server.config.Host)
		assert.Equal(t, 5000, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&stubRecommender{}, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when recommender is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "recommender cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	stub := &stubRecommender{}
	server := setupTestServer(t, stub)

	rec := doRequest(server, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","index_ready":false}`, rec.Body.String())

	stub.ready = true
	rec = doRequest(server, http.MethodGet, "/health", "", "")
	assert.JSONEq(t, `{"status":"ok","index_ready":true}`, rec.Body.String())
}

func TestHandleRecommend(t *testing.T) {
	tests := []struct {
		name       string
		stub       *stubRecommender
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name: "structured recommendations",
			stub: &stubRecommender{resp: &recommend.Response{
				Answer: "Verify Numerical - https://x/1",
				Recommendations: []recommend.Recommendation{
					{Name: "Verify Numerical", URL: "https://x/1"},
				},
			}},
			body:       `{"query":"numerical test for analysts"}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"recommendations":[{"name":"Verify Numerical","url":"https://x/1"}]}`,
		},
		{
			name:       "raw answer fallback",
			stub:       &stubRecommender{resp: &recommend.Response{Answer: "  Nothing in the catalog fits.  "}},
			body:       `{"query":"astronaut"}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"answer":"Nothing in the catalog fits."}`,
		},
		{
			name:       "missing query",
			stub:       &stubRecommender{},
			body:       `{"text":"hi"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Missing 'query' in request"}`,
		},
		{
			name:       "invalid json",
			stub:       &stubRecommender{},
			body:       `{"query":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid request body"}`,
		},
		{
			name:       "empty query",
			stub:       &stubRecommender{err: &recommend.Error{Kind: recommend.KindInvalidQuery, Op: "validate", Err: errors.New("query is empty")}},
			body:       `{"query":"  "}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"validate: invalid_query: query is empty","kind":"invalid_query"}`,
		},
		{
			name:       "generation failure",
			stub:       &stubRecommender{err: &recommend.Error{Kind: recommend.KindGeneration, Op: "generate", Err: errors.New("401 unauthorized")}},
			body:       `{"query":"sales"}`,
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"generate: generation_failure: 401 unauthorized","kind":"generation_failure"}`,
		},
		{
			name:       "context timeout",
			stub:       &stubRecommender{err: fmt.Errorf("waiting: %w", context.DeadlineExceeded)},
			body:       `{"query":"sales"}`,
			wantStatus: http.StatusGatewayTimeout,
			wantBody:   `{"error":"waiting: context deadline exceeded"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(t, tt.stub)
			rec := doRequest(server, http.MethodPost, "/api/v1/recommend", echo.MIMEApplicationJSON, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestHandleRecommend_LegacyPathAndServerKeepsServing(t *testing.T) {
	stub := &stubRecommender{err: &recommend.Error{Kind: recommend.KindIndexUnavailable, Op: "build", Err: errors.New("disk full")}}
	server := setupTestServer(t, stub)

	rec := doRequest(server, http.MethodPost, "/recommend", echo.MIMEApplicationJSON, `{"query":"java"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	stub.err = nil
	stub.resp = &recommend.Response{Answer: "try again later"}
	rec = doRequest(server, http.MethodPost, "/recommend", echo.MIMEApplicationJSON, `{"query":"java"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"java", "java"}, stub.queries)
}

func TestMetricsEndpoint(t *testing.T) {
	stub := &stubRecommender{resp: &recommend.Response{
		Recommendations: []recommend.Recommendation{{Name: "A", URL: "http://a"}},
	}}
	server := setupTestServer(t, stub)

	doRequest(server, http.MethodPost, "/api/v1/recommend", echo.MIMEApplicationJSON, `{"query":"x"}`)
	doRequest(server, http.MethodGet, "/health", "", "")

	rec := doRequest(server, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `assessd_http_requests_total{method="POST",route="/api/v1/recommend",status="200"} 1`)
	assert.Contains(t, text, `assessd_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, text, "assessd_recommendations_returned_count 1")
	assert.Contains(t, text, "go_goroutines")
}

func TestServerLifecycle(t *testing.T) {
	server := setupTestServer(t, &stubRecommender{})

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-errChan:
		assert.True(t, err == nil || errors.Is(err, http.ErrServerClosed))
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		server := setupTestServer(t, &stubRecommender{})
		rec := doRequest(server, http.MethodGet, "/health", "", "")
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server := setupTestServer(t, &stubRecommender{})
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		var rec *httptest.ResponseRecorder
		assert.NotPanics(t, func() {
			rec = doRequest(server, http.MethodGet, "/panic", "", "")
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("rejects oversized bodies", func(t *testing.T) {
		server := setupTestServer(t, &stubRecommender{resp: &recommend.Response{}})
		body := `{"query":"` + strings.Repeat("a", 70*1024) + `"}`
		rec := doRequest(server, http.MethodPost, "/api/v1/recommend", echo.MIMEApplicationJSON, body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestRecommendResponse_JSON(t *testing.T) {
	b, err := json.Marshal(RecommendResponse{Answer: "text"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"text"}`, string(b))
}
