// Package llm sends prompts to a hosted chat model and returns its text.
//
// Cohere is reached through its OpenAI-compatible endpoint so one client
// covers both vendors. Calls are rate limited and never retried: a failed
// generation is logged and returned to the caller.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/assessd/internal/config"
	"github.com/fyrsmithlabs/assessd/internal/logging"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/fyrsmithlabs/assessd/internal/llm"

// Default settings.
const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 256
	DefaultTimeout     = 60 * time.Second

	defaultCohereBaseURL = "https://api.cohere.ai/compatibility/v1"
	defaultCohereModel   = "command-a-03-2025"
	defaultOpenAIModel   = "gpt-4o-mini"
)

var (
	// ErrMissingCredential indicates no API key was configured.
	ErrMissingCredential = errors.New("llm API key not configured")

	// ErrGenerationFailed wraps any failure from the model call.
	ErrGenerationFailed = errors.New("llm generation failed")

	// ErrEmptyPrompt indicates Generate was called with a blank prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")
)

// Config holds the LLM client settings.
type Config struct {
	// Provider is "cohere" or "openai".
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
}

// FromSettings maps the llm section of the service config.
func FromSettings(c config.LLMConfig) Config {
	return Config{
		Provider:    c.Provider,
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey.Value(),
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout.Duration(),
		RateLimit:   c.RateLimit,
		Burst:       c.Burst,
	}
}

// ApplyDefaults fills vendor defaults for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "cohere"
	}
	if c.Model == "" {
		if c.Provider == "openai" {
			c.Model = defaultOpenAIModel
		} else {
			c.Model = defaultCohereModel
		}
	}
	if c.BaseURL == "" && c.Provider == "cohere" {
		c.BaseURL = defaultCohereBaseURL
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
}

// Client generates completions. Safe for concurrent use.
type Client struct {
	model   llms.Model
	config  Config
	limiter *rate.Limiter
	logger  *logging.Logger

	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// New creates a client for the configured vendor. It fails with
// ErrMissingCredential when no API key is set and does not contact the API.
func New(cfg Config, logger *logging.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: set llm.api_key or the %s credential", ErrMissingCredential, strings.ToUpper(cfg.Provider)+"_API_KEY")
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}
	return NewWithModel(model, cfg, logger), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, cfg Config, logger *logging.Logger) *Client {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = logging.Wrap(zap.NewNop())
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	c := &Client{
		model:   model,
		config:  cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger.Named("llm"),
	}

	meter := otel.Meter(instrumentationName)
	var merr error
	c.duration, merr = meter.Float64Histogram(
		"assessd.llm.generation_duration_seconds",
		metric.WithDescription("Duration of LLM generation calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.25, 0.5, 1, 2, 5, 10, 20, 30, 60),
	)
	if merr != nil {
		c.logger.Warn(context.Background(), "failed to create duration histogram", zap.Error(merr))
	}
	c.errors, merr = meter.Int64Counter(
		"assessd.llm.errors_total",
		metric.WithDescription("LLM generation failures"),
		metric.WithUnit("{error}"),
	)
	if merr != nil {
		c.logger.Warn(context.Background(), "failed to create errors counter", zap.Error(merr))
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Generate sends prompt as a single user turn and returns the reply text.
func (c *Client) Generate(ctx context.Context, prompt string) (_ string, err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "LLM.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", c.config.Provider),
		attribute.String("llm.model", c.config.Model),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)

	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	start := time.Now()
	defer func() {
		attrs := metric.WithAttributes(attribute.String("model", c.config.Model))
		if c.duration != nil {
			c.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		if err == nil {
			return
		}
		if c.errors != nil {
			c.errors.Add(ctx, 1, attrs)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error(ctx, "llm generation failed",
			zap.String("provider", c.config.Provider),
			zap.String("model", c.config.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %w", ErrGenerationFailed, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.model.GenerateContent(callCtx,
		[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)},
		llms.WithTemperature(c.config.Temperature),
		llms.WithMaxTokens(c.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	text := resp.Choices[0].Content
	c.logger.Debug(ctx, "llm generation complete",
		zap.String("model", c.config.Model),
		zap.Int("response_chars", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}
