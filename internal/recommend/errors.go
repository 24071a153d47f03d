package recommend

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/assessd/internal/chunker"
	"github.com/fyrsmithlabs/assessd/internal/llm"
	"github.com/fyrsmithlabs/assessd/internal/loader"
	"github.com/fyrsmithlabs/assessd/internal/vectorstore"
)

// Kind classifies a failed request.
type Kind string

// Error kinds.
const (
	KindConfiguration    Kind = "configuration"
	KindEmptyInput       Kind = "empty_input"
	KindIndexUnavailable Kind = "index_unavailable"
	KindGeneration       Kind = "generation_failure"
	KindInvalidQuery     Kind = "invalid_query"
)

// Sentinels matching each Kind under errors.Is.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrEmptyInput       = errors.New("empty input")
	ErrIndexUnavailable = errors.New("index unavailable")
	ErrGeneration       = errors.New("generation failure")
	ErrInvalidQuery     = errors.New("invalid query")
)

var kindSentinels = map[Kind]error{
	KindConfiguration:    ErrConfiguration,
	KindEmptyInput:       ErrEmptyInput,
	KindIndexUnavailable: ErrIndexUnavailable,
	KindGeneration:       ErrGeneration,
	KindInvalidQuery:     ErrInvalidQuery,
}

// Error is the single error type returned by the Orchestrator.
type Error struct {
	Kind Kind
	// Op names the pipeline stage: "load", "chunk", "build", "query",
	// "generate" or "validate".
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind, so callers can test
// errors.Is(err, recommend.ErrEmptyInput) without a type assertion.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// classify maps a stage error onto a Kind. fallback applies when no
// known sentinel matches.
func classify(op string, err error, fallback Kind) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	kind := fallback
	switch {
	case errors.Is(err, loader.ErrDirNotFound),
		errors.Is(err, loader.ErrNotDirectory),
		errors.Is(err, loader.ErrUnreadable),
		errors.Is(err, chunker.ErrInvalidConfig),
		errors.Is(err, vectorstore.ErrInvalidConfig),
		errors.Is(err, vectorstore.ErrInvalidCollectionName),
		errors.Is(err, llm.ErrMissingCredential):
		kind = KindConfiguration
	case errors.Is(err, vectorstore.ErrConnectionFailed):
		kind = KindIndexUnavailable
	case errors.Is(err, vectorstore.ErrEmptyDocuments):
		kind = KindEmptyInput
	case errors.Is(err, vectorstore.ErrEmptyQuery),
		errors.Is(err, llm.ErrEmptyPrompt):
		kind = KindInvalidQuery
	case errors.Is(err, llm.ErrGenerationFailed):
		kind = KindGeneration
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
