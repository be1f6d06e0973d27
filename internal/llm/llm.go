// Package llm abstracts the text-generation capability used by the
// translation workflow. A Generator turns a prompt into free text or a
// schema-validated value; failures carry a Kind so callers can pick the
// right retry/fallback policy.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a generation failure.
type Kind int

const (
	// KindUnavailable is a generic transient failure (timeout, connection
	// refused, 5xx). Retryable without extra wait.
	KindUnavailable Kind = iota
	// KindRateLimited means the provider rejected the call for quota
	// reasons. Retryable with escalating wait.
	KindRateLimited
	// KindSchemaInvalid means the model answered but the output did not
	// conform to the requested schema. Retryable; often fixed by a rerun.
	KindSchemaInvalid
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindSchemaInvalid:
		return "schema_invalid"
	default:
		return "unavailable"
	}
}

// Error is the failure type returned by Generator implementations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err, defaulting to KindUnavailable for
// errors that did not originate in this package.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	if isRateLimitText(err) {
		return KindRateLimited
	}
	return KindUnavailable
}

// isRateLimitText sniffs provider error messages for rate-limit markers.
// Some OpenAI-compatible servers return 500s with a quota message instead
// of a proper 429.
func isRateLimitText(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "rate_limit", "429", "too many requests", "quota"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Generator is the opaque text-generation capability.
//
// Generate returns free text. GenerateSchema asks the backend for a JSON
// document and unmarshals it into out; it either fills out completely or
// returns an error, never a partially filled value.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateSchema(ctx context.Context, prompt string, out any) error
}
