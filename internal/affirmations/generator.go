// Package affirmations produces short supportive messages matched to an entry's sentiment.
//
// Backends are told which affirmations the user has already seen and are asked
// not to repeat them. That constraint is best effort; callers must tolerate duplicates.
package affirmations

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/sentiment"
)

var (
	// ErrGenerationUnavailable is returned when no generation backend is configured.
	ErrGenerationUnavailable = errors.New("affirmations: generation unavailable")
	// ErrEmptyAffirmation indicates the backend answered without usable text.
	ErrEmptyAffirmation = errors.New("affirmations: empty affirmation")
	// ErrMalformedResponse indicates the backend answer did not decode.
	ErrMalformedResponse = errors.New("affirmations: malformed response")
	// ErrInvalidRequest indicates a request without a known sentiment.
	ErrInvalidRequest = errors.New("affirmations: invalid request")
)

// Request is the structured input handed to a generation backend.
type Request struct {
	Sentiment sentiment.Sentiment
	EntryText string
	// PreviousAffirmations is ordered most recent first.
	PreviousAffirmations []string
}

// Validate rejects requests that a backend cannot interpret.
func (r Request) Validate() error {
	if !r.Sentiment.Valid() {
		return ErrInvalidRequest
	}
	return nil
}

// Output is the structured answer expected from a backend.
type Output struct {
	Affirmation string `json:"affirmation" jsonschema:"required,description=The generated affirmation."`
}

// Generator produces one affirmation per request. Implementations do not cache or retry.
type Generator interface {
	Generate(ctx context.Context, request Request) (string, error)
}

// DisabledGenerator always fails with ErrGenerationUnavailable.
type DisabledGenerator struct{}

// Generate implements Generator.
func (DisabledGenerator) Generate(context.Context, Request) (string, error) {
	return "", ErrGenerationUnavailable
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, request Request) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, request Request) (string, error) {
	return f(ctx, request)
}

func normalizeAffirmation(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.Trim(trimmed, "\"“”")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return "", ErrEmptyAffirmation
	}
	return trimmed, nil
}
