// Package sentiment classifies diary text into a coarse polarity.
package sentiment

import (
	"errors"
	"fmt"
	"strings"
)

// Sentiment is the mood classification of an entry's text.
type Sentiment string

const (
	Positive Sentiment = "positive"
	Negative Sentiment = "negative"
	Neutral  Sentiment = "neutral"
)

// ErrUnknownSentiment indicates a value outside {positive, negative, neutral}.
var ErrUnknownSentiment = errors.New("sentiment: unknown value")

// Parse validates raw input and returns the matching Sentiment.
func Parse(raw string) (Sentiment, error) {
	switch value := Sentiment(strings.ToLower(strings.TrimSpace(raw))); value {
	case Positive, Negative, Neutral:
		return value, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSentiment, raw)
	}
}

// FromScore maps a polarity score onto a Sentiment.
func FromScore(score int) Sentiment {
	switch {
	case score > 0:
		return Positive
	case score < 0:
		return Negative
	default:
		return Neutral
	}
}

// Valid reports whether the value is one of the known sentiments.
func (s Sentiment) Valid() bool {
	return s == Positive || s == Negative || s == Neutral
}

// String returns the underlying value.
func (s Sentiment) String() string {
	return string(s)
}
