// Package mood holds the session-scoped "current sentiment" that drives visual theming.
//
// Each session has one Layout that owns a single Cell. Views mount and unmount
// through the Layout; consumers only ever receive a Reader.
package mood

import (
	"encoding/json"
	"sync"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/sentiment"
)

// Mood is either null or one sentiment. The zero value is null.
type Mood struct {
	value sentiment.Sentiment
}

// None returns the null mood.
func None() Mood {
	return Mood{}
}

// Of returns the mood for a sentiment; unknown values map to null.
func Of(value sentiment.Sentiment) Mood {
	if !value.Valid() {
		return Mood{}
	}
	return Mood{value: value}
}

// Sentiment returns the sentiment and whether the mood is set.
func (m Mood) Sentiment() (sentiment.Sentiment, bool) {
	return m.value, m.value != ""
}

// IsNull reports whether no sentiment is set.
func (m Mood) IsNull() bool {
	return m.value == ""
}

// String returns the sentiment or "null".
func (m Mood) String() string {
	if m.IsNull() {
		return "null"
	}
	return m.value.String()
}

// MarshalJSON encodes the null mood as JSON null.
func (m Mood) MarshalJSON() ([]byte, error) {
	if m.IsNull() {
		return []byte("null"), nil
	}
	return json.Marshal(m.value.String())
}

// Reader is the read-only view handed to consumers.
type Reader interface {
	Current() Mood
}

// Cell is a single last-write-wins mood value.
// Writes and their notifications are serialized by publishMu so subscribers
// observe changes in write order and the last event matches the stored value.
type Cell struct {
	publishMu  sync.Mutex
	mu         sync.RWMutex
	value      Mood
	generation uint64
	onChange   func(Mood)
}

func newCell(onChange func(Mood)) *Cell {
	return &Cell{onChange: onChange}
}

// Current returns the stored mood.
func (c *Cell) Current() Mood {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// set overwrites the value, bumps the generation and notifies consumers.
func (c *Cell) set(value Mood) uint64 {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	c.mu.Lock()
	c.value = value
	c.generation++
	generation := c.generation
	c.mu.Unlock()
	if c.onChange != nil {
		c.onChange(value)
	}
	return generation
}

// resetIf clears the value only when no write happened after generation.
func (c *Cell) resetIf(generation uint64) bool {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		return false
	}
	c.value = Mood{}
	c.generation++
	c.mu.Unlock()
	if c.onChange != nil {
		c.onChange(Mood{})
	}
	return true
}
