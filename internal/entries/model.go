package entries

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/sentiment"
)

// MinTextLength is the minimum number of characters an entry must contain.
const MinTextLength = 10

const maxIdentifierLength = 190

var (
	// ErrInvalidEntryID indicates that an entry identifier is empty or exceeds storage bounds.
	ErrInvalidEntryID = errors.New("entries: invalid entry id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("entries: invalid user id")
	// ErrTextTooShort indicates entry text below MinTextLength characters.
	ErrTextTooShort = errors.New("entries: text too short")
	// ErrInvalidSentiment indicates an entry without a known sentiment.
	ErrInvalidSentiment = errors.New("entries: invalid sentiment")
	// ErrEntryNotFound indicates no entry exists for the user and id.
	ErrEntryNotFound = errors.New("entries: entry not found")
)

// EntryID represents a validated entry identifier.
type EntryID string

// NewEntryID validates raw input and returns an EntryID.
func NewEntryID(rawInput string) (EntryID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEntryID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidEntryID, maxIdentifierLength)
	}
	return EntryID(trimmed), nil
}

// String returns the underlying string identifier.
func (id EntryID) String() string {
	return string(id)
}

// UserID represents a validated owner identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// ValidateText checks the minimum length rule on the trimmed text.
func ValidateText(text string) error {
	length := utf8.RuneCountInString(strings.TrimSpace(text))
	if length < MinTextLength {
		return fmt.Errorf("%w: %d < %d characters", ErrTextTooShort, length, MinTextLength)
	}
	return nil
}

// Entry is one persisted journal submission. Entries are never updated.
type Entry struct {
	UserID      string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_entries_user_created,priority:1"`
	EntryID     string `gorm:"column:entry_id;primaryKey;size:190;not null;index:idx_entries_user_created,priority:3"`
	Text        string `gorm:"column:text;type:text;not null"`
	Sentiment   string `gorm:"column:sentiment;size:16;not null"`
	Affirmation string `gorm:"column:affirmation;type:text;not null;default:''"`
	CreatedAtMs int64  `gorm:"column:created_at_ms;not null;index:idx_entries_user_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "diary_entries"
}

// Timestamp returns the server-assigned creation time.
func (e Entry) Timestamp() time.Time {
	return time.UnixMilli(e.CreatedAtMs).UTC()
}

// Mood returns the stored sentiment, or neutral for an unrecognized value.
func (e Entry) Mood() sentiment.Sentiment {
	value, err := sentiment.Parse(e.Sentiment)
	if err != nil {
		return sentiment.Neutral
	}
	return value
}

// NewEntry describes the input for a single insert.
type NewEntry struct {
	UserID      UserID
	Text        string
	Sentiment   sentiment.Sentiment
	Affirmation string
}

func (n NewEntry) validate() error {
	if _, err := NewUserID(n.UserID.String()); err != nil {
		return err
	}
	if err := ValidateText(n.Text); err != nil {
		return err
	}
	if !n.Sentiment.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSentiment, n.Sentiment)
	}
	return nil
}
