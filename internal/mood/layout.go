package mood

import (
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/sentiment"
)

// Publisher receives mood change events for streaming to the client.
type Publisher interface {
	Publish(message realtime.Message)
}

// Layout is the single owner of a session's mood cell.
type Layout struct {
	sessionKey string
	cell       *Cell
}

func newLayout(sessionKey string, publisher Publisher, clock func() time.Time) *Layout {
	layout := &Layout{sessionKey: sessionKey}
	layout.cell = newCell(func(value Mood) {
		if publisher == nil {
			return
		}
		publisher.Publish(realtime.Message{
			Topic:     sessionKey,
			EventType: realtime.EventMoodChanged,
			Payload:   value,
			Timestamp: clock().UTC(),
		})
	})
	return layout
}

// SessionKey identifies the session owning the layout.
func (l *Layout) SessionKey() string {
	return l.sessionKey
}

// Reader exposes the current mood without write access.
func (l *Layout) Reader() Reader {
	return l.cell
}

// Current returns the mood currently stored in the cell.
func (l *Layout) Current() Mood {
	return l.cell.Current()
}

// Set overwrites the mood. Used when an entry has just been created.
func (l *Layout) Set(value Mood) {
	l.cell.set(value)
}

// MountListView resets the mood when the entry list is shown.
func (l *Layout) MountListView() {
	l.cell.set(None())
}

// MountComposeView resets the mood when the compose form is shown.
func (l *Layout) MountComposeView() {
	l.cell.set(None())
}

// MountEntryView sets the mood to the viewed entry's sentiment. The returned
// unmount function resets the mood to null unless another view has written since.
func (l *Layout) MountEntryView(value sentiment.Sentiment) (unmount func()) {
	generation := l.cell.set(Of(value))
	var once sync.Once
	return func() {
		once.Do(func() {
			l.cell.resetIf(generation)
		})
	}
}
