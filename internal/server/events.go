package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/mood"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/realtime"
	"github.com/gin-gonic/gin"
)

type heartbeatPayload struct {
	Timestamp string `json:"timestamp"`
}

// handleEvents streams mood changes for the session and notices for the user
// as server-sent events. The current mood is sent first.
func (h *httpHandler) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString(userIDContextKey)
	sessionKey := c.GetString(sessionKeyContextKey)

	moodStream, unsubscribeMood := h.events.Subscribe(ctx, sessionKey)
	defer unsubscribeMood()
	var noticeStream <-chan realtime.Message
	if userID != sessionKey {
		stream, unsubscribeNotices := h.events.Subscribe(ctx, userID)
		defer unsubscribeNotices()
		noticeStream = stream
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.writeEvent(c, realtime.EventMoodChanged, moodPayload{Mood: h.moods.Mount(sessionKey).Current()})

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message := <-moodStream:
			h.writeMessage(c, message)
		case message := <-noticeStream:
			h.writeMessage(c, message)
		case tick := <-ticker.C:
			h.writeEvent(c, realtime.EventHeartbeat, heartbeatPayload{Timestamp: tick.UTC().Format(time.RFC3339)})
		}
	}
}

func (h *httpHandler) writeMessage(c *gin.Context, message realtime.Message) {
	if value, ok := message.Payload.(mood.Mood); ok {
		h.writeEvent(c, message.EventType, moodPayload{Mood: value})
		return
	}
	h.writeEvent(c, message.EventType, message.Payload)
}

func (h *httpHandler) writeEvent(c *gin.Context, event string, payload any) {
	c.SSEvent(event, payload)
	c.Writer.Flush()
}
