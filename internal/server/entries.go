package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/mood"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	confirmDeleteHeader = "X-Confirm-Delete"
	listLocation        = "/entries"
)

type entryPayload struct {
	EntryID     string `json:"entry_id"`
	Text        string `json:"text"`
	Sentiment   string `json:"sentiment"`
	Affirmation string `json:"affirmation"`
	CreatedAt   string `json:"created_at"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

type listResponsePayload struct {
	Entries []entryPayload `json:"entries"`
}

type composeResponsePayload struct {
	MinLength int    `json:"min_length"`
	State     string `json:"state"`
}

type createRequestPayload struct {
	Text string `json:"text"`
}

type createResponsePayload struct {
	Entry               entryPayload `json:"entry"`
	Location            string       `json:"location"`
	AffirmationDegraded bool         `json:"affirmation_degraded"`
}

type moodPayload struct {
	Mood mood.Mood `json:"mood"`
}

type errorCoder interface {
	Code() string
}

func newEntryPayload(entry entries.Entry) entryPayload {
	return entryPayload{
		EntryID:     entry.EntryID,
		Text:        entry.Text,
		Sentiment:   entry.Mood().String(),
		Affirmation: entry.Affirmation,
		CreatedAt:   entry.Timestamp().Format(time.RFC3339Nano),
		CreatedAtMs: entry.CreatedAtMs,
	}
}

// handleListEntries mounts the list view: the mood resets and every entry is returned newest first.
func (h *httpHandler) handleListEntries(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	sessionKey := c.GetString(sessionKeyContextKey)

	h.moods.LeaveEntry(sessionKey)
	h.moods.Mount(sessionKey).MountListView()

	owner, err := entries.NewUserID(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	list, err := h.entries.ListRecent(c.Request.Context(), owner, 0)
	if err != nil {
		h.logger.Error("failed to list entries", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("entries_list_failed", err))
		return
	}

	response := listResponsePayload{Entries: make([]entryPayload, 0, len(list))}
	for _, entry := range list {
		response.Entries = append(response.Entries, newEntryPayload(entry))
	}
	c.JSON(http.StatusOK, response)
}

// handleCompose mounts the compose view.
func (h *httpHandler) handleCompose(c *gin.Context) {
	sessionKey := c.GetString(sessionKeyContextKey)
	h.moods.LeaveEntry(sessionKey)
	h.moods.Mount(sessionKey).MountComposeView()

	c.JSON(http.StatusOK, composeResponsePayload{
		MinLength: entries.MinTextLength,
		State:     string(h.journal.State(c.GetString(userIDContextKey))),
	})
}

func (h *httpHandler) handleCreateEntry(c *gin.Context) {
	var request createRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.journal.Submit(c.Request.Context(), journal.Submission{
		UserID:     c.GetString(userIDContextKey),
		SessionKey: c.GetString(sessionKeyContextKey),
		Text:       request.Text,
	})
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	c.Header("Location", result.Location)
	c.JSON(http.StatusCreated, createResponsePayload{
		Entry:               newEntryPayload(result.Entry),
		Location:            result.Location,
		AffirmationDegraded: result.AffirmationDegraded,
	})
}

func (h *httpHandler) writeSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, journal.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "invalid_entry_text",
			"message":    "Entry must be at least " + strconv.Itoa(entries.MinTextLength) + " characters.",
			"min_length": entries.MinTextLength,
		})
	case errors.Is(err, journal.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, journal.ErrSubmissionInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "submission_in_progress"})
	case errors.Is(err, journal.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorBody("store_unavailable", err))
	case errors.Is(err, journal.ErrPersistenceFailed):
		c.JSON(http.StatusServiceUnavailable, errorBody("entry_save_failed", err))
	default:
		h.logger.Error("unexpected submission failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("internal_error", err))
	}
}

// handleGetEntry mounts the entry view: the mood follows the entry's sentiment
// until the view is left.
func (h *httpHandler) handleGetEntry(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	owner, err := entries.NewUserID(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	entryID, err := entries.NewEntryID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry_not_found"})
		return
	}

	entry, err := h.entries.Get(c.Request.Context(), owner, entryID)
	if errors.Is(err, entries.ErrEntryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to fetch entry",
			zap.String("user_id", userID),
			zap.String("entry_id", entryID.String()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("entry_fetch_failed", err))
		return
	}

	h.moods.ViewEntry(c.GetString(sessionKeyContextKey), func(layout *mood.Layout) func() {
		return layout.MountEntryView(entry.Mood())
	})
	c.JSON(http.StatusOK, newEntryPayload(entry))
}

// handleLeaveEntry unmounts the entry view.
func (h *httpHandler) handleLeaveEntry(c *gin.Context) {
	h.moods.LeaveEntry(c.GetString(sessionKeyContextKey))
	c.Status(http.StatusNoContent)
}

// handleDeleteEntry issues the deletion and answers before it completes; the
// client navigates back to the list right away.
func (h *httpHandler) handleDeleteEntry(c *gin.Context) {
	confirmed := strings.EqualFold(strings.TrimSpace(c.GetHeader(confirmDeleteHeader)), "true") ||
		strings.EqualFold(strings.TrimSpace(c.Query("confirm")), "true")

	err := h.journal.DeleteEntry(c.GetString(userIDContextKey), c.Param("id"), confirmed)
	switch {
	case err == nil:
	case errors.Is(err, journal.ErrDeleteNotConfirmed):
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": "confirmation_required"})
		return
	case errors.Is(err, journal.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	case errors.Is(err, entries.ErrInvalidEntryID):
		c.JSON(http.StatusNotFound, gin.H{"error": "entry_not_found"})
		return
	default:
		h.logger.Error("failed to schedule deletion", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("internal_error", err))
		return
	}

	h.moods.LeaveEntry(c.GetString(sessionKeyContextKey))
	c.Header("Location", listLocation)
	c.JSON(http.StatusAccepted, gin.H{"location": listLocation})
}

func errorBody(code string, err error) gin.H {
	body := gin.H{"error": code}
	var coder errorCoder
	if errors.As(err, &coder) {
		body["code"] = coder.Code()
	}
	return body
}
