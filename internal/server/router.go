package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/mood"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	userIDContextKey     = "deardiary_user_id"
	sessionKeyContextKey = "deardiary_session_key"
	profileContextKey    = "deardiary_profile"

	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingIdentityResolver = errors.New("identity resolver dependency required")
	errMissingEntryReader      = errors.New("entry reader dependency required")
	errMissingJournal          = errors.New("journal dependency required")
	errMissingMoodRegistry     = errors.New("mood registry dependency required")
	errMissingEventSource      = errors.New("event source dependency required")
)

// SessionValidator authenticates requests from the session cookie.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	ExpiredCookie() *http.Cookie
}

// IdentityResolver maps session claims onto the canonical diary owner.
type IdentityResolver interface {
	Resolve(ctx context.Context, claims auth.SessionClaims) (users.Profile, error)
}

// EntryReader serves the read side of the entry store.
type EntryReader interface {
	ListRecent(ctx context.Context, userID entries.UserID, limit int) ([]entries.Entry, error)
	Get(ctx context.Context, userID entries.UserID, entryID entries.EntryID) (entries.Entry, error)
}

// Journal runs submissions and deletions.
type Journal interface {
	Submit(ctx context.Context, submission journal.Submission) (journal.Result, error)
	State(userID string) journal.State
	DeleteEntry(userID, entryID string, confirmed bool) error
}

// EventSource streams realtime messages for a topic.
type EventSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan realtime.Message, func())
}

// Dependencies wires the HTTP layer.
type Dependencies struct {
	Sessions          SessionValidator
	Identities        IdentityResolver
	Entries           EntryReader
	Journal           Journal
	Moods             *mood.Registry
	Events            EventSource
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	HealthCheck       func(ctx context.Context) error
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the diary API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errMissingSessionValidator
	case deps.Identities == nil:
		return nil, errMissingIdentityResolver
	case deps.Entries == nil:
		return nil, errMissingEntryReader
	case deps.Journal == nil:
		return nil, errMissingJournal
	case deps.Moods == nil:
		return nil, errMissingMoodRegistry
	case deps.Events == nil:
		return nil, errMissingEventSource
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestMetrics())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:   deps.Sessions,
		identities: deps.Identities,
		entries:    deps.Entries,
		journal:    deps.Journal,
		moods:      deps.Moods,
		events:     deps.Events,
		heartbeat:  heartbeat,
		health:     deps.HealthCheck,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/auth/signout", handler.handleSignOut)
	protected.GET("/api/me", handler.handleMe)
	protected.GET("/api/mood", handler.handleMood)
	protected.GET("/api/events", handler.handleEvents)
	protected.GET("/api/compose", handler.handleCompose)
	protected.GET("/api/entries", handler.handleListEntries)
	protected.POST("/api/entries", handler.handleCreateEntry)
	protected.GET("/api/entries/:id", handler.handleGetEntry)
	protected.POST("/api/entries/:id/leave", handler.handleLeaveEntry)
	protected.DELETE("/api/entries/:id", handler.handleDeleteEntry)

	return router, nil
}

type httpHandler struct {
	sessions   SessionValidator
	identities IdentityResolver
	entries    EntryReader
	journal    Journal
	moods      *mood.Registry
	events     EventSource
	heartbeat  time.Duration
	health     func(ctx context.Context) error
	logger     *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "X-Confirm-Delete", "X-TAuth-Tenant", "Last-Event-ID"},
		ExposeHeaders:    []string{"Location"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
			h.logger.Debug("session cookie missing")
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	profile, err := h.identities.Resolve(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, users.ErrInvalidIdentity) {
			h.logger.Warn("session without usable identity", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("identity resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "identity_unavailable"})
		return
	}

	c.Set(userIDContextKey, profile.UserID)
	c.Set(sessionKeyContextKey, claims.SessionKey())
	c.Set(profileContextKey, profile)
	c.Next()
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	profile, _ := c.Get(profileContextKey)
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleSignOut(c *gin.Context) {
	h.moods.Unmount(c.GetString(sessionKeyContextKey))
	http.SetCookie(c.Writer, h.sessions.ExpiredCookie())
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMood(c *gin.Context) {
	layout := h.moods.Mount(c.GetString(sessionKeyContextKey))
	c.JSON(http.StatusOK, moodPayload{Mood: layout.Current()})
}
