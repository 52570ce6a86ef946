package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/affirmations"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/database"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/mood"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "test-signing-secret"
	testCookieName    = "app_session"
	testUserID        = "google:user-123"
	testCanonicalID   = "user-123"
	testSessionID     = "session-1"
	testSessionKey    = "jti:" + testSessionID
)

type testEnvironment struct {
	handler      http.Handler
	entries      *entries.Service
	dispatcher   *realtime.Dispatcher
	moods        *mood.Registry
	orchestrator *journal.Orchestrator
}

func newTestEnvironment(t *testing.T, generator affirmations.Generator) *testEnvironment {
	t.Helper()
	return newTestEnvironmentWithStore(t, generator, nil)
}

// newTestEnvironmentWithStore lets a test substitute the store the orchestrator
// writes through while reads keep hitting the real entry service.
func newTestEnvironmentWithStore(t *testing.T, generator affirmations.Generator, wrap func(*entries.Service) journal.EntryStore) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	entryService, err := entries.NewService(entries.ServiceConfig{
		Database:   db,
		IDProvider: entries.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct entry service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}

	var store journal.EntryStore = entryService
	if wrap != nil {
		store = wrap(entryService)
	}

	dispatcher := realtime.NewDispatcher()
	moods := mood.NewRegistry(dispatcher, nil)
	orchestrator, err := journal.NewOrchestrator(journal.Config{
		Entries:           store,
		Generator:         generator,
		Moods:             moods,
		Notifier:          dispatcher,
		GenerationTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("failed to construct orchestrator: %v", err)
	}
	t.Cleanup(func() {
		_ = orchestrator.WaitForTasks(context.Background())
	})

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:          validator,
		Identities:        userService,
		Entries:           entryService,
		Journal:           orchestrator,
		Moods:             moods,
		Events:            dispatcher,
		HeartbeatInterval: time.Hour,
		HealthCheck:       sqlDB.PingContext,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	return &testEnvironment{
		handler:      handler,
		entries:      entryService,
		dispatcher:   dispatcher,
		moods:        moods,
		orchestrator: orchestrator,
	}
}

func staticAffirmation(value string) affirmations.Generator {
	return affirmations.GeneratorFunc(func(context.Context, affirmations.Request) (string, error) {
		return value, nil
	})
}

func sessionCookie(t *testing.T, userID, sessionID string) *http.Cookie {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.SessionClaims{
		UserID:    userID,
		UserEmail: "writer@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    "tauth",
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return &http.Cookie{Name: testCookieName, Value: signed}
}

func (env *testEnvironment) do(t *testing.T, method, target string, body any, cookie *http.Cookie, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		request.AddCookie(cookie)
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeJSON[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return value
}

type moodResponse struct {
	Mood *string `json:"mood"`
}

func (env *testEnvironment) currentMood(t *testing.T, cookie *http.Cookie) *string {
	t.Helper()
	recorder := env.do(t, http.MethodGet, "/api/mood", nil, cookie, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected mood status %d", recorder.Code)
	}
	return decodeJSON[moodResponse](t, recorder).Mood
}

type failingEntryStore struct {
	journal.EntryStore
	listErr   error
	createErr error
}

func (s failingEntryStore) ListRecent(ctx context.Context, userID entries.UserID, limit int) ([]entries.Entry, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.EntryStore.ListRecent(ctx, userID, limit)
}

func (s failingEntryStore) Create(ctx context.Context, input entries.NewEntry) (entries.Entry, error) {
	if s.createErr != nil {
		return entries.Entry{}, s.createErr
	}
	return s.EntryStore.Create(ctx, input)
}
