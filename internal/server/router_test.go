package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/affirmations"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type createResponse struct {
	Entry               entryPayload `json:"entry"`
	Location            string       `json:"location"`
	AffirmationDegraded bool         `json:"affirmation_degraded"`
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); !errors.Is(err, errMissingSessionValidator) {
		t.Fatalf("expected missing session validator, got %v", err)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnvironment(t, staticAffirmation("unused"))

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/entries"},
		{http.MethodPost, "/api/entries"},
		{http.MethodGet, "/api/entries/abc"},
		{http.MethodDelete, "/api/entries/abc"},
		{http.MethodGet, "/api/mood"},
		{http.MethodGet, "/api/me"},
	} {
		recorder := env.do(t, route.method, route.path, nil, nil, nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", route.method, route.path, recorder.Code)
		}
	}
}

func TestCreateEntryWonderfulDayScenario(t *testing.T) {
	var captured affirmations.Request
	generator := affirmations.GeneratorFunc(func(_ context.Context, request affirmations.Request) (string, error) {
		captured = request
		return "Savor this bright feeling; you earned it.", nil
	})
	env := newTestEnvironment(t, generator)
	cookie := sessionCookie(t, testUserID, testSessionID)

	recorder := env.do(t, http.MethodPost, "/api/entries", gin.H{"text": "Today was a wonderful day"}, cookie, nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	response := decodeJSON[createResponse](t, recorder)
	if response.Entry.Sentiment != "positive" {
		t.Fatalf("expected positive sentiment, got %q", response.Entry.Sentiment)
	}
	if response.Entry.Affirmation != "Savor this bright feeling; you earned it." {
		t.Fatalf("unexpected affirmation %q", response.Entry.Affirmation)
	}
	if response.AffirmationDegraded {
		t.Fatalf("did not expect degraded affirmation")
	}
	if response.Location != "/entries/"+response.Entry.EntryID || recorder.Header().Get("Location") != response.Location {
		t.Fatalf("unexpected location %q / %q", response.Location, recorder.Header().Get("Location"))
	}
	if captured.Sentiment != "positive" || len(captured.PreviousAffirmations) != 0 {
		t.Fatalf("unexpected generator request %+v", captured)
	}

	if current := env.currentMood(t, cookie); current == nil || *current != "positive" {
		t.Fatalf("expected positive mood after creation, got %v", current)
	}

	stored, err := env.entries.ListRecent(context.Background(), entries.UserID(testCanonicalID), 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(stored) != 1 || stored[0].EntryID != response.Entry.EntryID {
		t.Fatalf("expected entry stored for canonical user, got %+v", stored)
	}
}

func TestCreateEntryFeedsPreviousAffirmations(t *testing.T) {
	var previous []string
	counter := 0
	generator := affirmations.GeneratorFunc(func(_ context.Context, request affirmations.Request) (string, error) {
		previous = request.PreviousAffirmations
		counter++
		return "Affirmation number " + strings.Repeat("I", counter), nil
	})
	env := newTestEnvironment(t, generator)
	cookie := sessionCookie(t, testUserID, testSessionID)

	for index := 0; index < 3; index++ {
		recorder := env.do(t, http.MethodPost, "/api/entries", gin.H{"text": "Another ordinary afternoon"}, cookie, nil)
		if recorder.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", recorder.Code)
		}
	}

	expected := []string{"Affirmation number II", "Affirmation number I"}
	if len(previous) != len(expected) {
		t.Fatalf("expected %d previous affirmations, got %v", len(expected), previous)
	}
	for index := range expected {
		if previous[index] != expected[index] {
			t.Fatalf("expected %q at %d, got %q", expected[index], index, previous[index])
		}
	}
}

func TestCreateEntryRejectsShortText(t *testing.T) {
	env := newTestEnvironment(t, staticAffirmation("unused"))
	cookie := sessionCookie(t, testUserID, testSessionID)

	recorder := env.do(t, http.MethodPost, "/api/entries", gin.H{"text": "short"}, cookie, nil)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", recorder.Code)
	}
	body := decodeJSON[map[string]any](t, recorder)
	if body["error"] != "invalid_entry_text" {
		t.Fatalf("unexpected error body %v", body)
	}

	list := env.do(t, http.MethodGet, "/api/entries", nil, cookie, nil)
	if len(decodeJSON[listResponsePayload](t, list).Entries) != 0 {
		t.Fatalf("expected no entries after rejected submission")
	}
}

func TestCreateEntryRejectsMalformedBody(t *testing.T) {
	env := newTestEnvironment(t, staticAffirmation("unused"))
	cookie := sessionCookie(t, testUserID, testSessionID)

	request := httptest.NewRequest(http.MethodPost, "/api/entries", strings.NewReader("{not json"))
	request.Header.Set("Content-Type", "application/json")
	request.AddCookie(cookie)
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestCreateEntryDegradesWhenGenerationUnavailable(t *testing.T) {
	env := newTestEnvironment(t, affirmations.DisabledGenerator{})
	cookie := sessionCookie(t, testUserID, testSessionID)

	recorder := env.do(t, http.MethodPost, "/api/entries", gin.H{"text": "I feel sad and tired tonight"}, cookie, nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", recorder.Code)
	}
	response := decodeJSON[createResponse](t, recorder)
	if !response.AffirmationDegraded || response.Entry.Affirmation != "" {
		t.Fatalf("expected degraded entry with empty affirmation, got %+v", response)
	}
	if response.Entry.Sentiment != "negative" {
		t.Fatalf("expected negative sentiment, got %q", response.Entry.Sentiment)
	}
}

func TestCreateEntryReportsStoreOutages(t *testing.T) {
	testCases := []struct {
		name      string
		store     func(*entries.Service) journal.EntryStore
		wantError string
	}{
		{
			name: "history unavailable",
			store: func(service *entries.Service) journal.EntryStore {
				return failingEntryStore{EntryStore: service, listErr: errors.New("database is locked")}
			},
			wantError: "store_unavailable",
		},
		{
			name: "write failed",
			store: func(service *entries.Service) journal.EntryStore {
				return failingEntryStore{EntryStore: service, createErr: errors.New("disk full")}
			},
			wantError: "entry_save_failed",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			env := newTestEnvironmentWithStore(t, staticAffirmation("unused"), testCase.store)
			cookie := sessionCookie(t, testUserID, testSessionID)

			recorder := env.do(t, http.MethodPost, "/api/entries", gin.H{"text": "Today was a wonderful day"}, cookie, nil)
			if recorder.Code != http.StatusServiceUnavailable {
				t.Fatalf("expected 503, got %d: %s", recorder.Code, recorder.Body.String())
			}
			body := decodeJSON[map[string]any](t, recorder)
			if body["error"] != testCase.wantError {
				t.Fatalf("unexpected error body %v", body)
			}
			if recorder.Header().Get("Location") != "" {
				t.Fatalf("expected no navigation on failure, got %q", recorder.Header().Get("Location"))
			}

			if current := env.currentMood(t, cookie); current != nil {
				t.Fatalf("expected mood to stay null, got %q", *current)
			}
			list := decodeJSON[listResponsePayload](t, env.do(t, http.MethodGet, "/api/entries", nil, cookie, nil))
			if len(list.Entries) != 0 {
				t.Fatalf("expected no entries after failed submission, got %d", len(list.Entries))
			}
		})
	}
}

func TestEntryViewDrivesMood(t *testing.T) {
	env := newTestEnvironment(t, staticAffirmation("Be gentle with yourself."))
	cookie := sessionCookie(t, testUserID, testSessionID)

	created := decodeJSON[createResponse](t, env.do(t, http.MethodPost, "/api/entries", gin.H{"text": "I hate how awful today was"}, cookie, nil))

	list := env.do(t, http.MethodGet, "/api/entries", nil, cookie, nil)
	if list.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", list.Code)
	}
	if current := env.currentMood(t, cookie); current != nil {
		t.Fatalf("expected list view to reset mood, got %q", *current)
	}

	view := env.do(t, http.MethodGet, "/api/entries/"+created.Entry.EntryID, nil, cookie, nil)
	if view.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", view.Code)
	}
	if decodeJSON[entryPayload](t, view).Text != "I hate how awful today was" {
		t.Fatalf("unexpected entry body %s", view.Body.String())
	}
	if current := env.currentMood(t, cookie); current == nil || *current != "negative" {
		t.Fatalf("expected negative mood in entry view, got %v", current)
	}

	leave := env.do(t, http.MethodPost, "/api/entries/"+created.Entry.EntryID+"/leave", nil, cookie, nil)
	if leave.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", leave.Code)
	}
	if current := env.currentMood(t, cookie); current != nil {
		t.Fatalf("expected mood reset after leaving entry, got %q", *current)
	}
}

func TestMoodIsScopedToSession(t *testing.T) {
	env := newTestEnvironment(t, staticAffirmation("Keep going."))
	first := sessionCookie(t, testUserID, "session-a")
	second := sessionCookie(t, testUserID, "session-b")

	env.do(t, http.MethodPost, "/api/entries", gin.H{"text": "Today was a wonderful day"}, first, nil)

	if current := env.currentMood(t, second); current != nil {
		t.Fatalf("expected other session to keep a null mood, got %q", *current)
	}
}

func TestGetEntryNotFoundAndOwnership(t *testing.T) {
	env := newTestEnvironment(t, staticAffirmation("Mine."))
	owner := sessionCookie(t, testUserID, testSessionID)
	stranger := sessionCookie(t, "google:someone-else", "session-x")

	created := decodeJSON[createResponse](t, env.do(t, http.MethodPost, "/api/entries", gin.H{"text": "A private thought of mine"}, owner, nil))

	if recorder := env.do(t, http.MethodGet, "/api/entries/missing-id", nil, owner, nil); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing entry, got %d", recorder.Code)
	}
	if recorder := env.do(t, http.MethodGet, "/api/entries/"+created.Entry.EntryID, nil, stranger, nil); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign entry, got %d", recorder.Code)
	}
	if current := env.currentMood(t, stranger); current != nil {
		t.Fatalf("expected failed view to leave mood untouched, got %q", *current)
	}
}

func TestDeleteEntryRequiresConfirmation(t *testing.T) {
	env := newTestEnvironment(t, staticAffirmation("Letting go."))
	cookie := sessionCookie(t, testUserID, testSessionID)
	created := decodeJSON[createResponse](t, env.do(t, http.MethodPost, "/api/entries", gin.H{"text": "Something to forget soon"}, cookie, nil))
	target := "/api/entries/" + created.Entry.EntryID

	unconfirmed := env.do(t, http.MethodDelete, target, nil, cookie, nil)
	if unconfirmed.Code != http.StatusPreconditionRequired {
		t.Fatalf("expected 428, got %d", unconfirmed.Code)
	}
	if err := env.orchestrator.WaitForTasks(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if recorder := env.do(t, http.MethodGet, target, nil, cookie, nil); recorder.Code != http.StatusOK {
		t.Fatalf("expected entry to survive unconfirmed delete, got %d", recorder.Code)
	}

	confirmed := env.do(t, http.MethodDelete, target, nil, cookie, map[string]string{confirmDeleteHeader: "true"})
	if confirmed.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", confirmed.Code)
	}
	if confirmed.Header().Get("Location") != listLocation {
		t.Fatalf("expected redirect to list, got %q", confirmed.Header().Get("Location"))
	}
	if current := env.currentMood(t, cookie); current != nil {
		t.Fatalf("expected delete to leave the entry view, got %q", *current)
	}
	if err := env.orchestrator.WaitForTasks(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	if recorder := env.do(t, http.MethodGet, target, nil, cookie, nil); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", recorder.Code)
	}
	list := decodeJSON[listResponsePayload](t, env.do(t, http.MethodGet, "/api/entries", nil, cookie, nil))
	if len(list.Entries) != 0 {
		t.Fatalf("expected empty listing after delete, got %d", len(list.Entries))
	}
}

func TestDeleteEntryAcceptsQueryConfirmation(t *testing.T) {
	env := newTestEnvironment(t, staticAffirmation("Gone."))
	cookie := sessionCookie(t, testUserID, testSessionID)
	created := decodeJSON[createResponse](t, env.do(t, http.MethodPost, "/api/entries", gin.H{"text": "Something to forget soon"}, cookie, nil))

	recorder := env.do(t, http.MethodDelete, "/api/entries/"+created.Entry.EntryID+"?confirm=true", nil, cookie, nil)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", recorder.Code)
	}
}

func TestListEntriesNewestFirst(t *testing.T) {
	env := newTestEnvironment(t, staticAffirmation("Noted."))
	cookie := sessionCookie(t, testUserID, testSessionID)

	texts := []string{"first entry of the day", "second entry of the day", "third entry of the day"}
	for _, text := range texts {
		if recorder := env.do(t, http.MethodPost, "/api/entries", gin.H{"text": text}, cookie, nil); recorder.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", recorder.Code)
		}
	}

	list := decodeJSON[listResponsePayload](t, env.do(t, http.MethodGet, "/api/entries", nil, cookie, nil))
	if len(list.Entries) != len(texts) {
		t.Fatalf("expected %d entries, got %d", len(texts), len(list.Entries))
	}
	for index, entry := range list.Entries {
		if entry.Text != texts[len(texts)-1-index] {
			t.Fatalf("unexpected order at %d: %q", index, entry.Text)
		}
	}
}

func TestComposeReportsMinimumLengthAndState(t *testing.T) {
	env := newTestEnvironment(t, staticAffirmation("unused"))
	cookie := sessionCookie(t, testUserID, testSessionID)

	recorder := env.do(t, http.MethodGet, "/api/compose", nil, cookie, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeJSON[composeResponsePayload](t, recorder)
	if body.MinLength != entries.MinTextLength || body.State != "idle" {
		t.Fatalf("unexpected compose body %+v", body)
	}
}

func TestMeAndSignOut(t *testing.T) {
	env := newTestEnvironment(t, staticAffirmation("Bye."))
	cookie := sessionCookie(t, testUserID, testSessionID)

	me := decodeJSON[users.Profile](t, env.do(t, http.MethodGet, "/api/me", nil, cookie, nil))
	if me.UserID != testCanonicalID || me.Email != "writer@example.com" {
		t.Fatalf("unexpected profile %+v", me)
	}

	env.do(t, http.MethodPost, "/api/entries", gin.H{"text": "Today was a wonderful day"}, cookie, nil)
	if _, ok := env.moods.Lookup(testSessionKey); !ok {
		t.Fatalf("expected a mounted layout for the session")
	}

	recorder := env.do(t, http.MethodPost, "/auth/signout", nil, cookie, nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Header().Get("Set-Cookie"), testCookieName+"=") {
		t.Fatalf("expected session cookie to be cleared, got %q", recorder.Header().Get("Set-Cookie"))
	}
	if _, ok := env.moods.Lookup(testSessionKey); ok {
		t.Fatalf("expected layout to be dropped at sign-out")
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	env := newTestEnvironment(t, staticAffirmation("unused"))

	if recorder := env.do(t, http.MethodGet, "/healthz", nil, nil, nil); recorder.Code != http.StatusOK {
		t.Fatalf("expected healthy status, got %d", recorder.Code)
	}
	env.do(t, http.MethodGet, "/api/entries", nil, nil, nil)
	metrics := env.do(t, http.MethodGet, "/metrics", nil, nil, nil)
	if metrics.Code != http.StatusOK {
		t.Fatalf("expected metrics status 200, got %d", metrics.Code)
	}
	if !strings.Contains(metrics.Body.String(), "deardiary_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/entries", http.NoBody)

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{err: auth.ErrExpiredSessionToken},
		logger:   zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	logEntries := logs.All()
	if len(logEntries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(logEntries))
	}
	if logEntries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", logEntries[0].Level)
	}
	if logEntries[0].Message != "session validation failed" {
		t.Fatalf("unexpected log message: %q", logEntries[0].Message)
	}
}

func TestAuthorizeRequestLogsUnexpectedTokenErrorAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/entries", http.NoBody)

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{err: auth.ErrInvalidSessionToken},
		logger:   zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	logEntries := logs.All()
	if len(logEntries) != 1 || logEntries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected a single warn entry, got %+v", logEntries)
	}
}

func TestAuthorizeRequestReportsIdentityOutage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/entries", http.NoBody)

	handler := &httpHandler{
		sessions:   stubSessionValidator{claims: auth.SessionClaims{UserID: "u"}},
		identities: stubIdentityResolver{err: errors.New("database is locked")},
		logger:     zap.NewNop(),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", recorder.Code)
	}
}

func TestCORSMiddlewareAllowsConfirmationHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware(nil))
	router.DELETE("/api/entries/:id", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	request := httptest.NewRequest(http.MethodOptions, "/api/entries/abc", http.NoBody)
	request.Header.Set("Origin", "https://diary.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	request.Header.Set("Access-Control-Request-Headers", confirmDeleteHeader)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	allowHeaders := recorder.Header().Get("Access-Control-Allow-Headers")
	if !strings.Contains(strings.ToLower(allowHeaders), strings.ToLower(confirmDeleteHeader)) {
		t.Fatalf("expected Access-Control-Allow-Headers to include %s, got %q", confirmDeleteHeader, allowHeaders)
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be enabled")
	}
}

func TestCORSMiddlewareRestrictsConfiguredOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware([]string{"https://diary.example.com"}))
	router.GET("/api/mood", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	request := httptest.NewRequest(http.MethodGet, "/api/mood", http.NoBody)
	request.Header.Set("Origin", "https://evil.example.com")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected foreign origin to be rejected, got %d", recorder.Code)
	}
}

type stubSessionValidator struct {
	claims auth.SessionClaims
	err    error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	return s.claims, s.err
}

func (s stubSessionValidator) ExpiredCookie() *http.Cookie {
	return &http.Cookie{Name: testCookieName, MaxAge: -1}
}

type stubIdentityResolver struct {
	profile users.Profile
	err     error
}

func (s stubIdentityResolver) Resolve(context.Context, auth.SessionClaims) (users.Profile, error) {
	return s.profile, s.err
}
