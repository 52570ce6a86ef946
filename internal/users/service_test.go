package users

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&Identity{}); err != nil {
		t.Fatalf("failed to migrate identity schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveCanonicalUserIDStripsProviderPrefix(t *testing.T) {
	service, db := newTestService(t)

	claims := auth.SessionClaims{
		UserID:          "google:12345",
		UserEmail:       "user@example.com",
		UserDisplayName: "Example User",
		UserAvatarURL:   "https://example.com/avatar.png",
	}
	userID, err := service.ResolveCanonicalUserID(context.Background(), claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if userID != "12345" {
		t.Fatalf("expected canonical user id without provider prefix, got %q", userID)
	}

	userID, err = service.ResolveCanonicalUserID(context.Background(), claims)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if userID != "12345" {
		t.Fatalf("expected canonical user id to remain stable, got %q", userID)
	}

	var count int64
	if err := db.Model(&Identity{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single identity row, got %d", count)
	}
}

func TestResolveRefreshesProfileFields(t *testing.T) {
	service, db := newTestService(t)
	claims := auth.SessionClaims{UserID: "google:777", UserDisplayName: "Old Name"}

	if _, err := service.Resolve(context.Background(), claims); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	claims.UserDisplayName = "New Name"
	profile, err := service.Resolve(context.Background(), claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if profile.DisplayName != "New Name" {
		t.Fatalf("expected refreshed display name, got %q", profile.DisplayName)
	}

	var stored Identity
	if err := db.Where("provider = ? AND subject = ?", "google", "777").First(&stored).Error; err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if stored.DisplayName != "New Name" {
		t.Fatalf("expected stored display name to be updated, got %q", stored.DisplayName)
	}
}

func TestResolveRejectsClaimsWithoutIdentifier(t *testing.T) {
	service, _ := newTestService(t)

	if _, err := service.Resolve(context.Background(), auth.SessionClaims{}); err != ErrInvalidIdentity {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestDeriveProviderSubject(t *testing.T) {
	testCases := []struct {
		name     string
		claims   auth.SessionClaims
		provider string
		subject  string
	}{
		{name: "prefixed", claims: auth.SessionClaims{UserID: "google:1"}, provider: "google", subject: "1"},
		{name: "jwt subject", claims: auth.SessionClaims{UserID: "plain"}, provider: defaultProvider, subject: "plain"},
		{name: "email fallback", claims: auth.SessionClaims{UserEmail: " a@b.c "}, provider: defaultProvider, subject: "a@b.c"},
		{name: "dangling prefix", claims: auth.SessionClaims{UserID: "google:"}, provider: defaultProvider, subject: "google:"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			provider, subject := deriveProviderSubject(testCase.claims)
			if provider != testCase.provider || subject != testCase.subject {
				t.Fatalf("expected %s/%s, got %s/%s", testCase.provider, testCase.subject, provider, subject)
			}
		})
	}
}
