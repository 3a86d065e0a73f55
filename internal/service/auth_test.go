package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"chat_server/internal/config"
	apperrors "chat_server/pkg/errors"
	"chat_server/pkg/logger"
)

func newAuthFixture() (AuthService, *fakeUserRepo) {
	userRepo := newFakeUserRepo()
	cfg := config.JWTConfig{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	}
	return NewAuthService(userRepo, cfg, logger.NewNop()), userRepo
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthFixture()

	tests := []struct {
		name     string
		email    string
		password string
		username string
	}{
		{"missing email", "", "password123", "alice"},
		{"missing password", "alice@example.com", "", "alice"},
		{"short password", "alice@example.com", "short", "alice"},
		{"missing username", "alice@example.com", "password123", ""},
		{"malformed email", "not-an-email", "password123", "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tt.email, tt.password, tt.username); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestRegisterThenLogin(t *testing.T) {
	svc, _ := newAuthFixture()

	user, err := svc.Register(context.Background(), "Alice@Example.com", "password123", "alice")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email = %q, want lowercased", user.Email)
	}
	if user.PasswordHash != "" {
		t.Fatal("password hash must not leave the service")
	}

	resp, err := svc.Login(context.Background(), "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("login must issue both tokens")
	}

	identity, err := svc.ValidateToken(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if identity.UserID != user.ID || identity.Username != "alice" {
		t.Fatalf("identity = %+v, want the registered user", identity)
	}
}

func TestLoginDoesNotRevealWhichFieldWasWrong(t *testing.T) {
	svc, _ := newAuthFixture()
	if _, err := svc.Register(context.Background(), "alice@example.com", "password123", "alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, tt := range []struct {
		name     string
		email    string
		password string
	}{
		{"unknown account", "nobody@example.com", "password123"},
		{"wrong password", "alice@example.com", "wrong-password"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.email, tt.password)
			if !errors.Is(err, apperrors.ErrInvalidCredentials) {
				t.Fatalf("error = %v, want ErrInvalidCredentials for both cases", err)
			}
		})
	}
}

func TestRefreshTokenRotatesSession(t *testing.T) {
	svc, _ := newAuthFixture()
	if _, err := svc.Register(context.Background(), "alice@example.com", "password123", "alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	login, err := svc.Login(context.Background(), "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	refreshed, err := svc.RefreshToken(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}

	// The old token's session was revoked by the rotation.
	if _, err := svc.RefreshToken(context.Background(), login.RefreshToken); err == nil {
		t.Fatal("a rotated-out refresh token must be rejected")
	}

	// The new token works.
	if _, err := svc.RefreshToken(context.Background(), refreshed.RefreshToken); err != nil {
		t.Fatalf("refresh with rotated token: %v", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newAuthFixture()
	if _, err := svc.ValidateToken(context.Background(), "not-a-jwt"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, _ := newAuthFixture()
	if _, err := svc.Register(context.Background(), "alice@example.com", "password123", "alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	login, err := svc.Login(context.Background(), "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(context.Background(), login.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := svc.Logout(context.Background(), login.RefreshToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if _, err := svc.RefreshToken(context.Background(), login.RefreshToken); err == nil {
		t.Fatal("a logged-out refresh token must be rejected")
	}
}
