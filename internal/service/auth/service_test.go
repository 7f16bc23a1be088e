package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/mocks"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type authEnv struct {
	service *Service
	tokens  *JWTService
	users   *mocks.MockUserRepository
	mailer  *mocks.MockMailer
	cache   *mocks.MockCache
	clock   *mocks.FixedClock
}

func newAuthEnv() *authEnv {
	log := newTestLogger()
	clock := mocks.NewFixedClock(time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC))
	users := mocks.NewMockUserRepository()
	mailer := mocks.NewMockMailer()
	cache := mocks.NewMockCache()
	tokens := NewJWTService("test-secret", 15*time.Minute, 7*24*time.Hour, cache, log)
	return &authEnv{
		service: NewService(users, tokens, nil, mailer, clock, log),
		tokens:  tokens,
		users:   users,
		mailer:  mailer,
		cache:   cache,
		clock:   clock,
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !strings.Contains(hash, "$") {
		t.Fatalf("expected salt$hash format, got %q", hash)
	}
	if !VerifyPassword("s3cret-pass", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("wrong-pass", hash) {
		t.Error("wrong password accepted")
	}
	if VerifyPassword("s3cret-pass", "malformed") {
		t.Error("malformed stored hash accepted")
	}

	// Fresh salt per hash.
	again, _ := HashPassword("s3cret-pass")
	if again == hash {
		t.Error("two hashes of the same password are identical")
	}
}

func TestRegister(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	user, err := env.service.Register(ctx, "Aisyah", "  AISYAH@Example.MY ", "+60123456789", "password123")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Email != "aisyah@example.my" {
		t.Errorf("email not normalized: %s", user.Email)
	}
	if !user.IsActive || user.IsAdmin {
		t.Errorf("unexpected flags: active=%v admin=%v", user.IsActive, user.IsAdmin)
	}
	if user.PasswordHash == "password123" {
		t.Error("password stored in the clear")
	}
	if len(env.mailer.Sent) != 1 || env.mailer.Sent[0].To != "aisyah@example.my" {
		t.Error("welcome mail not sent")
	}

	if _, err := env.service.Register(ctx, "Dup", "aisyah@example.my", "", "password123"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate email: expected ErrConflict, got %v", err)
	}
	if _, err := env.service.Register(ctx, "Short", "short@example.my", "", "short"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("short password: expected ErrValidation, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	if _, err := env.service.Register(ctx, "Aisyah", "aisyah@example.my", "", "password123"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, pair, err := env.service.Login(ctx, "aisyah@example.my", "password123", "10.0.0.1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.TokenType != "bearer" {
		t.Errorf("bad token pair: %+v", pair)
	}
	if user.LastLoginAt == nil {
		t.Error("last login not recorded")
	}

	claims, err := env.service.ValidateAccessToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != "aisyah@example.my" || claims.IsAdmin {
		t.Errorf("unexpected claims: %+v", claims)
	}

	// A refresh token must not pass as an access token.
	if _, err := env.service.ValidateAccessToken(ctx, pair.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("refresh token accepted as access: %v", err)
	}

	if _, _, err := env.service.Login(ctx, "aisyah@example.my", "wrong", ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("wrong password: expected ErrUnauthorized, got %v", err)
	}
	if _, _, err := env.service.Login(ctx, "nobody@example.my", "password123", ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("unknown user: expected ErrUnauthorized, got %v", err)
	}
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	if _, err := env.service.Register(ctx, "Aisyah", "aisyah@example.my", "", "password123"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	for i := 0; i < domain.MaxFailedLoginAttempts; i++ {
		if _, _, err := env.service.Login(ctx, "aisyah@example.my", "wrong", "10.0.0.9"); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("attempt %d: expected ErrUnauthorized, got %v", i+1, err)
		}
	}

	// The account is now locked even for the correct password.
	if _, _, err := env.service.Login(ctx, "aisyah@example.my", "password123", ""); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	// The window elapses and the correct password works again.
	env.clock.Advance(domain.AccountLockDuration + time.Minute)
	if _, _, err := env.service.Login(ctx, "aisyah@example.my", "password123", ""); err != nil {
		t.Errorf("login after lockout expiry failed: %v", err)
	}
}

func TestRefresh_RotatesTokens(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	if _, err := env.service.Register(ctx, "Aisyah", "aisyah@example.my", "", "password123"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, pair, err := env.service.Login(ctx, "aisyah@example.my", "password123", "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	fresh, err := env.service.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if _, err := env.service.ValidateAccessToken(ctx, fresh.AccessToken); err != nil {
		t.Errorf("new access token invalid: %v", err)
	}

	// The used refresh token was revoked by the rotation.
	if _, err := env.service.Refresh(ctx, pair.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("reused refresh token: expected ErrUnauthorized, got %v", err)
	}

	// An access token is not a refresh token.
	if _, err := env.service.Refresh(ctx, fresh.AccessToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("access token accepted for refresh: %v", err)
	}
}

func TestLogout_RevokesAccessToken(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	if _, err := env.service.Register(ctx, "Aisyah", "aisyah@example.my", "", "password123"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, pair, err := env.service.Login(ctx, "aisyah@example.my", "password123", "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := env.service.Logout(ctx, pair.AccessToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := env.service.ValidateAccessToken(ctx, pair.AccessToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("revoked token still valid: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	user, err := env.service.Register(ctx, "Aisyah", "aisyah@example.my", "", "password123")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := env.service.ChangePassword(ctx, user.ID, "wrong", "newpassword1"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("wrong current password: expected ErrUnauthorized, got %v", err)
	}
	if err := env.service.ChangePassword(ctx, user.ID, "password123", "short"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("short new password: expected ErrValidation, got %v", err)
	}

	if err := env.service.ChangePassword(ctx, user.ID, "password123", "newpassword1"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if _, _, err := env.service.Login(ctx, "aisyah@example.my", "newpassword1", ""); err != nil {
		t.Errorf("login with new password failed: %v", err)
	}
	if _, _, err := env.service.Login(ctx, "aisyah@example.my", "password123", ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("old password still accepted: %v", err)
	}
}

func TestEnsureAdmin(t *testing.T) {
	env := newAuthEnv()
	ctx := context.Background()

	if err := env.service.EnsureAdmin(ctx, "", "", ""); err != nil {
		t.Fatalf("empty bootstrap config should be a no-op: %v", err)
	}
	if n, _ := env.users.CountAdmins(ctx); n != 0 {
		t.Fatalf("admin created from empty config")
	}

	if err := env.service.EnsureAdmin(ctx, "", "Admin@ChargeNet.MY", "bootstrap-pass"); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	admin, _ := env.users.GetByEmail(ctx, "admin@chargenet.my")
	if admin == nil || !admin.IsAdmin {
		t.Fatal("bootstrap admin not created")
	}
	if admin.Name != "Administrator" {
		t.Errorf("default name not applied: %s", admin.Name)
	}

	// Idempotent once an admin exists.
	if err := env.service.EnsureAdmin(ctx, "Second", "second@chargenet.my", "other-pass"); err != nil {
		t.Fatalf("second bootstrap errored: %v", err)
	}
	if n, _ := env.users.CountAdmins(ctx); n != 1 {
		t.Errorf("expected exactly one admin, got %d", n)
	}
}
