package auth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

// Service implements registration, login with account lockout, token
// refresh/logout and the startup admin bootstrap.
type Service struct {
	users  ports.UserRepository
	tokens *JWTService
	audit  ports.AuditRecorder
	mailer ports.Mailer
	clock  ports.Clock
	log    *zap.Logger
}

func NewService(
	users ports.UserRepository,
	tokens *JWTService,
	audit ports.AuditRecorder,
	mailer ports.Mailer,
	clock ports.Clock,
	log *zap.Logger,
) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		audit:  audit,
		mailer: mailer,
		clock:  clock,
		log:    log,
	}
}

func (s *Service) Register(ctx context.Context, name, email, phone, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return nil, domain.ValidationError("name and email are required")
	}
	if len(password) < 8 {
		return nil, domain.ValidationError("password must be at least 8 characters")
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", domain.ErrConflict)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &user.ID, email, "auth.register", "")
	s.sendWelcome(ctx, user)
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password, clientIP string) (*domain.User, *ports.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || !user.IsActive {
		return nil, nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}

	now := s.clock.Now()
	if user.IsLocked(now) {
		s.recordAudit(ctx, &user.ID, email, "auth.login_locked", clientIP)
		return nil, nil, fmt.Errorf("%w: try again later", domain.ErrAccountLocked)
	}

	if !VerifyPassword(password, user.PasswordHash) {
		user.FailedLoginAttempts++
		if user.FailedLoginAttempts >= domain.MaxFailedLoginAttempts {
			lockedUntil := now.Add(domain.AccountLockDuration)
			user.LockedUntil = &lockedUntil
			user.FailedLoginAttempts = 0
			s.log.Warn("Account locked after repeated failures",
				zap.String("email", email),
				zap.String("client_ip", clientIP))
		}
		if err := s.users.Update(ctx, user); err != nil {
			s.log.Error("Failed to record login failure", zap.Error(err))
		}
		s.recordAudit(ctx, &user.ID, email, "auth.login_failed", clientIP)
		return nil, nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		s.log.Error("Failed to update login state", zap.Error(err))
	}

	pair, err := s.tokenPair(user)
	if err != nil {
		return nil, nil, err
	}

	s.recordAudit(ctx, &user.ID, email, "auth.login", clientIP)
	return user, pair, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (*ports.TokenPair, error) {
	claims, err := s.tokens.ValidateToken(ctx, refreshToken, "refresh")
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, fmt.Errorf("%w: account unavailable", domain.ErrUnauthorized)
	}

	// Rotate: the used refresh token is revoked with the new pair issued.
	if err := s.tokens.RevokeToken(ctx, claims.ID); err != nil {
		s.log.Warn("Failed to revoke used refresh token", zap.Error(err))
	}
	return s.tokenPair(user)
}

func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.ValidateToken(ctx, accessToken, "access")
	if err != nil {
		return err
	}
	return s.tokens.RevokeToken(ctx, claims.ID)
}

func (s *Service) ValidateAccessToken(ctx context.Context, token string) (*ports.AuthClaims, error) {
	claims, err := s.tokens.ValidateToken(ctx, token, "access")
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return &ports.AuthClaims{
		UserID:  userID,
		Email:   claims.Email,
		IsAdmin: claims.IsAdmin,
	}, nil
}

func (s *Service) GetUser(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
	}
	return user, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !VerifyPassword(oldPassword, user.PasswordHash) {
		return fmt.Errorf("%w: current password incorrect", domain.ErrUnauthorized)
	}
	if len(newPassword) < 8 {
		return domain.ValidationError("password must be at least 8 characters")
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	s.recordAudit(ctx, &user.ID, user.Email, "auth.password_changed", "")
	return nil
}

// EnsureAdmin creates the bootstrap admin account when no admin exists yet.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	count, err := s.users.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if name == "" {
		name = "Administrator"
	}
	admin := &domain.User{
		Name:         name,
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.log.Info("Bootstrap admin created", zap.String("email", admin.Email))
	return nil
}

func (s *Service) tokenPair(user *domain.User) (*ports.TokenPair, error) {
	access, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.GenerateRefreshToken(user)
	if err != nil {
		return nil, err
	}
	return &ports.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokens.accessDuration.Seconds()),
	}, nil
}

func (s *Service) sendWelcome(ctx context.Context, user *domain.User) {
	if s.mailer == nil {
		return
	}
	body := fmt.Sprintf("<p>Hi %s,</p><p>Your ChargeNet account is ready. Top up your wallet and find a charger in the app.</p>", user.Name)
	if err := s.mailer.Send(ctx, user.Email, "Welcome to ChargeNet", body, true); err != nil {
		s.log.Warn("Failed to send welcome mail", zap.String("email", user.Email), zap.Error(err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID *uint, email, action, clientIP string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, &domain.AuditLog{
		ActorID:    actorID,
		ActorEmail: email,
		Action:     action,
		EntityType: "auth",
		ClientIP:   clientIP,
		CreatedAt:  s.clock.Now(),
	})
}
