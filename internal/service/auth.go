package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartconnect/auth-service/internal/audit"
	"github.com/smartconnect/auth-service/internal/hash"
	"github.com/smartconnect/auth-service/internal/models"
	"github.com/smartconnect/auth-service/internal/repo"
	"github.com/smartconnect/auth-service/internal/tokens"
	"github.com/smartconnect/auth-service/pkg/logging"
)

const (
	DefaultLockThreshold = 5
	DefaultLockDuration  = 30 * time.Minute
)

type UserStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, u *models.User) error
	SaveUser(ctx context.Context, u *models.User) error
}

type TokenLedger interface {
	FindRefreshByToken(ctx context.Context, token string) (*models.RefreshToken, error)
	CreateRefresh(ctx context.Context, record *models.RefreshToken) error
	RotateRefresh(ctx context.Context, oldToken string, newRecord *models.RefreshToken) error
	RevokeRefresh(ctx context.Context, token string) (int64, error)
}

type RevocationCache interface {
	Set(ctx context.Context, token string, ttl time.Duration)
	Contains(ctx context.Context, token string) bool
	Delete(ctx context.Context, token string)
}

type AuditPublisher interface {
	Publish(ctx context.Context, e audit.Event)
}

// AuthService is the session engine: it owns the login/lockout state
// machine, token issuance, refresh rotation and logout. It holds no
// in-process locks; concurrent requests coordinate through the database
// and the revocation cache.
type AuthService struct {
	Users     UserStore
	Ledger    TokenLedger
	Blacklist RevocationCache
	Audit     AuditPublisher
	Codec     *tokens.Codec

	LockThreshold int
	LockDuration  time.Duration
}

func New(users UserStore, ledger TokenLedger, cache RevocationCache, pub AuditPublisher, codec *tokens.Codec) *AuthService {
	return &AuthService{
		Users:         users,
		Ledger:        ledger,
		Blacklist:     cache,
		Audit:         pub,
		Codec:         codec,
		LockThreshold: DefaultLockThreshold,
		LockDuration:  DefaultLockDuration,
	}
}

type UserSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
}

type Result struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	User         UserSummary `json:"user"`
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Phone    string
	Role     string
}

func (s *AuthService) Login(ctx context.Context, identifier, password string) (*Result, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	user, err := s.Users.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		l.Warn("login_failed", "reason", "unknown_identifier")
		return nil, ErrInvalidCredentials
	}

	// An elapsed lock observed by a login attempt unlocks the account and
	// zeroes the counter before the attempt is evaluated.
	if user.LockedUntil != nil && user.LockedUntil.Before(time.Now()) {
		user.LockedUntil = nil
		user.FailedLoginAttempts = 0
		if err := s.Users.SaveUser(ctx, user); err != nil {
			return nil, fmt.Errorf("save user: %w", err)
		}
		l.Info("account_auto_unlocked", "username", user.Username)
	}

	// Lock and active checks come before the password comparison, so a
	// locked or inactive account never reveals whether the password matched.
	if user.LockedUntil != nil && time.Now().Before(*user.LockedUntil) {
		l.Warn("login_failed", "reason", "account_locked", "username", user.Username)
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		l.Warn("login_failed", "reason", "account_inactive", "username", user.Username)
		return nil, ErrAccountInactive
	}

	if !hash.CheckPassword(user.PasswordHash, password) {
		s.recordFailedLogin(ctx, l, user)
		s.Audit.Publish(ctx, audit.Event{
			Type:     "login_failed",
			UserID:   user.ID.String(),
			Username: user.Username,
		})
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now
	if err := s.Users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}

	res, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.Audit.Publish(ctx, audit.Event{
		Type:     "user_login",
		UserID:   user.ID.String(),
		Username: user.Username,
	})
	l.Info("login_successful", "username", user.Username)
	return res, nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if taken, err := s.Users.ExistsByUsername(ctx, in.Username); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	} else if taken {
		l.Warn("register_failed", "reason", "username_taken")
		return nil, &AlreadyExistsError{Field: "username"}
	}
	if taken, err := s.Users.ExistsByEmail(ctx, in.Email); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	} else if taken {
		l.Warn("register_failed", "reason", "email_taken")
		return nil, &AlreadyExistsError{Field: "email"}
	}

	role := in.Role
	if role == "" {
		role = models.RoleStudent
	}
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	pwHash, err := hash.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var phone *string
	if p := strings.TrimSpace(in.Phone); p != "" {
		phone = &p
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: pwHash,
		FullName:     in.FullName,
		Phone:        phone,
		Role:         role,
		IsActive:     true,
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	res, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.Audit.Publish(ctx, audit.Event{
		Type:     "user_registered",
		UserID:   user.ID.String(),
		Username: user.Username,
	})
	l.Info("register_successful", "username", user.Username)
	return res, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	record, err := s.Ledger.FindRefreshByToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if record == nil || record.Revoked {
		l.Warn("refresh_failed", "reason", "token_not_found_or_revoked")
		return nil, ErrInvalidToken
	}
	if time.Now().After(record.ExpiresAt) {
		l.Warn("refresh_failed", "reason", "token_expired")
		return nil, ErrInvalidToken
	}

	user, err := s.Users.FindByID(ctx, record.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		l.Warn("refresh_failed", "reason", "owner_missing")
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		l.Warn("refresh_failed", "reason", "account_inactive", "username", user.Username)
		return nil, ErrAccountInactive
	}

	access, err := s.Codec.MintAccess(user)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := s.Codec.MintRefresh(user)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}

	if err := s.Ledger.RotateRefresh(ctx, refreshToken, s.ledgerRow(user, refresh)); err != nil {
		if errors.Is(err, repo.ErrTokenRotated) {
			// Lost a race with a concurrent refresh on the same token.
			l.Warn("refresh_failed", "reason", "token_already_rotated")
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	l.Info("refresh_successful", "username", user.Username)
	return s.buildResult(user, access, refresh), nil
}

// Logout blacklists the access token for its remaining lifetime and revokes
// the refresh ledger row. Both steps are best effort and independent;
// logout always succeeds from the caller's perspective.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if accessToken != "" {
		if exp, err := s.Codec.ExtractExpiry(accessToken); err != nil {
			l.Warn("logout_blacklist_skipped", "reason", "token_unparseable", "error", err)
		} else if ttl := time.Until(exp); ttl > 0 {
			s.Blacklist.Set(ctx, accessToken, ttl)
			l.Debug("access_token_blacklisted", "ttl_ms", ttl.Milliseconds())
		}
	}

	if refreshToken != "" {
		n, err := s.Ledger.RevokeRefresh(ctx, refreshToken)
		switch {
		case err != nil:
			l.Error("logout_revoke_failed", "error", err)
		case n > 0:
			s.Audit.Publish(ctx, audit.Event{Type: "user_logout"})
			l.Info("logout_successful")
		}
	}
}

// VerifyAccessToken is the request-authentication entry point: signature
// and expiry via the codec, then the revocation cache.
func (s *AuthService) VerifyAccessToken(ctx context.Context, raw string) (*tokens.AccessClaims, error) {
	claims, err := s.Codec.Verify(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if s.Blacklist.Contains(ctx, raw) {
		logging.FromContext(ctx).Warn("blacklisted_token_rejected", "subject", claims.Subject)
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Unblock removes an access token from the revocation cache.
func (s *AuthService) Unblock(ctx context.Context, accessToken string) {
	s.Blacklist.Delete(ctx, accessToken)
}

func (s *AuthService) recordFailedLogin(ctx context.Context, l *slog.Logger, user *models.User) {
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= s.LockThreshold {
		until := time.Now().Add(s.LockDuration)
		user.LockedUntil = &until
		l.Warn("account_locked", "username", user.Username, "attempts", user.FailedLoginAttempts)
	} else {
		l.Warn("login_failed", "reason", "wrong_password", "username", user.Username, "attempts", user.FailedLoginAttempts)
	}
	if err := s.Users.SaveUser(ctx, user); err != nil {
		l.Error("save_failed_login", "error", err)
	}
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User) (*Result, error) {
	access, err := s.Codec.MintAccess(user)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := s.Codec.MintRefresh(user)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	if err := s.Ledger.CreateRefresh(ctx, s.ledgerRow(user, refresh)); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}
	return s.buildResult(user, access, refresh), nil
}

func (s *AuthService) ledgerRow(user *models.User, refresh string) *models.RefreshToken {
	return &models.RefreshToken{
		Token:     refresh,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.Codec.RefreshTTL),
	}
}

func (s *AuthService) buildResult(user *models.User, access, refresh string) *Result {
	return &Result{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Codec.AccessTTL.Seconds()),
		User: UserSummary{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			Role:     user.Role,
		},
	}
}
