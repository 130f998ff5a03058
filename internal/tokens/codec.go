package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/smartconnect/auth-service/internal/models"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Codec signs and verifies access/refresh tokens with a single shared
// HS256 secret. The secret is set once at startup and never rotates.
type Codec struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c *Codec) MintAccess(user *models.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   user.Role,
		Nonce:  uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.AccessTTL)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.Secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (c *Codec) MintRefresh(user *models.User) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UserID:    user.ID.String(),
		TokenType: TypeRefresh,
		Nonce:     uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.RefreshTTL)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.Secret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of an access token. It returns
// ErrTokenExpired for a well-formed but expired token and ErrTokenInvalid
// for anything malformed or signed with the wrong key.
func (c *Codec) Verify(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	t, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !t.Valid {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// ExtractSubject reads the subject claim without verifying the signature.
func (c *Codec) ExtractSubject(raw string) (string, error) {
	claims, err := parseUnverified(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractExpiry reads the expiry claim without verifying the signature.
// The blacklist uses it to compute the remaining TTL of a token.
func (c *Codec) ExtractExpiry(raw string) (time.Time, error) {
	claims, err := parseUnverified(raw)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrTokenInvalid
	}
	return claims.ExpiresAt.Time, nil
}

func parseUnverified(raw string) (*jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}
