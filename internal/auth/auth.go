// Package auth issues and verifies session tokens and hashes passwords.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/oggyb/blinddate/internal/config"
	"github.com/oggyb/blinddate/internal/db"
)

// Audiences keep app sessions and admin sessions from being swapped.
const (
	AudienceApp   = "app"
	AudienceAdmin = "admin"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is what a session token carries about its holder.
type Claims struct {
	Email  string  `json:"email"`
	Role   db.Role `json:"role"`
	Locale string  `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

// UserID is the token subject.
func (c *Claims) UserID() string { return c.Subject }

// TokenService signs HS256 tokens with a single shared secret.
type TokenService struct {
	secret   []byte
	appTTL   time.Duration
	adminTTL time.Duration
	now      func() time.Time
}

// NewTokenService builds the service from the Auth config section.
func NewTokenService(cfg *config.Config) (*TokenService, error) {
	if cfg.Auth.Secret == "" {
		return nil, errors.New("auth secret must be provided")
	}
	return &TokenService{
		secret:   []byte(cfg.Auth.Secret),
		appTTL:   cfg.Auth.SessionTTL,
		adminTTL: cfg.Auth.AdminSessionTTL,
		now:      time.Now,
	}, nil
}

// TTL returns the lifetime of tokens for the audience.
func (s *TokenService) TTL(audience string) time.Duration {
	if audience == AudienceAdmin {
		return s.adminTTL
	}
	return s.appTTL
}

// Issue signs a token for the user.
func (s *TokenService) Issue(u *db.User, audience string) (string, error) {
	if u == nil || u.ID == "" {
		return "", errors.New("required inputs are missing to generate token")
	}
	now := s.now()
	claims := Claims{
		Email:  u.Email,
		Role:   u.Role,
		Locale: u.Locale,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL(audience))),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses the token, accepting a "Bearer " prefix, and checks the
// signature, expiry and audience.
func (s *TokenService) Verify(tokenString, audience string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if len(tokenString) > 7 && strings.EqualFold(tokenString[:7], "bearer ") {
		tokenString = strings.TrimSpace(tokenString[7:])
	}
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		// Ensure the signing method is what we expect.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
