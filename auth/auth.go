// Package auth issues and checks the HS256 bearer tokens that guard the
// operator API.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/wabridge/errx"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "wabridge"

var registry = errx.NewRegistry("AUTH")

var (
	ErrSecretMissing = registry.Register("SECRET_MISSING", errx.TypeConfig, http.StatusInternalServerError, "Token signing secret is not configured")
	ErrMissingToken  = registry.Register("MISSING_TOKEN", errx.TypeAuthentication, http.StatusUnauthorized, "Bearer token required")
	ErrInvalidToken  = registry.Register("INVALID_TOKEN", errx.TypeAuthentication, http.StatusUnauthorized, "Invalid token")
	ErrExpiredToken  = registry.Register("EXPIRED_TOKEN", errx.TypeAuthentication, http.StatusUnauthorized, "Token expired")
)

// Claims identify an operator
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and validates operator tokens with a shared secret
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService returns a service signing with secret. ttl is the
// default lifetime used when Issue gets zero.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, registry.New(ErrSecretMissing)
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for subject
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()
	expires := now.Add(ttl)

	claims := Claims{
		Scope: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, registry.NewWithCause(ErrInvalidToken, err)
	}
	return signed, expires, nil
}

// Validate parses and verifies a token. Only HS256 is accepted.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, registry.NewWithCause(ErrExpiredToken, err)
		}
		return nil, registry.NewWithCause(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, registry.New(ErrInvalidToken).WithDetail("reason", "missing subject")
	}
	return claims, nil
}

type claimsKey struct{}

// WithClaims stores claims on ctx
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims set by Middleware
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// Middleware rejects requests without a valid bearer token. Errors are
// written as errx JSON.
func Middleware(s *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				registry.New(ErrMissingToken).ToHTTP(w)
				return
			}
			claims, err := s.Validate(token)
			if err != nil {
				var xerr *errx.Error
				if errors.As(err, &xerr) {
					xerr.ToHTTP(w)
					return
				}
				registry.New(ErrInvalidToken).ToHTTP(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
