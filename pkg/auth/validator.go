package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doxen-app/doxen/pkg/types"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator turns a bearer token into the caller's identity.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*types.AuthInfo, error)
}

// Claims are the identity token claims issued by the auth backend. The
// subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator validates HS256 identity tokens
type JWTValidator struct {
	secret []byte
	issuer string
}

var _ TokenValidator = (*JWTValidator)(nil)

func NewJWTValidator(cfg types.AuthConfig) *JWTValidator {
	return &JWTValidator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

func (v *JWTValidator) ValidateToken(ctx context.Context, token string) (*types.AuthInfo, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("auth: jwt secret not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return &types.AuthInfo{UserId: claims.Subject, Email: claims.Email}, nil
}

// IssueToken signs an identity token. Used by the CLI and tests.
func IssueToken(secret, userId, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userId,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
