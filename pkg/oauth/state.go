package oauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultStateTTL = 10 * time.Minute

var ErrInvalidState = errors.New("invalid oauth state")

// StatePayload is carried through the provider round trip so the callback
// needs no server-side session.
type StatePayload struct {
	UserId    string
	ReturnUrl string
	Provider  string
}

type stateClaims struct {
	UserId    string `json:"uid"`
	ReturnUrl string `json:"ret"`
	Provider  string `json:"prv"`
	jwt.RegisteredClaims
}

// StateCodec signs and verifies state tokens
type StateCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewStateCodec(secret string, ttl time.Duration) *StateCodec {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *StateCodec) Encode(p StatePayload) (string, error) {
	now := s.now()
	claims := stateClaims{
		UserId:    p.UserId,
		ReturnUrl: p.ReturnUrl,
		Provider:  p.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Decode verifies signature and expiry. Every failure is ErrInvalidState.
func (s *StateCodec) Decode(token string) (*StatePayload, error) {
	if token == "" {
		return nil, ErrInvalidState
	}

	parsed, err := jwt.ParseWithClaims(token, &stateClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	claims, ok := parsed.Claims.(*stateClaims)
	if !ok || !parsed.Valid || claims.UserId == "" {
		return nil, ErrInvalidState
	}

	return &StatePayload{UserId: claims.UserId, ReturnUrl: claims.ReturnUrl, Provider: claims.Provider}, nil
}

// NormalizeReturnUrl accepts a same-origin path or an absolute http(s) URL.
// Empty becomes "/".
func NormalizeReturnUrl(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "/", nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid return url: %w", err)
	}

	if u.Scheme == "" && u.Host == "" {
		if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
			return "", fmt.Errorf("invalid return url: %q", raw)
		}
		return raw, nil
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid return url: %q", raw)
	}
	return u.String(), nil
}

// AppendQuery adds key=value to rawURL, keeping any existing query.
func AppendQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
