package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the kind of party a principal acts as.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// CookieName is the cookie the auth service sets on login.
const CookieName = "token"

var ErrUnauthorized = errors.New("unauthorized")

// Principal is a verified identity.
type Principal struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

func (p Principal) IsDoctor() bool { return p.Role == RoleDoctor }

// Verifier turns an opaque credential into a principal or rejects it.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Principal, error)
}

// Claims mirrors the token payload issued by the auth service.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"id"`
	Role   Role   `json:"role"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (v *JWTVerifier) Verify(_ context.Context, credential string) (Principal, error) {
	if credential == "" {
		return Principal{}, fmt.Errorf("%w: missing credential", ErrUnauthorized)
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(credential, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	if claims.UserID <= 0 {
		return Principal{}, fmt.Errorf("%w: token has no subject id", ErrUnauthorized)
	}
	switch claims.Role {
	case RolePatient, RoleDoctor:
	default:
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrUnauthorized, claims.Role)
	}

	return Principal{ID: claims.UserID, Role: claims.Role}, nil
}

// IssueToken signs a credential in the auth service's format. Used by the
// seed and simulate tools and by tests; the services themselves only verify.
func IssueToken(secret string, p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: p.ID,
		Role:   p.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// CredentialFromRequest returns the token cookie or, failing that, a bearer
// token from the Authorization header.
func CredentialFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
