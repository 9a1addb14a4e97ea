// Package auth guards the training endpoint with a shared secret.
//
// Clients present the secret itself in "X-API-Key" header, or a JWS signed
// with the secret (HS256) as "Authorization: Bearer <token>".
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	apierr "github.com/opst/sealparams/pkg/api/types/errors"
)

const HeaderAPIKey = "X-API-Key"

var (
	ErrNoCredential  = errors.New("no credential")
	ErrInvalidKey    = errors.New("invalid api key")
	ErrInvalidToken  = errors.New("invalid token")
	ErrNotConfigured = errors.New("no secret is configured")
)

// NewJWS signs claims with secret.
func NewJWS(secret string, claims jwt.Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(secret))
}

// VerifyJWS verifies token with secret and returns its claims.
//
// Tokens without "exp" are accepted. Expired ones are not.
func VerifyJWS(secret string, token string) (*jwt.RegisteredClaims, error) {
	claims := new(jwt.RegisteredClaims)
	_, err := jwt.ParseWithClaims(
		token, claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return claims, nil
}

// Verify checks credentials in the header of req.
func Verify(secret string, req *http.Request) error {
	if secret == "" {
		return ErrNotConfigured
	}

	if key := req.Header.Get(HeaderAPIKey); key != "" {
		if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
			return ErrInvalidKey
		}
		return nil
	}

	authz := req.Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return ErrNoCredential
	}
	_, err := VerifyJWS(secret, strings.TrimSpace(token))
	return err
}

// Middleware rejects requests without valid credentials with 401.
func Middleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := Verify(secret, c.Request()); err != nil {
				return apierr.Unauthorized(err)
			}
			return next(c)
		}
	}
}
