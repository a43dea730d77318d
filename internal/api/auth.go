package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	errMissingToken = errors.New("missing authorization token")
	errInvalidToken = errors.New("invalid or expired token")
)

// authenticator accepts either a signed JWT or a static API key whose
// bcrypt hash is configured. With neither configured it runs in dev mode
// and accepts everything.
type authenticator struct {
	jwtSecret  []byte
	apiKeyHash string
}

func newAuthenticator(jwtSecret []byte, apiKeyHash string) *authenticator {
	return &authenticator{jwtSecret: jwtSecret, apiKeyHash: apiKeyHash}
}

func (a *authenticator) devMode() bool {
	return len(a.jwtSecret) == 0 && a.apiKeyHash == ""
}

// authenticate checks the Authorization header (Bearer <jwt-or-key>).
// The websocket tail also passes ?token= via authenticateToken.
func (a *authenticator) authenticate(r *http.Request) error {
	if a.devMode() {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return errMissingToken
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return errInvalidToken
	}
	return a.authenticateToken(token)
}

func (a *authenticator) authenticateToken(token string) error {
	if a.devMode() {
		return nil
	}
	if len(a.jwtSecret) > 0 && a.validateJWT(token) == nil {
		return nil
	}
	if a.apiKeyHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(a.apiKeyHash), []byte(token)) == nil {
			return nil
		}
	}
	return errInvalidToken
}

type apiClaims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

func (a *authenticator) validateJWT(tokenStr string) error {
	token, err := jwt.ParseWithClaims(tokenStr, &apiClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return errInvalidToken
	}
	if !token.Valid {
		return errInvalidToken
	}
	return nil
}

// GenerateToken creates a signed JWT for a client, used by operators to
// mint access tokens from the CLI.
func GenerateToken(subject string, secret []byte, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := apiClaims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
