// Package auth issues and verifies the bearer tokens that identify API callers, and hashes
// account passwords. Tokens are HS256 JWTs signed with TM_JWT_SECRET and carry everything
// authorization needs, so requests never hit the database to resolve the actor.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/task-manager/task-manager/internal/authz"
	"github.com/task-manager/task-manager/internal/db/models"
)

// SecretEnvVar names the environment variable holding the signing secret
const SecretEnvVar = "TM_JWT_SECRET"

// DefaultTokenTTL is used when GenerateJWT is called with a zero lifetime
const DefaultTokenTTL = 24 * time.Hour

const issuer = "task-manager"

// ErrInvalidToken is returned for tokens that fail parsing, signature or claim checks
var ErrInvalidToken = errors.New("invalid token")

var (
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// Claims are the JWT claims issued at login
type Claims struct {
	UserID         string      `json:"sub_id"`
	Email          string      `json:"email"`
	Role           models.Role `json:"role"`
	OrganizationID string      `json:"org_id"`
	jwt.RegisteredClaims
}

// Actor reduces the claims to the authorization subject
func (c *Claims) Actor() authz.Actor {
	return authz.Actor{ID: c.UserID, OrganizationID: c.OrganizationID, Role: c.Role}
}

func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	return devMode == "true" || devMode == "1" || os.Getenv("GIN_MODE") == "debug"
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// ValidateJWTSecret loads the signing secret once. Outside dev mode a missing secret is
// fatal; in dev mode a random secret is generated and tokens do not survive restarts.
// Call this at startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv(SecretEnvVar)
		switch {
		case secret == "" && isDevMode():
			jwtSecret = randomSecret()
			slog.Warn("JWT secret not set, using a generated development secret", "env", SecretEnvVar)
		case secret == "":
			jwtSecretErr = fmt.Errorf("%s is required outside dev mode; generate one with: openssl rand -hex 32", SecretEnvVar)
		default:
			if len(secret) < 32 {
				slog.Warn("JWT secret is shorter than 32 characters", "env", SecretEnvVar)
			}
			jwtSecret = secret
		}
	})
	return jwtSecretErr
}

// GetJWTSecret returns the signing secret, loading it on first use. It panics when no
// secret can be loaded.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateJWT signs a token for u that expires after ttl
func GenerateJWT(u *models.User, ttl time.Duration) (string, error) {
	if u == nil {
		return "", errors.New("cannot issue a token without a user")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := &Claims{
		UserID:         u.ID,
		Email:          u.Email,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   u.ID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(GetJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateJWT parses a token and checks signature, expiry, issuer and the custom claims
func ValidateJWT(tokenString string) (*Claims, error) {
	secret := GetJWTSecret()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.OrganizationID == "" || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}
	return claims, nil
}
