package auth

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/task-manager/task-manager/internal/db/models"
)

const testSecret = "test-jwt-secret-that-is-32-chars-!"

// resetJWTSecret clears the cached secret so a test can load a different one
func resetJWTSecret() {
	jwtSecret = ""
	jwtSecretOnce = sync.Once{}
	jwtSecretErr = nil
}

func TestMain(m *testing.M) {
	os.Setenv(SecretEnvVar, testSecret)
	os.Exit(m.Run())
}

func testUser() *models.User {
	return &models.User{
		ID:             "user-123",
		Email:          "ada@example.com",
		Role:           models.RoleOrgAdmin,
		OrganizationID: "org-1",
	}
}

func signClaims(t *testing.T, claims *Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error: %v", err)
	}
	return token
}

// ---------------------------------------------------------------------------
// Secret loading
// ---------------------------------------------------------------------------

func TestValidateJWTSecret(t *testing.T) {
	t.Run("valid secret from env", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(SecretEnvVar, "exactly-32-char-secret-for-test!!")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error: %v", err)
		}
		if GetJWTSecret() != "exactly-32-char-secret-for-test!!" {
			t.Error("GetJWTSecret() did not return the env secret")
		}
	})

	t.Run("required outside dev mode", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(SecretEnvVar, "")
		t.Setenv("DEV_MODE", "")
		t.Setenv("GIN_MODE", "release")
		if err := ValidateJWTSecret(); err == nil {
			t.Error("ValidateJWTSecret() expected error without secret, got nil")
		}
	})

	t.Run("dev mode generates secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(SecretEnvVar, "")
		t.Setenv("DEV_MODE", "true")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error in dev mode: %v", err)
		}
		if len(GetJWTSecret()) != 64 {
			t.Errorf("generated secret length = %d, want 64 hex chars", len(GetJWTSecret()))
		}
	})

	resetJWTSecret()
}

// ---------------------------------------------------------------------------
// Generate / validate
// ---------------------------------------------------------------------------

func TestGenerateAndValidateJWT(t *testing.T) {
	resetJWTSecret()
	t.Setenv(SecretEnvVar, testSecret)

	t.Run("round trip", func(t *testing.T) {
		token, err := GenerateJWT(testUser(), time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}

		claims, err := ValidateJWT(token)
		if err != nil {
			t.Fatalf("ValidateJWT() error: %v", err)
		}
		if claims.UserID != "user-123" || claims.Email != "ada@example.com" {
			t.Errorf("claims identity = %q/%q", claims.UserID, claims.Email)
		}
		if claims.Role != models.RoleOrgAdmin || claims.OrganizationID != "org-1" {
			t.Errorf("claims role/org = %q/%q", claims.Role, claims.OrganizationID)
		}
		if claims.Issuer != "task-manager" || claims.Subject != "user-123" {
			t.Errorf("claims issuer/subject = %q/%q", claims.Issuer, claims.Subject)
		}

		actor := claims.Actor()
		if actor.ID != "user-123" || actor.OrganizationID != "org-1" || actor.Role != models.RoleOrgAdmin {
			t.Errorf("Actor() = %+v", actor)
		}
	})

	t.Run("default lifetime", func(t *testing.T) {
		token, err := GenerateJWT(testUser(), 0)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		claims, err := ValidateJWT(token)
		if err != nil {
			t.Fatalf("ValidateJWT() error: %v", err)
		}
		remaining := time.Until(claims.ExpiresAt.Time)
		if remaining < 23*time.Hour || remaining > 25*time.Hour {
			t.Errorf("default expiry remaining = %v, want ~24h", remaining)
		}
	})

	t.Run("nil user", func(t *testing.T) {
		if _, err := GenerateJWT(nil, time.Hour); err == nil {
			t.Error("GenerateJWT(nil) expected error")
		}
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		u := testUser()
		token := signClaims(t, &Claims{
			UserID: u.ID, Role: u.Role, OrganizationID: u.OrganizationID,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "task-manager",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		}, testSecret)
		if _, err := ValidateJWT(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ValidateJWT() error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("claims checks", func(t *testing.T) {
		future := jwt.NewNumericDate(time.Now().Add(time.Hour))
		tests := []struct {
			name   string
			claims *Claims
		}{
			{"wrong issuer", &Claims{UserID: "u", Role: models.RoleMember, OrganizationID: "o",
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", ExpiresAt: future}}},
			{"no expiry", &Claims{UserID: "u", Role: models.RoleMember, OrganizationID: "o",
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "task-manager"}}},
			{"unknown role", &Claims{UserID: "u", Role: "admin", OrganizationID: "o",
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "task-manager", ExpiresAt: future}}},
			{"missing organization", &Claims{UserID: "u", Role: models.RoleMember,
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "task-manager", ExpiresAt: future}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := ValidateJWT(signClaims(t, tt.claims, testSecret)); !errors.Is(err, ErrInvalidToken) {
					t.Errorf("ValidateJWT() error = %v, want ErrInvalidToken", err)
				}
			})
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		for _, s := range []string{"", "not.a.valid.token"} {
			if _, err := ValidateJWT(s); err == nil {
				t.Errorf("ValidateJWT(%q) expected error", s)
			}
		}
	})

	t.Run("different secret is rejected", func(t *testing.T) {
		u := testUser()
		token := signClaims(t, &Claims{
			UserID: u.ID, Role: u.Role, OrganizationID: u.OrganizationID,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "task-manager",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}, "completely-different-secret-32ch!")
		if _, err := ValidateJWT(token); err == nil {
			t.Error("ValidateJWT() expected error for foreign signature")
		}
	})
}
