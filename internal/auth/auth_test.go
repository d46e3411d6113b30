package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/papertrade/internal/apperr"
	"github.com/xtrntr/papertrade/internal/ledger"
)

var testSecret = []byte("test-secret")

func newService() (*AuthService, *ledger.MemoryStore) {
	store := ledger.NewMemoryStore()
	return NewAuthService(store, testSecret, decimal.RequireFromString("10000.00")), store
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		password    string
		experience  string
		expectError *apperr.Error
	}{
		{
			name:       "Success",
			username:   "alice",
			password:   "password123",
			experience: "beginner",
		},
		{
			name:        "EmptyUsername",
			username:    "  ",
			password:    "password123",
			experience:  "beginner",
			expectError: apperr.ErrInvalidInput,
		},
		{
			name:        "EmptyPassword",
			username:    "bob",
			password:    "",
			experience:  "beginner",
			expectError: apperr.ErrInvalidInput,
		},
		{
			name:        "EmptyExperience",
			username:    "bob",
			password:    "password123",
			expectError: apperr.ErrInvalidInput,
		},
		{
			name:        "DuplicateUsername",
			username:    "alice",
			password:    "newpass",
			experience:  "expert",
			expectError: apperr.ErrDuplicateUsername,
		},
		{
			name:        "LongUsername",
			username:    strings.Repeat("a", 1000),
			password:    "password123",
			experience:  "beginner",
			expectError: apperr.ErrInvalidInput,
		},
		{
			name:        "LongPassword",
			username:    "carol",
			password:    strings.Repeat("p", 73),
			experience:  "beginner",
			expectError: apperr.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := newService()
			ctx := context.Background()

			// For duplicate test, ensure the user exists first
			if tt.name == "DuplicateUsername" {
				if _, err := s.Register(ctx, "alice", "password123", "beginner"); err != nil {
					t.Fatalf("Failed to create user for duplicate test: %v", err)
				}
			}

			user, err := s.Register(ctx, tt.username, tt.password, tt.experience)
			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected %v, got %v", tt.expectError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user.Username != tt.username || user.Experience != tt.experience {
				t.Errorf("unexpected user %+v", user)
			}
			if user.Cash.StringFixed(2) != "10000.00" {
				t.Errorf("expected starting cash 10000.00, got %s", user.Cash.StringFixed(2))
			}

			stored, err := store.UserByUsername(ctx, tt.username)
			if err != nil {
				t.Fatalf("user not stored: %v", err)
			}
			if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(tt.password)); err != nil {
				t.Errorf("password hash mismatch")
			}
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	s, _ := newService()
	if _, err := s.Register(context.Background(), "alice", "password123", "beginner"); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name        string
		username    string
		password    string
		expectError bool
	}{
		{
			name:     "Success",
			username: "alice",
			password: "password123",
		},
		{
			name:        "WrongPassword",
			username:    "alice",
			password:    "wrongpass",
			expectError: true,
		},
		{
			name:        "NonExistentUser",
			username:    "bob",
			password:    "password123",
			expectError: true,
		},
		{
			name:        "LongPassword",
			username:    "alice",
			password:    strings.Repeat("p", 1000),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := s.Login(context.Background(), tt.username, tt.password)
			if tt.expectError {
				if !errors.Is(err, apperr.ErrAuthenticationFailed) {
					t.Errorf("expected authentication failure, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			// Verify token
			parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
				return testSecret, nil
			})
			if err != nil {
				t.Fatalf("invalid token: %v", err)
			}
			claims, ok := parsed.Claims.(jwt.MapClaims)
			if !ok || claims["username"] != "alice" {
				t.Errorf("invalid token claims")
			}
			if jti, _ := claims["jti"].(string); jti == "" {
				t.Errorf("expected a token id")
			}
		})
	}
}

func TestAuthService_Login_UniqueTokenIDs(t *testing.T) {
	s, _ := newService()
	s.Register(context.Background(), "alice", "password123", "beginner")

	a, err := s.Login(context.Background(), "alice", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	b, err := s.Login(context.Background(), "alice", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if a == b {
		t.Errorf("expected distinct tokens for separate logins")
	}
}

func TestAuthService_UserFromToken(t *testing.T) {
	s, _ := newService()
	s.Register(context.Background(), "alice", "password123", "beginner")
	token, _ := s.Login(context.Background(), "alice", "password123")

	expiredToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  float64(1),
		"username": "alice",
		"exp":      time.Now().Add(-time.Hour).Unix(),
	})
	expiredTokenStr, _ := expiredToken.SignedString(testSecret)
	invalidToken, _ := expiredToken.SignedString([]byte("wrong-key"))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": float64(1),
	}).SignedString(testSecret)

	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)

	tests := []struct {
		name         string
		token        string
		expectUserID int
		expectError  bool
	}{
		{
			name:         "Success",
			token:        token,
			expectUserID: 1,
		},
		{
			name:        "ExpiredToken",
			token:       expiredTokenStr,
			expectError: true,
		},
		{
			name:        "InvalidSignature",
			token:       invalidToken,
			expectError: true,
		},
		{
			name:        "MissingExpiry",
			token:       noExpiry,
			expectError: true,
		},
		{
			name:        "MissingUserID",
			token:       noUser,
			expectError: true,
		},
		{
			name:        "EmptyToken",
			token:       "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := s.UserFromToken(tt.token)
			if tt.expectError {
				if !errors.Is(err, apperr.ErrUnauthenticated) {
					t.Errorf("expected unauthenticated, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if userID != tt.expectUserID {
				t.Errorf("expected user ID %d, got %d", tt.expectUserID, userID)
			}
		})
	}
}
