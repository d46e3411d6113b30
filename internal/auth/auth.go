package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xtrntr/papertrade/internal/apperr"
	"github.com/xtrntr/papertrade/internal/ledger"
	"github.com/xtrntr/papertrade/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// TokenTTL is how long a session token stays valid
const TokenTTL = 24 * time.Hour

// AuthService handles user registration and authentication
type AuthService struct {
	Users        ledger.Users
	Secret       []byte
	StartingCash decimal.Decimal
	Now          func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(users ledger.Users, secret []byte, startingCash decimal.Decimal) *AuthService {
	return &AuthService{Users: users, Secret: secret, StartingCash: startingCash, Now: time.Now}
}

// Register creates a new user with hashed password and the starting cash balance
func (s *AuthService) Register(ctx context.Context, username, password, experience string) (*models.User, error) {
	username = strings.TrimSpace(username)
	experience = strings.TrimSpace(experience)

	// Validate input
	if username == "" {
		return nil, apperr.New(apperr.InvalidInput, "must provide username")
	}
	if password == "" {
		return nil, apperr.New(apperr.InvalidInput, "must provide password")
	}
	if experience == "" {
		return nil, apperr.New(apperr.InvalidInput, "must provide experience")
	}
	if len(username) > 50 {
		return nil, apperr.New(apperr.InvalidInput, "username too long (max 50 characters)")
	}
	if len(password) > 72 {
		return nil, apperr.New(apperr.InvalidInput, "password too long (max 72 characters)")
	}
	if len(experience) > 50 {
		return nil, apperr.New(apperr.InvalidInput, "experience too long (max 50 characters)")
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.Users.CreateUser(ctx, username, string(hashedPassword), experience, s.StartingCash)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a signed session token
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	failed := apperr.New(apperr.AuthenticationFailed, "invalid username and/or password")

	user, err := s.Users.UserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ledger.ErrUserNotFound) {
		return "", failed
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", failed
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(TokenTTL).Unix(),
		"jti":      uuid.NewString(),
	})

	tokenString, err := token.SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// UserFromToken validates a session token and returns its user id
func (s *AuthService) UserFromToken(tokenString string) (int, error) {
	unauthenticated := apperr.New(apperr.Unauthenticated, "invalid or expired session")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, unauthenticated
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, unauthenticated
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, unauthenticated
	}
	return int(userID), nil
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
