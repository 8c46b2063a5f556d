package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockfolio/stockfolio/internal/db"
	"github.com/stockfolio/stockfolio/internal/models"
)

var (
	// ErrInvalidCredentials covers unknown usernames and wrong passwords
	// alike; callers cannot tell which.
	ErrInvalidCredentials = errors.New("invalid username and/or password")

	// ErrInvalidInput is wrapped around registration validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// UserStore is the slice of the ledger store auth depends on
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// AuthService handles user registration and authentication
type AuthService struct {
	store    UserStore
	secret   []byte
	tokenTTL time.Duration
}

// NewAuthService creates a new auth service. The secret signs session tokens.
func NewAuthService(store UserStore, secret string) *AuthService {
	return &AuthService{
		store:    store,
		secret:   []byte(secret),
		tokenTTL: 24 * time.Hour,
	}
}

// Register creates a new user with hashed password
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password cannot be empty", ErrInvalidInput)
	}
	if len(username) > 50 {
		return nil, fmt.Errorf("%w: username too long (max 50 characters)", ErrInvalidInput)
	}
	if len(password) > 100 {
		return nil, fmt.Errorf("%w: password too long (max 100 characters)", ErrInvalidInput)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	// db.ErrDuplicateUsername passes through for the handler to map
	user, err := s.store.CreateUser(ctx, username, string(hashedPassword))
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and generates a session token
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.GenerateToken(user)
}

// GenerateToken signs a JWT for an authenticated user
func (s *AuthService) GenerateToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      time.Now().Add(s.tokenTTL).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// UserIDFromToken extracts the user ID from a session token
func (s *AuthService) UserIDFromToken(tokenString string) (int, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid token claims")
	}
	return int(userID), nil
}
