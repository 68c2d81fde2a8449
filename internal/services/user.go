package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"circles-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const jwtExpDays = 365

// UserService handles user registration and token issuance. The
// authentication protocol itself is delegated to the identity layer;
// this service only mints and checks session tokens.
type UserService struct {
	users     UserDirectory
	jwtSecret string
}

// NewUserService creates a new user service.
func NewUserService(users UserDirectory, jwtSecret string) *UserService {
	return &UserService{
		users:     users,
		jwtSecret: jwtSecret,
	}
}

// GenerateJWT generates a JWT token for a user.
func (s *UserService) GenerateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the user ID.
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return "", fmt.Errorf("user_id not found in token")
	}

	return userID, nil
}

// Register creates a new user with a unique username and returns the
// user along with a session token.
func (s *UserService) Register(ctx context.Context, username, email, displayName string) (*models.User, string, error) {
	if username == "" {
		return nil, "", fmt.Errorf("username is required: %w", models.ErrConflict)
	}

	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return nil, "", fmt.Errorf("username %s is taken: %w", username, models.ErrConflict)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, "", err
	}

	user := &models.User{
		ID:          uuid.New().String(),
		Username:    username,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.GenerateJWT(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// GetUser retrieves a user by ID.
func (s *UserService) GetUser(ctx context.Context, uid string) (*models.User, error) {
	return s.users.GetByID(ctx, uid)
}

// UpdatePushToken stores the device push token for a user.
func (s *UserService) UpdatePushToken(ctx context.Context, uid string, pushToken *string) error {
	return s.users.UpdatePushToken(ctx, uid, pushToken)
}

// SetAutoAcceptInvites updates the user's auto-accept toggle.
func (s *UserService) SetAutoAcceptInvites(ctx context.Context, uid string, enabled bool) error {
	return s.users.SetAutoAcceptInvites(ctx, uid, enabled)
}
