package services

import (
	"context"
	"testing"

	"circles-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	users := newFakeUserDirectory()
	svc := NewUserService(users, "test-secret")

	user, tok, err := svc.Register(context.Background(), "alice", "alice@example.com", "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, tok)

	uid, err := svc.ValidateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, user.ID, uid)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	users := newFakeUserDirectory()
	svc := NewUserService(users, "test-secret")

	_, _, err := svc.Register(context.Background(), "alice", "", "")
	require.NoError(t, err)

	_, _, err = svc.Register(context.Background(), "alice", "", "")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestRegisterEmptyUsername(t *testing.T) {
	svc := NewUserService(newFakeUserDirectory(), "test-secret")

	_, _, err := svc.Register(context.Background(), "", "", "")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestValidateJWTRejectsWrongSecret(t *testing.T) {
	users := newFakeUserDirectory()
	svc := NewUserService(users, "test-secret")
	_, tok, err := svc.Register(context.Background(), "alice", "", "")
	require.NoError(t, err)

	other := NewUserService(users, "other-secret")
	_, err = other.ValidateJWT(tok)
	assert.Error(t, err)
}
