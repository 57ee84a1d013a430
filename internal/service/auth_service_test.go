package service

import (
	"context"
	"histomicsui/hui-server/internal/repository/memory"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	auth := NewAuthService(db.Users(), "secret", time.Hour)

	user, err := auth.Register(ctx, "admin", "admin@example.com", "password", true)
	require.NoError(t, err)
	assert.Empty(t, user.PasswordHash)

	_, err = auth.Register(ctx, "admin", "other@example.com", "password", false)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	token, loggedIn, err := auth.Login(ctx, "admin", "password")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.Empty(t, loggedIn.PasswordHash)

	claims, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.True(t, claims.Admin)

	_, _, err = auth.Login(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, _, err = auth.Login(ctx, "nobody", "password")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthService_ParseToken(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	auth := NewAuthService(db.Users(), "secret", time.Hour)
	other := NewAuthService(db.Users(), "other-secret", time.Hour)

	_, err := auth.Register(ctx, "user", "user@example.com", "password", false)
	require.NoError(t, err)
	token, _, err := auth.Login(ctx, "user", "password")
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	assert.Error(t, err)
	_, err = auth.ParseToken("not.a.token")
	assert.Error(t, err)

	claims, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.False(t, claims.Admin)
}
