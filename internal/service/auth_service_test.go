package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

func newAuthService(t *testing.T, accessTTL time.Duration) *AuthService {
	t.Helper()
	cfg := &config.Server{
		JWTSecret:     "test-secret-of-sufficient-length",
		JWTExpiry:     accessTTL,
		RefreshExpiry: time.Hour,
		BcryptCost:    4,
	}
	svc := NewAuthService(cfg, nil, zerolog.Nop())
	students, err := repository.DefaultCatalog().HashedStudents(svc.HashPassword)
	require.NoError(t, err)
	repo, err := repository.NewMemoryStudentRepository(students)
	require.NoError(t, err)
	svc.students = repo
	return svc
}

func TestLoginIssuesTokenPair(t *testing.T) {
	svc := newAuthService(t, time.Minute)

	pair, err := svc.Login(context.Background(), "user1", "stemsijaya")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Token)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Minute), pair.ExpiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(pair.Token)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeStudent, claims.TokenType)
	assert.Equal(t, 1, claims.UserID)

	claims, err = svc.ValidateToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newAuthService(t, time.Minute)

	_, err := svc.Login(context.Background(), "user1", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "ghost", "stemsijaya")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRequiresRefreshToken(t *testing.T) {
	svc := newAuthService(t, time.Minute)
	ctx := context.Background()

	pair, err := svc.Login(ctx, "user2", "stemsijaya")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.Token)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(next.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, claims.UserID)
}

func TestValidateTokenReportsExpiry(t *testing.T) {
	svc := newAuthService(t, -time.Minute)

	pair, err := svc.Login(context.Background(), "user1", "stemsijaya")
	require.NoError(t, err)

	_, err = svc.ValidateToken(pair.Token)
	require.Error(t, err)
	assert.True(t, IsTokenExpired(err))
}
