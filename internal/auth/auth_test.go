package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hivetrade/oms-api/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	service := NewService("test-secret", db)
	service.RegisterAPICredentials(TestAPIKey, TestAPISecret)
	return service
}

func TestGenerateToken_ValidCredentials(t *testing.T) {
	service := newTestService(t)

	resp, err := service.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: TestAPISecret})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), resp.Expiration, time.Minute)

	claims, err := service.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, TestAPIKey, claims.ClientID)
	assert.Contains(t, claims.Permissions, "trade")
}

func TestGenerateToken_InvalidCredentials(t *testing.T) {
	service := newTestService(t)

	_, err := service.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = service.GenerateToken(Credentials{APIKey: "unknown", APISecret: TestAPISecret})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	service := newTestService(t)
	resp, err := service.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: TestAPISecret})
	require.NoError(t, err)

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "other.db"))
	require.NoError(t, err)
	other := NewService("different-secret", db)

	_, err = other.ValidateToken(resp.Token)
	assert.Error(t, err)
}

func TestEnsureSessionOwner_FirstUseBinds(t *testing.T) {
	service := newTestService(t)

	// First use of a session id binds it to the caller.
	require.NoError(t, service.EnsureSessionOwner("sess-1", "client-a"))

	// Repeated use by the owner succeeds.
	require.NoError(t, service.EnsureSessionOwner("sess-1", "client-a"))

	// Any other client is rejected.
	err := service.EnsureSessionOwner("sess-1", "client-b")
	assert.ErrorIs(t, err, ErrSessionForbidden)
}

func TestEnsureSessionOwner_IndependentSessions(t *testing.T) {
	service := newTestService(t)

	require.NoError(t, service.EnsureSessionOwner("sess-a", "client-a"))
	require.NoError(t, service.EnsureSessionOwner("sess-b", "client-b"))

	assert.ErrorIs(t, service.EnsureSessionOwner("sess-b", "client-a"), ErrSessionForbidden)
	assert.ErrorIs(t, service.EnsureSessionOwner("sess-a", "client-b"), ErrSessionForbidden)
}
