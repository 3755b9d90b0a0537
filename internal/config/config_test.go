package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "650ms")
	assert.Equal(t, 650*time.Millisecond, getEnvDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "15")
	assert.Equal(t, 15*time.Second, getEnvDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "soon")
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION", time.Second))
}

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins(""))
	assert.Equal(t, []string{"http://a", "http://b"}, parseOrigins(" http://a, ,http://b "))
}

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 2*time.Second, cfg.JitterThreshold)
	assert.Equal(t, 60.0, cfg.DefaultPassScore)
}

func TestLoadClientRejectsBadURL(t *testing.T) {
	t.Setenv("BASE_URL", "not a url")
	_, err := LoadClient()
	assert.Error(t, err)
}

func TestLoadServerValidation(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	_, err := LoadServer()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "a-long-enough-test-secret")
	t.Setenv("REFRESH_EXPIRY_HOURS", "1")
	t.Setenv("JWT_EXPIRY_MINUTES", "120")
	_, err = LoadServer()
	assert.Error(t, err, "refresh expiry must outlive the access token")

	t.Setenv("JWT_EXPIRY_MINUTES", "15")
	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.JWTExpiry)
}
