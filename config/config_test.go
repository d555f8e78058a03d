package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "/antisocial", cfg.APIPrefix)
	assert.Equal(t, "sqlite", cfg.DatabaseMode)
	assert.Equal(t, 10*time.Second, cfg.PeerTimeout)
	assert.True(t, cfg.ConnectOnAccept)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PUBLIC_HOST", "https://fed.example.com/")
	t.Setenv("BEHIND_PROXY", "true")
	t.Setenv("PEER_TIMEOUT", "3s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "https://fed.example.com", cfg.PublicHost)
	assert.True(t, cfg.BehindProxy)
	assert.Equal(t, 3*time.Second, cfg.PeerTimeout)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}
