package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodalkv/nodal/internal/kverrors"
)

func TestLoadDefaultsWithTokenFromFlag(t *testing.T) {
	cfg, err := Load("", []string{"--token", "secret"})
	require.NoError(t, err)
	assert.Equal(t, 8085, cfg.Port)
	assert.Equal(t, "secret", cfg.Token)
}

func TestLoadRequiresToken(t *testing.T) {
	_, err := Load("", nil)
	assert.True(t, errors.Is(err, kverrors.ErrValidation))
}

func TestLoadPrecedenceFlagsOverrideEnv(t *testing.T) {
	t.Setenv("NODAL_PORT", "9000")
	t.Setenv("NODAL_TOKEN", "env-token")

	cfg, err := Load("", []string{"--port", "9100"})
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "env-token", cfg.Token)
}

func TestLoadPrecedenceEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nodal.hujson")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// trailing comma and comments are fine, it's hujson
		"port": 7000,
		"token": "file-token",
	}`), 0644))

	t.Setenv("NODAL_TOKEN", "env-token")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "env-token", cfg.Token)
}

func TestLoadComputesTokenDigest(t *testing.T) {
	cfg, err := Load("", []string{"--token", "abc"})
	require.NoError(t, err)
	assert.NotEqual(t, [32]byte{}, cfg.TokenDigest)
}
