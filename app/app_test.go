package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaidimu/go-quire/config"
)

func TestGetDefaults(t *testing.T) {
	t.Setenv("QUIRE_HOME", "/srv/quire")
	t.Setenv("QUIRE_CONFIG_PATH", "")

	d, err := GetDefaults()
	require.NoError(t, err)
	assert.Equal(t, "/srv/quire", d.DataDir)
	assert.Equal(t, filepath.Join("/srv/quire", config.FileName), d.ConfigPath)

	t.Setenv("QUIRE_CONFIG_PATH", "/etc/quire.toml")
	d, err = GetDefaults()
	require.NoError(t, err)
	assert.Equal(t, "/etc/quire.toml", d.ConfigPath)
}

func TestNewOpensEncryptedStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig(t.TempDir())
	cfg.Encryption.Enabled = true
	cfg.Encryption.PassphraseEnv = "QUIRE_TEST_PASSPHRASE"
	t.Setenv("QUIRE_TEST_PASSPHRASE", "")

	prompts := 0
	prompt := func() (string, error) {
		prompts++
		return "correct horse", nil
	}

	a, err := New(ctx, cfg, prompt)
	require.NoError(t, err)
	assert.Equal(t, 1, prompts)

	cols, err := a.Store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, cols)
	require.NoError(t, a.Close())

	_, err = New(ctx, cfg, func() (string, error) { return "wrong", nil })
	assert.Error(t, err)

	_, err = New(ctx, cfg, func() (string, error) { return "", errors.New("no tty") })
	assert.Error(t, err)
}
