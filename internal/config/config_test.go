package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dovakin0007.com/notebook-grpc/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 9096, cfg.Port)
	assert.Equal(t, config.StorePostgres, cfg.Store)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, ":9096", cfg.ListenAddr())
	assert.Equal(t, "localhost:9096", cfg.ServerAddr)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOTEBOOK_PORT=7000\nNOTEBOOK_STORE=memory\nKERNEL_TIMEOUT=2s\n"), 0o600))
	t.Setenv("NOTEBOOK_PORT", "7100")
	t.Setenv("NOTEBOOK_ADDR", "notebooks.internal:7100")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Port)
	assert.Equal(t, config.StoreMemory, cfg.Store)
	assert.Equal(t, 2*time.Second, cfg.KernelTimeout)
	assert.Equal(t, "notebooks.internal:7100", cfg.ServerAddr)
}

func TestLoadMissingFileIsFine(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("NOTEBOOK_STORE", "sqlite")
	t.Setenv("REQUEST_TIMEOUT", "0s")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTEBOOK_STORE")
	assert.Contains(t, err.Error(), "REQUEST_TIMEOUT")
}
