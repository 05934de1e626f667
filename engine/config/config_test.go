package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "coverage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
bake:
  resolution: 512
  blur_radius: 2
sampling:
  capacity: 64
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 512, cfg.Bake.Resolution)
	require.Equal(t, 2, cfg.Bake.BlurRadius)
	require.Equal(t, 64, cfg.Sampling.Capacity)
	require.Equal(t, Default().Mesh, cfg.Mesh)
	require.Equal(t, Default().Bake.MipLevels, cfg.Bake.MipLevels)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, "mesh:\n  max_cell_size: 16\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, float32(16), cfg.Mesh.MaxCellSize)
}

func TestLoadWithoutPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "bake: [1, 2"))
	require.True(t, errors.IsType(err, ErrTypeInvalid))

	_, err = Load(writeConfig(t, "bake:\n  resolution: 0\n"))
	require.True(t, errors.IsType(err, ErrTypeInvalid))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Mesh.MaxCellSize = 0.5
	require.True(t, errors.IsType(cfg.Validate(), ErrTypeInvalid))

	cfg = Default()
	cfg.Sampling.DispatchInterval = 0
	require.True(t, errors.IsType(cfg.Validate(), ErrTypeInvalid))
}
