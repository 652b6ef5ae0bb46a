package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_PartialOverrideFillsRemainingDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tasks_dir: /srv/tasks\nbudgets:\n  max_chars: 20000\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/tasks", cfg.TasksDir)
	assert.Equal(t, 20000, cfg.Budgets.MaxChars)
	assert.Equal(t, Defaults().Budgets.DefaultMaxChars, cfg.Budgets.DefaultMaxChars, "unset fields fall back to Defaults()")
	assert.Equal(t, Defaults().Retention, cfg.Retention)
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not_a_real_field: true\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsOutOfRangeBudget(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("budgets:\n  max_chars: 999999\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateSettings_Valid(t *testing.T) {
	t.Parallel()

	err := ValidateSettings(map[string]any{"tasks_dir": "/srv/tasks"})
	assert.NoError(t, err)
}
