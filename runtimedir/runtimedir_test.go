package runtimedir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeekPortsReturnsDistinctPorts(t *testing.T) {
	ports, err := PeekPorts("127.0.0.1", 5)
	require.NoError(t, err)
	require.Len(t, ports, 5)
	seen := make(map[int]bool)
	for _, p := range ports {
		assert.False(t, seen[p], "duplicate port %d", p)
		assert.Greater(t, p, 0)
		seen[p] = true
	}
}

func TestDirPrefersJupyterRuntimeDirEnv(t *testing.T) {
	t.Setenv("JUPYTER_RUNTIME_DIR", "/tmp/explicit-runtime")
	dir, err := Dir(nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/explicit-runtime", dir)
}

func TestDirFallsBackToXDGRuntimeDir(t *testing.T) {
	t.Setenv("JUPYTER_RUNTIME_DIR", "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	dir, err := Dir(nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/run/user/1000", "jupyter"), dir)
}

func TestDirFallsBackToUserDataDir(t *testing.T) {
	t.Setenv("JUPYTER_RUNTIME_DIR", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	dir, err := Dir(func() (string, error) { return "/home/u/.local/share/jupyter", nil })
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/u/.local/share/jupyter", "runtime"), dir)
}

func TestDirFallsBackToTemp(t *testing.T) {
	t.Setenv("JUPYTER_RUNTIME_DIR", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	dir, err := Dir(nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(os.TempDir(), "jupyter", "runtime"), dir)
}

func TestEnsureDirCreatesDirectory(t *testing.T) {
	base := t.TempDir()
	t.Setenv("JUPYTER_RUNTIME_DIR", filepath.Join(base, "runtime"))
	dir, err := EnsureDir(nil)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
