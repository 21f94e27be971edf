package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dstq/kernelbus/connection"
	"github.com/dstq/kernelbus/runtimedir"
	"github.com/stretchr/testify/require"
)

func writeConnFile(t *testing.T, dir, name string) string {
	t.Helper()
	info, err := connection.New("127.0.0.1", connection.TCP, runtimedir.PeekPorts, false)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, info.Save(path))
	return path
}

func TestWatcherDetectsCreateAndRemove(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)
	defer w.Close()

	path := writeConnFile(t, dir, "kernel-abc123.json")

	select {
	case ev := <-w.Events():
		require.Equal(t, Discovered, ev.Kind)
		require.Equal(t, path, ev.Path)
		require.NotNil(t, ev.Info)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for discovered event")
	}

	require.NoError(t, os.Remove(path))

	select {
	case ev := <-w.Events():
		require.Equal(t, Removed, ev.Kind)
		require.Equal(t, path, ev.Path)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for removed event")
	}
}

func TestWatcherSkipsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "kernel-bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	select {
	case ev := <-w.Events():
		t.Fatalf("expected no event for malformed file, got %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestKernelID(t *testing.T) {
	require.Equal(t, "abc123", KernelID("/runtime/kernel-abc123.json"))
	require.Equal(t, "xyz", KernelID("kernel-xyz.json"))
}
