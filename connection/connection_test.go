package connection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePeek(ip string, n int) ([]int, error) {
	ports := make([]int, n)
	for i := range ports {
		ports[i] = 10000 + i
	}
	return ports, nil
}

func TestNewAssignsDistinctPorts(t *testing.T) {
	info, err := New("127.0.0.1", TCP, fakePeek, false)
	require.NoError(t, err)
	require.NoError(t, info.Validate())
	assert.NotEmpty(t, info.Key)
	assert.Equal(t, HMACSHA256, info.SignatureScheme)
}

func TestNewKeyShape(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)
	require.Len(t, key, 33)
	assert.Equal(t, byte('-'), key[8])
}

func TestUnsignedHasNoKey(t *testing.T) {
	info, err := New("127.0.0.1", TCP, fakePeek, true)
	require.NoError(t, err)
	assert.Empty(t, info.Key)
	assert.Nil(t, info.SigningKey())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	info, err := New("127.0.0.1", TCP, fakePeek, false)
	require.NoError(t, err)
	info.KernelName = "test-kernel"

	dir := t.TempDir()
	path := filepath.Join(dir, "kernel-abc.json")
	require.NoError(t, info.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, info.ShellPort, loaded.ShellPort)
	assert.Equal(t, info.Key, loaded.Key)
	assert.Equal(t, "test-kernel", loaded.KernelName)
}

func TestSaveOmitsKernelNameWhenAbsent(t *testing.T) {
	info, err := New("127.0.0.1", TCP, fakePeek, false)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "kernel-abc.json")
	require.NoError(t, info.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "kernel_name")
}

func TestLoadRejectsUnknownScheme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"transport":"tcp","ip":"127.0.0.1",
		"shell_port":1,"iopub_port":2,"stdin_port":3,"control_port":4,"hb_port":5,
		"key":"abc","signature_scheme":"hmac-sha1"
	}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsDuplicatePorts(t *testing.T) {
	info := &Info{Transport: TCP, IP: "127.0.0.1", ShellPort: 1, IOPubPort: 1, StdinPort: 2, ControlPort: 3, HBPort: 4}
	require.Error(t, info.Validate())
}

func TestAddrBuilders(t *testing.T) {
	info := &Info{Transport: TCP, IP: "127.0.0.1", ShellPort: 1, IOPubPort: 2, StdinPort: 3, ControlPort: 4, HBPort: 5}
	assert.Equal(t, "tcp://127.0.0.1:1", info.ShellAddr())
	assert.Equal(t, "tcp://127.0.0.1:2", info.IOPubAddr())
	assert.Equal(t, "tcp://127.0.0.1:5", info.HBAddr())

	ipc := &Info{Transport: IPC, IP: "sock", ShellPort: 1}
	assert.Equal(t, "ipc://sock-1", ipc.ShellAddr())
}
