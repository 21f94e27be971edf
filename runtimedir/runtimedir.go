// Package runtimedir resolves the Jupyter runtime directory and allocates
// free TCP ports for new connection descriptors (spec.md §4.F).
package runtimedir

import (
	"net"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Dir resolves the runtime directory using the precedence chain from
// spec.md §4.F: JUPYTER_RUNTIME_DIR, then $XDG_RUNTIME_DIR/jupyter, then
// <user_data_dir>/runtime, else a temp-directory fallback. userDataDir is
// injected by the caller (kernelspec.UserDataDir) to avoid a dependency
// cycle.
func Dir(userDataDir func() (string, error)) (string, error) {
	if dir := os.Getenv("JUPYTER_RUNTIME_DIR"); dir != "" {
		return dir, nil
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "jupyter"), nil
	}
	if userDataDir != nil {
		if dir, err := userDataDir(); err == nil && dir != "" {
			return filepath.Join(dir, "runtime"), nil
		}
	}
	return filepath.Join(os.TempDir(), "jupyter", "runtime"), nil
}

// EnsureDir resolves and creates the runtime directory if missing.
func EnsureDir(userDataDir func() (string, error)) (string, error) {
	dir, err := Dir(userDataDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.WithMessagef(err, "runtimedir: creating %q", dir)
	}
	return dir, nil
}

// PeekPorts opens and immediately closes n distinct listening sockets on
// (ip, 0), returning their bound port numbers. Binding to port 0 and
// closing before a kernel rebinds is inherently racy (spec.md §9); each
// port is retried once on bind failure.
func PeekPorts(ip string, n int) ([]int, error) {
	ports := make([]int, 0, n)
	seen := make(map[int]bool, n)
	for len(ports) < n {
		port, err := peekOne(ip)
		if err != nil {
			// One retry per the design note in spec.md §9.
			port, err = peekOne(ip)
			if err != nil {
				return nil, errors.WithMessagef(err, "runtimedir.PeekPorts: allocating port %d/%d", len(ports)+1, n)
			}
		}
		if seen[port] {
			continue
		}
		seen[port] = true
		ports = append(ports, port)
	}
	return ports, nil
}

func peekOne(ip string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(ip, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, errors.Errorf("runtimedir: unexpected listener address type %T", l.Addr())
	}
	return addr.Port, nil
}
