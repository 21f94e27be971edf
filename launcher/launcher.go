// Package launcher spawns kernel processes from a kernelspec and
// connection descriptor, and reaps them on exit (spec.md §4.G).
package launcher

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/dstq/kernelbus/connection"
	"github.com/dstq/kernelbus/kernelspec"
	"github.com/gofrs/uuid"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// NewID generates a fresh runtime id for a to-be-launched kernel, used
// to name its connection file and to key it in the manager's runtime map.
func NewID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", errors.WithMessage(err, "launcher.NewID")
	}
	return id.String(), nil
}

// MustID is NewID for callers (tests, one-off tooling) that treat
// uuid generation failure as unrecoverable.
func MustID() string {
	return must.M1(uuid.NewV4()).String()
}

// connectionFileToken is substituted in a kernelspec's argv with the path
// to the written connection file (spec.md §3, the Jupyter kernelspec
// convention).
const connectionFileToken = "{connection_file}"

// Process is a launched kernel: its OS process handle, connection file
// path, and descriptor.
type Process struct {
	ID             string
	Cmd            *exec.Cmd
	ConnectionFile string
	Info           *connection.Info
	Spec           *kernelspec.Spec
}

// Launch writes the connection file, substitutes it into spec's argv,
// applies spec's env on top of the host environment, and starts the
// process with stdin redirected from /dev/null (spec.md §4.G). The
// caller owns removing the connection file; a Reaper watching the
// process (Reaper.Watch) does this automatically.
func Launch(ctx context.Context, id string, spec *kernelspec.Spec, info *connection.Info, connectionFile, workdir string) (*Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := info.Save(connectionFile); err != nil {
		return nil, errors.WithMessagef(err, "launcher: writing connection file for %q", id)
	}

	argv := make([]string, len(spec.Argv))
	for i, arg := range spec.Argv {
		argv[i] = strings.ReplaceAll(arg, connectionFileToken, connectionFile)
	}
	if len(argv) == 0 {
		return nil, errors.Errorf("launcher: kernel %q has empty argv", spec.Name)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workdir
	cmd.Env = append(os.Environ(), envSlice(spec.Env)...)

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return nil, errors.WithMessage(err, "launcher: opening null device for stdin")
	}
	cmd.Stdin = devNull
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		devNull.Close()
		os.Remove(connectionFile)
		return nil, errors.WithMessagef(err, "launcher: starting kernel %q", spec.Name)
	}
	klog.Infof("launcher: started kernel %q (pid %d) id=%s", spec.Name, cmd.Process.Pid, id)

	return &Process{
		ID:             id,
		Cmd:            cmd,
		ConnectionFile: connectionFile,
		Info:           info,
		Spec:           spec,
	}, nil
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// Wait blocks until the process exits, returning its error (nil on a
// clean exit). Safe to call once; use Reaper for ongoing supervision.
func (p *Process) Wait() error {
	return p.Cmd.Wait()
}

// Interrupt sends SIGINT (os.Interrupt) to the kernel process itself, not
// to its process group: the signal-based interrupt mode from spec.md
// §3/§4.G.
func (p *Process) Interrupt() error {
	if p.Cmd.Process == nil {
		return errors.New("launcher: process not started")
	}
	return p.Cmd.Process.Signal(os.Interrupt)
}

// Kill force-terminates the process.
func (p *Process) Kill() error {
	if p.Cmd.Process == nil {
		return nil
	}
	return p.Cmd.Process.Kill()
}

// Cleanup removes the connection file; call after the process has
// exited.
func (p *Process) Cleanup() {
	if err := os.Remove(p.ConnectionFile); err != nil && !os.IsNotExist(err) {
		klog.Warningf("launcher: removing connection file %q: %v", p.ConnectionFile, err)
	}
}
