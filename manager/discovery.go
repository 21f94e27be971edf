package manager

import (
	"context"

	"github.com/dstq/kernelbus/channel"
	"github.com/dstq/kernelbus/connection"
	"github.com/dstq/kernelbus/watcher"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Discover dials a newly-appeared kernel's four JSON channels and
// inserts it as a new runtime in the starting state, which probeKernelInfo
// (started by Insert) then promotes to alive or unresponsive (spec.md
// §4.H). id is conventionally watcher.KernelID(ev.Path).
func (m *Manager) Discover(ctx context.Context, id string, info *connection.Info) (*Runtime, error) {
	key := info.SigningKey()
	shell, err := channel.NewShellConnect(ctx, info.ShellAddr(), key, id)
	if err != nil {
		return nil, errors.WithMessagef(err, "manager: dialing shell for %q", id)
	}
	control, err := channel.NewControlConnect(ctx, info.ControlAddr(), key, id)
	if err != nil {
		return nil, errors.WithMessagef(err, "manager: dialing control for %q", id)
	}
	stdin, err := channel.NewStdinConnect(ctx, info.StdinAddr(), key, id)
	if err != nil {
		return nil, errors.WithMessagef(err, "manager: dialing stdin for %q", id)
	}
	iopub, err := channel.NewIOPubConnect(ctx, info.IOPubAddr(), key, id, "")
	if err != nil {
		return nil, errors.WithMessagef(err, "manager: dialing iopub for %q", id)
	}
	return m.Insert(ctx, id, Channels{Shell: shell, Control: control, Stdin: stdin, IOPub: iopub})
}

// Terminate marks a known runtime terminated without tearing down its
// goroutines itself, for a watcher.Removed event on a connection file
// whose runtime the manager still tracks (spec.md §4.H: a removal of a
// still-known runtime's file transitions it to terminated; the reaper,
// not this, handles normal teardown). Reports whether id was known.
func (m *Manager) Terminate(id string) bool {
	rt, ok := m.Get(id)
	if !ok {
		return false
	}
	rt.setState(StateTerminated)
	klog.Infof("manager: runtime %q terminated", id)
	return true
}

// HandleWatchEvent applies a single watcher.Event to the runtime set:
// Discovered dials and inserts a new runtime, Removed terminates one if
// still known (spec.md §4.H).
func (m *Manager) HandleWatchEvent(ctx context.Context, ev watcher.Event) {
	id := watcher.KernelID(ev.Path)
	switch ev.Kind {
	case watcher.Discovered:
		if _, ok := m.Get(id); ok {
			return
		}
		if _, err := m.Discover(ctx, id, ev.Info); err != nil {
			klog.Warningf("manager: discovering runtime %q: %v", id, err)
		}
	case watcher.Removed:
		m.Terminate(id)
	}
}
