//go:build !windows

package launcher

import (
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"
)

// CaptureSignals installs a handler for SIGINT/SIGTERM that kills every
// process the reaper is tracking before letting the process exit, so a
// host Ctrl-C doesn't orphan launched kernels (spec.md §4.G).
func CaptureSignals(r *Reaper) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			klog.Infof("launcher: received %v, killing tracked kernels", sig)
			r.KillAll()
			// Restore default handling and re-raise, so the host exits.
			signal.Stop(ch)
			_ = syscall.Kill(syscall.Getpid(), sig.(syscall.Signal))
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
