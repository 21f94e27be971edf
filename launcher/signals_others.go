//go:build windows

package launcher

import (
	"os"
	"os/signal"

	"k8s.io/klog/v2"
)

// CaptureSignals installs a handler for os.Interrupt that kills every
// process the reaper is tracking; Windows has no SIGTERM equivalent
// worth listening for here.
func CaptureSignals(r *Reaper) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			klog.Infof("launcher: received %v, killing tracked kernels", sig)
			r.KillAll()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
