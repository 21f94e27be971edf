package launcher

import (
	"sync"

	"k8s.io/klog/v2"
)

// ExitHandler is invoked once per process as it is reaped, with its final
// Wait error (nil on a clean exit).
type ExitHandler func(id string, err error)

// Reaper supervises a set of launched processes, removing connection
// files and invoking an exit handler once each process terminates
// (spec.md §4.G).
type Reaper struct {
	onExit ExitHandler

	mu    sync.Mutex
	procs map[string]*Process
	wg    sync.WaitGroup
}

// NewReaper creates a Reaper that calls onExit for every process it
// reaps.
func NewReaper(onExit ExitHandler) *Reaper {
	return &Reaper{
		onExit: onExit,
		procs:  make(map[string]*Process),
	}
}

// Watch registers p for reaping: a goroutine waits on it, cleans up its
// connection file, and reports the exit via onExit.
func (r *Reaper) Watch(p *Process) {
	r.mu.Lock()
	r.procs[p.ID] = p
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := p.Wait()
		p.Cleanup()

		r.mu.Lock()
		delete(r.procs, p.ID)
		r.mu.Unlock()

		if err != nil {
			klog.Warningf("launcher: kernel %q (id %s) exited: %v", p.Spec.Name, p.ID, err)
		} else {
			klog.Infof("launcher: kernel %q (id %s) exited cleanly", p.Spec.Name, p.ID)
		}
		if r.onExit != nil {
			r.onExit(p.ID, err)
		}
	}()
}

// KillAll force-terminates every tracked process, for use from the host
// signal handler installed by CaptureSignals.
func (r *Reaper) KillAll() {
	r.mu.Lock()
	procs := make([]*Process, 0, len(r.procs))
	for _, p := range r.procs {
		procs = append(procs, p)
	}
	r.mu.Unlock()

	for _, p := range procs {
		if err := p.Kill(); err != nil {
			klog.Warningf("launcher: killing kernel %q (id %s): %v", p.Spec.Name, p.ID, err)
		}
	}
}

// Wait blocks until every currently-watched process has been reaped.
func (r *Reaper) Wait() { r.wg.Wait() }
