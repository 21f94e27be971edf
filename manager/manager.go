// Package manager tracks a set of live kernel runtimes, running one
// sender plus one reader per socket (shell, control, iopub) per runtime,
// a kernel-info probe that resolves its initial starting/alive state,
// and fanning out iopub traffic to any number of subscribers (spec.md
// §4.I).
package manager

import (
	"context"
	goerrors "errors"
	"sync"
	"time"

	"github.com/dstq/kernelbus/channel"
	"github.com/dstq/kernelbus/common"
	"github.com/dstq/kernelbus/manager/persist"
	"github.com/dstq/kernelbus/message"
	"github.com/dstq/kernelbus/wire"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Channels bundles the four JSON channels a runtime communicates over
// (heartbeat is managed separately; spec.md §4.D).
type Channels struct {
	Shell   *channel.Channel
	Control *channel.Channel
	Stdin   *channel.Channel
	IOPub   *channel.Channel
}

// RuntimeState is a runtime's lifecycle stage (spec.md §3): a fresh
// runtime begins starting, is promoted to alive once its kernel-info
// probe succeeds, demoted to unresponsive on a probe timeout or a
// channel I/O error, and moved to terminated when its connection file
// disappears out from under it.
type RuntimeState int

const (
	StateStarting RuntimeState = iota
	StateAlive
	StateUnresponsive
	StateTerminated
)

func (s RuntimeState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateAlive:
		return "alive"
	case StateUnresponsive:
		return "unresponsive"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Runtime is one tracked kernel: its channels, outbound queue, and
// iopub fan-out bus.
type Runtime struct {
	ID    string
	chans Channels
	inbox chan *message.Message
	bus   *broadcastBus

	repliesMu sync.Mutex
	replies   map[string]chan *message.Message

	stateMu sync.RWMutex
	state   RuntimeState

	cancel context.CancelFunc
	group  *errgroup.Group
}

// State returns the runtime's current lifecycle stage.
func (rt *Runtime) State() RuntimeState {
	rt.stateMu.RLock()
	defer rt.stateMu.RUnlock()
	return rt.state
}

func (rt *Runtime) setState(s RuntimeState) {
	rt.stateMu.Lock()
	rt.state = s
	rt.stateMu.Unlock()
}

// awaitReply registers interest in the shell or control reply correlated
// to msgID and returns a channel delivering exactly one message.
func (rt *Runtime) awaitReply(msgID string) <-chan *message.Message {
	ch := make(chan *message.Message, 1)
	rt.repliesMu.Lock()
	rt.replies[msgID] = ch
	rt.repliesMu.Unlock()
	return ch
}

func (rt *Runtime) cancelAwait(msgID string) {
	rt.repliesMu.Lock()
	delete(rt.replies, msgID)
	rt.repliesMu.Unlock()
}

func (rt *Runtime) dispatchReply(msg *message.Message) bool {
	if msg.ParentHeader == nil {
		return false
	}
	rt.repliesMu.Lock()
	ch, ok := rt.replies[msg.ParentHeader.MsgID]
	if ok {
		delete(rt.replies, msg.ParentHeader.MsgID)
	}
	rt.repliesMu.Unlock()
	if !ok {
		return false
	}
	ch <- msg
	return true
}

// Manager owns the live runtime set. Safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	runtimes  map[string]*Runtime
	persister persist.Persister
}

// New creates a Manager. A nil persister defaults to an in-memory log.
func New(persister persist.Persister) *Manager {
	if persister == nil {
		persister = persist.NewMemoryLog()
	}
	return &Manager{
		runtimes:  make(map[string]*Runtime),
		persister: persister,
	}
}

// Insert registers a new runtime and starts its goroutines: the shell
// sender, one reader each for iopub, shell and control, and the
// kernel-info probe. Grounded on the teacher's per-kernel sender/receiver
// goroutine shape (originally for the single in-process kernel; here,
// one set per entry in the runtime map).
func (m *Manager) Insert(ctx context.Context, id string, chans Channels) (*Runtime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runtimes[id]; exists {
		return nil, errors.Errorf("manager: runtime %q already registered", id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, runCtx := errgroup.WithContext(runCtx)

	rt := &Runtime{
		ID:      id,
		chans:   chans,
		inbox:   make(chan *message.Message, 64),
		bus:     newBroadcastBus(),
		replies: make(map[string]chan *message.Message),
		state:   StateStarting,
		cancel:  cancel,
		group:   group,
	}

	group.Go(func() error { return m.sendLoop(runCtx, rt) })
	group.Go(func() error { return m.recvLoop(runCtx, rt) })
	group.Go(func() error { return m.shellRecvLoop(runCtx, rt) })
	group.Go(func() error { return m.controlRecvLoop(runCtx, rt) })
	group.Go(func() error { m.probeKernelInfo(runCtx, rt); return nil })

	m.runtimes[id] = rt
	klog.Infof("manager: registered runtime %q (%d known: %v)", id, len(m.runtimes), common.SortedKeys(m.runtimes))
	return rt, nil
}

// Remove tears down a runtime's goroutines and closes its bus.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	rt, ok := m.runtimes[id]
	if ok {
		delete(m.runtimes, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	rt.cancel()
	rt.bus.closeAll()
	klog.Infof("manager: removed runtime %q", id)
}

// Get returns the runtime for id, if tracked.
func (m *Manager) Get(id string) (*Runtime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.runtimes[id]
	return rt, ok
}

// Send enqueues msg for delivery on id's shell channel.
func (m *Manager) Send(id string, msg *message.Message) error {
	rt, ok := m.Get(id)
	if !ok {
		return errors.Errorf("manager: unknown runtime %q", id)
	}
	select {
	case rt.inbox <- msg:
		return nil
	default:
		return errors.Errorf("manager: runtime %q inbox is full", id)
	}
}

func (m *Manager) sendLoop(ctx context.Context, rt *Runtime) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-rt.inbox:
			m.recordPersist(ctx, rt.ID, "shell", persist.Outbound, msg)
			if err := rt.chans.Shell.Send(msg); err != nil {
				klog.Warningf("manager: runtime %q: sending on shell: %v", rt.ID, err)
				continue
			}
		}
	}
}

func (m *Manager) recvLoop(ctx context.Context, rt *Runtime) error {
	errs := make(chan error, 1)
	go func() {
		for {
			msg, err := rt.chans.IOPub.Recv()
			if err != nil {
				if goerrors.Is(err, wire.ErrVerify) {
					noteVerifyFailure()
					klog.Warningf("manager: runtime %q: iopub signature verification failed", rt.ID)
					continue
				}
				errs <- err
				return
			}
			m.recordPersist(ctx, rt.ID, "iopub", persist.Inbound, msg)
			rt.bus.publish(msg)
		}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errs:
		rt.setState(StateUnresponsive)
		klog.Warningf("manager: runtime %q: iopub pump terminated: %v", rt.ID, err)
		return err
	}
}

// shellRecvLoop is the sole reader of a runtime's shell socket, so
// sendLoop's writes and this loop's reads never race on the same
// underlying zmq socket. Every received reply is routed to whichever
// caller is awaiting its parent msg_id (ExecuteStreaming and friends).
func (m *Manager) shellRecvLoop(ctx context.Context, rt *Runtime) error {
	errs := make(chan error, 1)
	go func() {
		for {
			msg, err := rt.chans.Shell.Recv()
			if err != nil {
				if goerrors.Is(err, wire.ErrVerify) {
					noteVerifyFailure()
					klog.Warningf("manager: runtime %q: shell signature verification failed", rt.ID)
					continue
				}
				errs <- err
				return
			}
			m.recordPersist(ctx, rt.ID, "shell", persist.Inbound, msg)
			if !rt.dispatchReply(msg) {
				klog.V(2).Infof("manager: runtime %q: unclaimed shell reply %q", rt.ID, msg.Header.MsgType)
			}
		}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errs:
		rt.setState(StateUnresponsive)
		klog.Warningf("manager: runtime %q: shell pump terminated: %v", rt.ID, err)
		return err
	}
}

// controlRecvLoop is the sole reader of a runtime's control socket,
// mirroring shellRecvLoop: it routes shutdown_reply/interrupt_reply (and
// any other control reply) to whichever caller is awaiting that parent
// msg_id (Shutdown, Interrupt).
func (m *Manager) controlRecvLoop(ctx context.Context, rt *Runtime) error {
	errs := make(chan error, 1)
	go func() {
		for {
			msg, err := rt.chans.Control.Recv()
			if err != nil {
				if goerrors.Is(err, wire.ErrVerify) {
					noteVerifyFailure()
					klog.Warningf("manager: runtime %q: control signature verification failed", rt.ID)
					continue
				}
				errs <- err
				return
			}
			m.recordPersist(ctx, rt.ID, "control", persist.Inbound, msg)
			if !rt.dispatchReply(msg) {
				klog.V(2).Infof("manager: runtime %q: unclaimed control reply %q", rt.ID, msg.Header.MsgType)
			}
		}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errs:
		rt.setState(StateUnresponsive)
		klog.Warningf("manager: runtime %q: control pump terminated: %v", rt.ID, err)
		return err
	}
}

func (m *Manager) recordPersist(ctx context.Context, runtimeID, chanName string, dir persist.Direction, msg *message.Message) {
	if err := m.persister.Append(ctx, persist.Record{
		RuntimeID: runtimeID,
		Channel:   chanName,
		Direction: dir,
		Message:   msg,
		At:        time.Now(),
	}); err != nil {
		klog.Warningf("manager: persisting message for %q: %v", runtimeID, err)
	}
}

// Subscribe returns a Subscription to id's iopub messages, or an error
// if id is unknown. Once the subscription ends (Close or runtime
// removal), Receive returns a nil message with no error. Gaps from a
// slow subscriber are reported as ErrLagging from Receive, never by
// blocking the runtime (spec.md §9).
func (m *Manager) Subscribe(id string) (*Subscription, error) {
	rt, ok := m.Get(id)
	if !ok {
		return nil, errors.Errorf("manager: unknown runtime %q", id)
	}
	ch, unsub := rt.bus.subscribe()
	return &Subscription{ch: ch, unsub: unsub}, nil
}

// Subscription is a live handle on a runtime's iopub fan-out.
type Subscription struct {
	ch    <-chan *published
	unsub func()
}

// ErrLagging is returned by Receive when the subscriber missed one or
// more messages because its buffer was full.
var ErrLagging = errors.New("manager: subscriber lagging, messages dropped")

// Receive blocks for the next message, returning ErrLagging if the
// bus had to drop a message for this subscriber, or a nil message with
// no error if the subscription was closed.
func (s *Subscription) Receive(ctx context.Context) (*message.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p, ok := <-s.ch:
		if !ok {
			return nil, nil
		}
		if p.dropped {
			return nil, ErrLagging
		}
		return p.msg, nil
	}
}

// Close ends the subscription.
func (s *Subscription) Close() { s.unsub() }
