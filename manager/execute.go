package manager

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dstq/kernelbus/message"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// kernelInfoProbeTimeout bounds how long a fresh runtime is given to
// answer its first kernel_info_request before being marked unresponsive
// (spec.md §4.H, §5 cancellation and timeouts).
const kernelInfoProbeTimeout = 1 * time.Second

// ErrKernelShutdownFailed is returned by Shutdown when the kernel's
// shutdown_reply reports anything other than status "ok".
var ErrKernelShutdownFailed = errors.New("manager: kernel shutdown failed")

// probeKernelInfo sends a kernel_info_request and awaits the matching
// reply within kernelInfoProbeTimeout, promoting rt to alive on a
// status-ok reply and to unresponsive otherwise (spec.md §4.H).
func (m *Manager) probeKernelInfo(ctx context.Context, rt *Runtime) {
	msg, err := message.New(&message.KernelInfoRequest{})
	if err != nil {
		klog.Warningf("manager: runtime %q: building kernel_info_request: %v", rt.ID, err)
		rt.setState(StateUnresponsive)
		return
	}

	replyCh := rt.awaitReply(msg.Header.MsgID)
	if err := m.Send(rt.ID, msg); err != nil {
		rt.cancelAwait(msg.Header.MsgID)
		klog.Warningf("manager: runtime %q: sending kernel_info_request: %v", rt.ID, err)
		rt.setState(StateUnresponsive)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, kernelInfoProbeTimeout)
	defer cancel()
	select {
	case <-probeCtx.Done():
		rt.cancelAwait(msg.Header.MsgID)
		klog.Warningf("manager: runtime %q: kernel_info_request timed out after %s", rt.ID, kernelInfoProbeTimeout)
		rt.setState(StateUnresponsive)
	case reply := <-replyCh:
		info, ok := reply.Content.(message.KernelInfoReply)
		if ok && info.Status == "ok" {
			rt.setState(StateAlive)
		} else {
			klog.Warningf("manager: runtime %q: kernel_info_reply status %q", rt.ID, info.Status)
			rt.setState(StateUnresponsive)
		}
	}
}

// verifyFailuresCounter counts signature verification failures
// (wire.ErrVerify) on any runtime's shell, control or iopub channel, for
// health reporting (spec.md §4.I, §8 scenario 3).
var verifyFailuresCounter int64

// VerifyFailures returns the running count of signature verification
// failures observed by this process.
func VerifyFailures() int64 { return atomic.LoadInt64(&verifyFailuresCounter) }

func noteVerifyFailure() { atomic.AddInt64(&verifyFailuresCounter, 1) }

// StreamEvent is one message observed while streaming an execution:
// either an iopub update or the terminal shell reply.
type StreamEvent struct {
	IOPub *message.Message // set for every iopub message until idle
	Reply *message.Message // set once, for the execute_reply
}

// ExecuteStreaming sends an execute_request to id and returns a channel
// of StreamEvents: every iopub message correlated to the request (by
// parent msg_id) until a status=idle is observed, followed by the
// execute_reply, after which the channel closes (spec.md §4.C execution
// lifecycle, §8 scenario 2).
func (m *Manager) ExecuteStreaming(ctx context.Context, id string, req *message.ExecuteRequest) (<-chan StreamEvent, error) {
	rt, ok := m.Get(id)
	if !ok {
		return nil, errors.Errorf("manager: unknown runtime %q", id)
	}

	msg, err := message.New(req)
	if err != nil {
		return nil, err
	}
	sub, err := m.Subscribe(id)
	if err != nil {
		return nil, err
	}
	// Register reply interest before sending: the kernel may answer on
	// the shell channel before this goroutine finishes draining iopub,
	// and shellRecvLoop must have somewhere to deliver it.
	replyCh := rt.awaitReply(msg.Header.MsgID)
	if err := m.Send(id, msg); err != nil {
		rt.cancelAwait(msg.Header.MsgID)
		sub.Close()
		return nil, err
	}

	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			iop, err := sub.Receive(ctx)
			if err != nil {
				if err == ErrLagging {
					continue
				}
				return
			}
			if iop == nil {
				return
			}
			if iop.ParentHeader == nil || iop.ParentHeader.MsgID != msg.Header.MsgID {
				continue // not correlated to this execution
			}
			out <- StreamEvent{IOPub: iop}
			if status, ok := iop.Content.(message.StatusMsg); ok && status.ExecutionState == message.StateIdle {
				break
			}
		}

		select {
		case <-ctx.Done():
			rt.cancelAwait(msg.Header.MsgID)
			return
		case reply := <-replyCh:
			out <- StreamEvent{Reply: reply}
		}
	}()
	return out, nil
}

// Shutdown sends a shutdown_request over id's control channel and waits
// indefinitely for the matching shutdown_reply (spec.md §4.C, §4.I, §5:
// shutdown has no built-in timeout, callers requiring one must wrap the
// call with context.WithTimeout), returning ErrKernelShutdownFailed if
// the reply's status isn't "ok" (§8 scenario 4).
func (m *Manager) Shutdown(ctx context.Context, id string, restart bool) error {
	rt, ok := m.Get(id)
	if !ok {
		return errors.Errorf("manager: unknown runtime %q", id)
	}
	msg, err := message.New(&message.ShutdownRequest{Restart: restart})
	if err != nil {
		return err
	}
	replyCh := rt.awaitReply(msg.Header.MsgID)
	if err := rt.chans.Control.Send(msg); err != nil {
		rt.cancelAwait(msg.Header.MsgID)
		return errors.WithMessagef(err, "manager: sending shutdown_request to %q", id)
	}

	select {
	case <-ctx.Done():
		rt.cancelAwait(msg.Header.MsgID)
		return ctx.Err()
	case reply := <-replyCh:
		shutdown, ok := reply.Content.(message.ShutdownReply)
		if !ok || shutdown.Status != "ok" {
			return errors.WithMessagef(ErrKernelShutdownFailed, "manager: runtime %q replied status %q", id, shutdown.Status)
		}
		return nil
	}
}

// Interrupt sends an interrupt_request over id's control channel and
// awaits the matching interrupt_reply (the message-based interrupt mode,
// spec.md §3). Signal-based interrupt is the launcher's responsibility
// (launcher.Process.Interrupt), since the manager has no OS process
// handle.
func (m *Manager) Interrupt(ctx context.Context, id string) error {
	rt, ok := m.Get(id)
	if !ok {
		return errors.Errorf("manager: unknown runtime %q", id)
	}
	msg, err := message.New(&message.InterruptRequest{})
	if err != nil {
		return err
	}
	replyCh := rt.awaitReply(msg.Header.MsgID)
	if err := rt.chans.Control.Send(msg); err != nil {
		rt.cancelAwait(msg.Header.MsgID)
		return errors.WithMessagef(err, "manager: sending interrupt_request to %q", id)
	}

	select {
	case <-ctx.Done():
		rt.cancelAwait(msg.Header.MsgID)
		return ctx.Err()
	case reply := <-replyCh:
		interrupt, ok := reply.Content.(message.InterruptReply)
		if !ok || interrupt.Status != "ok" {
			return errors.Errorf("manager: runtime %q interrupt_reply status %q", id, interrupt.Status)
		}
		return nil
	}
}
