package manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dstq/kernelbus/channel"
	"github.com/dstq/kernelbus/manager/persist"
	"github.com/dstq/kernelbus/message"
	"github.com/dstq/kernelbus/runtimedir"
	"github.com/stretchr/testify/require"
)

func addrFor(port int) string { return fmt.Sprintf("tcp://127.0.0.1:%d", port) }

// fakeKernel binds shell/iopub/control sockets and answers one
// execute_request with a busy/stream/idle iopub sequence and an
// execute_reply, simulating the kernel side of the wire protocol.
type fakeKernel struct {
	shell, control, iopub *channel.Channel
}

func startFakeKernel(t *testing.T, ctx context.Context, key []byte) (*fakeKernel, Channels) {
	t.Helper()
	ports, err := runtimedir.PeekPorts("127.0.0.1", 3)
	require.NoError(t, err)

	shellAddr, controlAddr, iopubAddr := addrFor(ports[0]), addrFor(ports[1]), addrFor(ports[2])

	kernShell, err := channel.NewShellBind(ctx, shellAddr, key)
	require.NoError(t, err)
	kernControl, err := channel.NewControlBind(ctx, controlAddr, key)
	require.NoError(t, err)
	kernIOPub, err := channel.NewIOPubBind(ctx, iopubAddr, key)
	require.NoError(t, err)

	clientShell, err := channel.NewShellConnect(ctx, shellAddr, key, "sess")
	require.NoError(t, err)
	clientControl, err := channel.NewControlConnect(ctx, controlAddr, key, "sess")
	require.NoError(t, err)
	clientIOPub, err := channel.NewIOPubConnect(ctx, iopubAddr, key, "sess", "")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond) // allow zmq handshakes

	return &fakeKernel{shell: kernShell, control: kernControl, iopub: kernIOPub},
		Channels{Shell: clientShell, Control: clientControl, Stdin: nil, IOPub: clientIOPub}
}

// serveShell is the kernel's sole shell-socket reader: it answers every
// kernel_info_request inline (as the manager's startup probe expects) and
// forwards anything else to execReqCh for the test to drive explicitly.
func (k *fakeKernel) serveShell(t *testing.T, execReqCh chan<- *message.Message) {
	t.Helper()
	for {
		req, err := k.shell.Recv()
		if err != nil {
			return
		}
		if _, ok := req.Content.(message.KernelInfoRequest); ok {
			reply, err := message.AsChild(req, &message.KernelInfoReply{Status: "ok"})
			require.NoError(t, err)
			reply.Identities = req.Identities
			require.NoError(t, k.shell.Send(reply))
			continue
		}
		execReqCh <- req
	}
}

func (k *fakeKernel) serveOneExecution(t *testing.T, req *message.Message) {
	t.Helper()
	busy, err := message.AsChild(req, &message.StatusMsg{ExecutionState: message.StateBusy})
	require.NoError(t, err)
	require.NoError(t, k.iopub.Send(busy))

	stream, err := message.AsChild(req, &message.StreamMsg{Name: message.StreamStdout, Text: "2\n"})
	require.NoError(t, err)
	require.NoError(t, k.iopub.Send(stream))

	idle, err := message.AsChild(req, &message.StatusMsg{ExecutionState: message.StateIdle})
	require.NoError(t, err)
	require.NoError(t, k.iopub.Send(idle))

	reply, err := message.AsChild(req, &message.ExecuteReply{Status: "ok", ExecutionCount: 1})
	require.NoError(t, err)
	reply.Identities = req.Identities
	require.NoError(t, k.shell.Send(reply))
}

func TestManagerExecuteStreaming(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := []byte("0123456789abcdef0123456789abcdef")
	kernel, chans := startFakeKernel(t, ctx, key)

	execReqCh := make(chan *message.Message, 1)
	go kernel.serveShell(t, execReqCh)

	mgr := New(persist.NewMemoryLog())
	_, err := mgr.Insert(ctx, "rt-1", chans)
	require.NoError(t, err)

	events, err := mgr.ExecuteStreaming(ctx, "rt-1", &message.ExecuteRequest{Code: "1+1"})
	require.NoError(t, err)

	go func() {
		req := <-execReqCh
		kernel.serveOneExecution(t, req)
	}()

	var sawBusy, sawStream, sawIdle, sawReply bool
	for ev := range events {
		switch {
		case ev.IOPub != nil:
			switch c := ev.IOPub.Content.(type) {
			case message.StatusMsg:
				if c.ExecutionState == message.StateBusy {
					sawBusy = true
				}
				if c.ExecutionState == message.StateIdle {
					sawIdle = true
				}
			case message.StreamMsg:
				sawStream = true
			}
		case ev.Reply != nil:
			sawReply = true
			reply, ok := ev.Reply.Content.(message.ExecuteReply)
			require.True(t, ok)
			require.Equal(t, "ok", reply.Status)
		}
	}
	require.True(t, sawBusy)
	require.True(t, sawStream)
	require.True(t, sawIdle)
	require.True(t, sawReply)
}

func TestManagerShutdownSendsRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := []byte("0123456789abcdef0123456789abcdef")
	kernel, chans := startFakeKernel(t, ctx, key)

	mgr := New(nil)
	_, err := mgr.Insert(ctx, "rt-2", chans)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		msg, err := kernel.control.Recv()
		require.NoError(t, err)
		require.Equal(t, "shutdown_request", msg.Header.MsgType)

		reply, err := message.AsChild(msg, &message.ShutdownReply{Status: "ok"})
		require.NoError(t, err)
		reply.Identities = msg.Identities
		require.NoError(t, kernel.control.Send(reply))
	}()

	require.NoError(t, mgr.Shutdown(ctx, "rt-2", false))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shutdown_request")
	}
}

func TestManagerShutdownFailureReturnsErrKernelShutdownFailed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := []byte("0123456789abcdef0123456789abcdef")
	kernel, chans := startFakeKernel(t, ctx, key)

	mgr := New(nil)
	_, err := mgr.Insert(ctx, "rt-3", chans)
	require.NoError(t, err)

	go func() {
		msg, err := kernel.control.Recv()
		require.NoError(t, err)
		reply, err := message.AsChild(msg, &message.ShutdownReply{Status: "error"})
		require.NoError(t, err)
		reply.Identities = msg.Identities
		require.NoError(t, kernel.control.Send(reply))
	}()

	err = mgr.Shutdown(ctx, "rt-3", false)
	require.ErrorIs(t, err, ErrKernelShutdownFailed)
}

func TestSubscribeUnknownRuntimeErrors(t *testing.T) {
	mgr := New(nil)
	_, err := mgr.Subscribe("nope")
	require.Error(t, err)
}
