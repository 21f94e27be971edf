package channel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dstq/kernelbus/message"
	"github.com/dstq/kernelbus/runtimedir"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	return []byte("test-signing-key-0123456789abcd")
}

func addrFor(port int) string {
	return fmt.Sprintf("tcp://127.0.0.1:%d", port)
}

func TestShellRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ports, err := runtimedir.PeekPorts("127.0.0.1", 1)
	require.NoError(t, err)
	addr := addrFor(ports[0])
	key := testKey(t)

	server, err := NewShellBind(ctx, addr, key)
	require.NoError(t, err)
	defer server.Close()

	client, err := NewShellConnect(ctx, addr, key, "session-1")
	require.NoError(t, err)
	defer client.Close()

	time.Sleep(50 * time.Millisecond) // allow dealer/router handshake

	req, err := message.New(&message.ExecuteRequest{Code: "1+1"})
	require.NoError(t, err)
	require.NoError(t, client.Send(req))

	recv, err := server.Recv()
	require.NoError(t, err)
	require.Equal(t, "execute_request", recv.Header.MsgType)
	content, ok := recv.Content.(message.ExecuteRequest)
	require.True(t, ok)
	require.Equal(t, "1+1", content.Code)

	reply, err := message.AsChild(recv, &message.ExecuteReply{Status: "ok"})
	require.NoError(t, err)
	require.NoError(t, server.Send(reply))

	got, err := client.Recv()
	require.NoError(t, err)
	require.Equal(t, "execute_reply", got.Header.MsgType)
}

func TestIOPubPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ports, err := runtimedir.PeekPorts("127.0.0.1", 1)
	require.NoError(t, err)
	addr := addrFor(ports[0])
	key := testKey(t)

	pub, err := NewIOPubBind(ctx, addr, key)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := NewIOPubConnect(ctx, addr, key, "session-1", "")
	require.NoError(t, err)
	defer sub.Close()

	time.Sleep(100 * time.Millisecond) // allow pub/sub subscription propagation

	msg, err := message.New(&message.StreamMsg{Name: message.StreamStdout, Text: "hello\n"})
	require.NoError(t, err)
	require.NoError(t, pub.Send(msg))

	done := make(chan struct{})
	go func() {
		defer close(done)
		got, err := sub.Recv()
		require.NoError(t, err)
		require.Equal(t, "stream", got.Header.MsgType)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for iopub message")
	}
}
