package channel

import (
	"context"

	"github.com/go-zeromq/zmq4"
	"github.com/pkg/errors"
)

// Heartbeat is a req/rep byte-exchange roundtrip, not a JSON message
// channel (spec.md §4.D, §6): the kernel echoes back whatever it
// receives, and the client sends "ping" expecting any reply.
type Heartbeat struct {
	socket zmq4.Socket
}

// NewHeartbeatBind binds the kernel's heartbeat REP socket. Call Serve to
// start echoing, grounded on internal/kernel/kernel.go's pollHeartbeat.
func NewHeartbeatBind(ctx context.Context, addr string) (*Heartbeat, error) {
	sock := zmq4.NewRep(ctx)
	if err := sock.Listen(addr); err != nil {
		return nil, errors.WithMessagef(err, "heartbeat: binding %s", addr)
	}
	return &Heartbeat{socket: sock}, nil
}

// NewHeartbeatConnect dials the client's heartbeat REQ socket.
func NewHeartbeatConnect(ctx context.Context, addr string) (*Heartbeat, error) {
	sock := zmq4.NewReq(ctx)
	if err := sock.Dial(addr); err != nil {
		return nil, errors.WithMessagef(err, "heartbeat: dialing %s", addr)
	}
	return &Heartbeat{socket: sock}, nil
}

// Serve runs the kernel-side echo loop until ctx is done or recv fails.
func (h *Heartbeat) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		msg, err := h.socket.Recv()
		if err != nil {
			return errors.WithMessage(err, "heartbeat: receiving")
		}
		if err := h.socket.Send(msg); err != nil {
			return errors.WithMessage(err, "heartbeat: echoing")
		}
	}
}

// Ping sends a single "ping" and blocks for any reply, returning an error
// if the send or the receive fails; it has no timeout of its own (the
// client-side heartbeat roundtrip).
func (h *Heartbeat) Ping() error {
	if err := h.socket.Send(zmq4.NewMsg([]byte("ping"))); err != nil {
		return errors.WithMessage(err, "heartbeat: sending ping")
	}
	if _, err := h.socket.Recv(); err != nil {
		return errors.WithMessage(err, "heartbeat: receiving pong")
	}
	return nil
}

// Close releases the underlying socket.
func (h *Heartbeat) Close() error { return h.socket.Close() }
