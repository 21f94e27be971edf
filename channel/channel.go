// Package channel wraps the five Jupyter ZeroMQ sockets -- shell, control,
// stdin, iopub, heartbeat -- with role-specific socket patterns and
// lifecycle rules (spec.md §4.D). Grounded on internal/kernel/kernel.go's
// bindSockets/SyncSocket (kernel side) and on
// other_examples/.../crackcomm-go-jupyter/jupyter-client.go's NewClient
// (client side, which the teacher itself never implements).
package channel

import (
	"context"
	"sync"

	"github.com/dstq/kernelbus/message"
	"github.com/dstq/kernelbus/wire"
	"github.com/go-zeromq/zmq4"
	"github.com/pkg/errors"
)

// Channel wraps one ZeroMQ socket used for JSON messages (all channels
// except heartbeat, which exchanges raw bytes -- see Heartbeat).
type Channel struct {
	name    string
	socket  zmq4.Socket
	key     []byte
	session string
	mu      sync.Mutex
}

// Send injects the channel's session id into the header (when set),
// encodes msg via the wire codec, and writes it -- prefixed by msg's
// routing identities, when present, for router-pattern replies
// (spec.md §4.D).
func (c *Channel) Send(msg *message.Message) error {
	if c.session != "" {
		msg.Header.Session = c.session
	}
	parts, err := wire.Encode(msg, c.key)
	if err != nil {
		return errors.WithMessagef(err, "channel %q: encoding message", c.name)
	}
	frames := make([][]byte, 0, len(msg.Identities)+1+len(parts))
	frames = append(frames, msg.Identities...)
	frames = append(frames, wire.Delimiter)
	frames = append(frames, parts...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.socket.SendMulti(zmq4.NewMsgFrom(frames...)); err != nil {
		return errors.WithMessagef(err, "channel %q: sending message", c.name)
	}
	return nil
}

// Recv reads one multipart message and decodes it via the wire codec.
func (c *Channel) Recv() (*message.Message, error) {
	zmsg, err := c.socket.Recv()
	if err != nil {
		return nil, errors.WithMessagef(err, "channel %q: receiving message", c.name)
	}
	msg, err := wire.Decode(zmsg.Frames, c.key)
	if err != nil {
		return nil, errors.WithMessagef(err, "channel %q: decoding message", c.name)
	}
	return msg, nil
}

// Close releases the underlying socket.
func (c *Channel) Close() error { return c.socket.Close() }

// Name identifies the channel for logging ("shell", "control", ...).
func (c *Channel) Name() string { return c.name }

func bind(ctx context.Context, name string, socket zmq4.Socket, addr string, key []byte) (*Channel, error) {
	if err := socket.Listen(addr); err != nil {
		return nil, errors.WithMessagef(err, "channel %q: binding %s", name, addr)
	}
	return &Channel{name: name, socket: socket, key: key}, nil
}

func connect(ctx context.Context, name string, socket zmq4.Socket, addr string, key []byte, session string) (*Channel, error) {
	if err := socket.Dial(addr); err != nil {
		return nil, errors.WithMessagef(err, "channel %q: dialing %s", name, addr)
	}
	return &Channel{name: name, socket: socket, key: key, session: session}, nil
}

// --- Kernel-side constructors (bind): iopub=pub, shell/control/stdin=router ---

// NewShellBind binds the kernel's shell ROUTER socket (spec.md §4.D).
func NewShellBind(ctx context.Context, addr string, key []byte) (*Channel, error) {
	return bind(ctx, "shell", zmq4.NewRouter(ctx), addr, key)
}

// NewControlBind binds the kernel's control ROUTER socket.
func NewControlBind(ctx context.Context, addr string, key []byte) (*Channel, error) {
	return bind(ctx, "control", zmq4.NewRouter(ctx), addr, key)
}

// NewStdinBind binds the kernel's stdin ROUTER socket.
func NewStdinBind(ctx context.Context, addr string, key []byte) (*Channel, error) {
	return bind(ctx, "stdin", zmq4.NewRouter(ctx), addr, key)
}

// NewIOPubBind binds the kernel's iopub PUB socket.
func NewIOPubBind(ctx context.Context, addr string, key []byte) (*Channel, error) {
	return bind(ctx, "iopub", zmq4.NewPub(ctx), addr, key)
}

// --- Client-side constructors (connect): iopub=sub, shell/control/stdin=dealer ---

// NewShellConnect dials the client's shell DEALER socket.
func NewShellConnect(ctx context.Context, addr string, key []byte, session string) (*Channel, error) {
	return connect(ctx, "shell", zmq4.NewDealer(ctx), addr, key, session)
}

// NewControlConnect dials the client's control DEALER socket.
func NewControlConnect(ctx context.Context, addr string, key []byte, session string) (*Channel, error) {
	return connect(ctx, "control", zmq4.NewDealer(ctx), addr, key, session)
}

// NewStdinConnect dials the client's stdin DEALER socket.
func NewStdinConnect(ctx context.Context, addr string, key []byte, session string) (*Channel, error) {
	return connect(ctx, "stdin", zmq4.NewDealer(ctx), addr, key, session)
}

// NewIOPubConnect dials the client's iopub SUB socket and subscribes to
// topicFilter (default "" subscribes to everything, spec.md §4.D).
func NewIOPubConnect(ctx context.Context, addr string, key []byte, session, topicFilter string) (*Channel, error) {
	sock := zmq4.NewSub(ctx)
	ch, err := connect(ctx, "iopub", sock, addr, key, session)
	if err != nil {
		return nil, err
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, topicFilter); err != nil {
		return nil, errors.WithMessage(err, "channel \"iopub\": subscribing")
	}
	return ch, nil
}
