// Package message defines the Jupyter message envelope (header, parent
// header, metadata, content) and the tagged union of content variants
// exchanged over the five channels (spec.md §3, §4.C).
package message

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// ProtocolVersion is the Jupyter messaging protocol version this module
// speaks, per spec.md §3.
const ProtocolVersion = "5.3"

// Header carries the per-message routing metadata (spec.md §3).
type Header struct {
	MsgID           string `json:"msg_id"`
	Session         string `json:"session"`
	Username        string `json:"username"`
	Date            string `json:"date"`
	MsgType         string `json:"msg_type"`
	ProtocolVersion string `json:"version"`
}

// Content is implemented by every concrete message-content variant. The
// MessageType must equal the msg_type set on the envelope's Header (the
// invariant from spec.md §3).
type Content interface {
	MessageType() string
}

// Message is the full envelope: header, optional parent header, metadata,
// typed content, opaque buffers and routing identities (spec.md §3).
type Message struct {
	Header       Header
	ParentHeader *Header
	Metadata     map[string]interface{}
	Content      Content
	Buffers      [][]byte
	Identities   [][]byte
}

func newHeader(msgType, username, session string) (Header, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return Header{}, errors.WithMessage(err, "message: generating msg_id")
	}
	return Header{
		MsgID:           id.String(),
		Session:         session,
		Username:        username,
		Date:            time.Now().UTC().Format(time.RFC3339Nano),
		MsgType:         msgType,
		ProtocolVersion: ProtocolVersion,
	}, nil
}

// New creates a fresh message from content: a new msg_id, a new session
// (override with WithSession), and msg_type taken from content's own
// MessageType.
func New(content Content) (*Message, error) {
	session, err := uuid.NewV4()
	if err != nil {
		return nil, errors.WithMessage(err, "message.New: generating session id")
	}
	header, err := newHeader(content.MessageType(), "kernelbus", session.String())
	if err != nil {
		return nil, err
	}
	return &Message{
		Header:   header,
		Metadata: make(map[string]interface{}),
		Content:  content,
	}, nil
}

// ReplyMsgType derives a reply's msg_type from its request's msg_type,
// e.g. "execute_request" -> "execute_reply" (spec.md §4.C).
func ReplyMsgType(requestType string) string {
	return strings.TrimSuffix(requestType, "_request") + "_reply"
}

// AsChild builds a new message as a child of parent (a reply, or an
// iopub message caused by it): it copies the session, sets ParentHeader
// to the parent's header, copies identities, and takes msg_type from
// content's own MessageType (spec.md §3, §4.C).
func AsChild(parent *Message, content Content) (*Message, error) {
	header, err := newHeader(content.MessageType(), parent.Header.Username, parent.Header.Session)
	if err != nil {
		return nil, err
	}
	parentHeader := parent.Header
	ids := make([][]byte, len(parent.Identities))
	copy(ids, parent.Identities)
	return &Message{
		Header:       header,
		ParentHeader: &parentHeader,
		Metadata:     make(map[string]interface{}),
		Content:      content,
		Identities:   ids,
	}, nil
}

// WithBuffers attaches opaque binary buffers and returns m for chaining.
func (m *Message) WithBuffers(buffers ...[]byte) *Message {
	m.Buffers = buffers
	return m
}

// WithMetadata replaces the metadata object and returns m for chaining.
func (m *Message) WithMetadata(metadata map[string]interface{}) *Message {
	m.Metadata = metadata
	return m
}

// WithSession overrides the header's session id and returns m for
// chaining.
func (m *Message) WithSession(session string) *Message {
	m.Header.Session = session
	return m
}

// Validate checks the header/content msg_type invariant from spec.md §3.
func (m *Message) Validate() error {
	if m.Content == nil {
		return errors.New("message: Content is nil")
	}
	if m.Content.MessageType() != m.Header.MsgType {
		return errors.Errorf("message: header.msg_type %q does not match content type %q",
			m.Header.MsgType, m.Content.MessageType())
	}
	return nil
}
