// Package wire implements the Jupyter wire protocol codec: multipart
// frame <-> message.Message translation with HMAC-SHA256 signing and
// verification (spec.md §4.B).
package wire

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/dstq/kernelbus/message"
	"github.com/pkg/errors"
)

// Delimiter is the literal frame separating routing identities from the
// signed/JSON part of a message.
var Delimiter = []byte("<IDS|MSG>")

// Sentinel errors for the wire codec's failure modes (spec.md §4.B, §7).
// Use errors.Cause/errors.Is against these after unwrapping.
var (
	ErrMissingDelimiter  = errors.New("wire: missing <IDS|MSG> delimiter")
	ErrMissingHMAC       = errors.New("wire: missing HMAC signature frame")
	ErrVerify            = errors.New("wire: signature verification failed")
	ErrInsufficientParts = errors.New("wire: fewer than four JSON parts after signature")
)

// ParseError reports a failure decoding a specific message type's content.
type ParseError struct {
	MsgType string
	Err     error
}

func (e *ParseError) Error() string {
	return "wire: parsing content for msg_type " + e.MsgType + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Encode serializes msg into wire frames: header, parent-header (or "{}"),
// metadata, content as compact JSON, an HMAC-SHA256 signature over exactly
// those four JSON byte strings (empty string when key is nil/empty), and
// any attached buffers. It does not add identities or the delimiter --
// callers (package channel) own placement on the socket (spec.md §4.B).
func Encode(msg *message.Message, key []byte) (parts [][]byte, err error) {
	headerJSON, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, errors.WithMessage(err, "wire.Encode: marshaling header")
	}

	var parentJSON []byte
	if msg.ParentHeader != nil {
		parentJSON, err = json.Marshal(msg.ParentHeader)
		if err != nil {
			return nil, errors.WithMessage(err, "wire.Encode: marshaling parent_header")
		}
	} else {
		parentJSON = []byte("{}")
	}

	metadata := msg.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, errors.WithMessage(err, "wire.Encode: marshaling metadata")
	}

	contentJSON, err := json.Marshal(msg.Content)
	if err != nil {
		return nil, errors.WithMessage(err, "wire.Encode: marshaling content")
	}

	signature := sign(key, headerJSON, parentJSON, metadataJSON, contentJSON)

	parts = make([][]byte, 0, 5+len(msg.Buffers))
	parts = append(parts, signature, headerJSON, parentJSON, metadataJSON, contentJSON)
	parts = append(parts, msg.Buffers...)
	return parts, nil
}

func sign(key []byte, jsonParts ...[]byte) []byte {
	if len(key) == 0 {
		return []byte{}
	}
	mac := hmac.New(sha256.New, key)
	for _, part := range jsonParts {
		mac.Write(part)
	}
	sig := make([]byte, hex.EncodedLen(mac.Size()))
	hex.Encode(sig, mac.Sum(nil))
	return sig
}

// Decode parses a full multipart frame sequence (identities..., delimiter,
// signature, header, parent-header, metadata, content, buffers...) into a
// message.Message, verifying the signature when key is non-empty
// (spec.md §4.B).
func Decode(frames [][]byte, key []byte) (*message.Message, error) {
	i := -1
	for idx, f := range frames {
		if bytes.Equal(f, Delimiter) {
			i = idx
			break
		}
	}
	if i == -1 {
		return nil, ErrMissingDelimiter
	}
	identities := frames[:i]
	rest := frames[i+1:]
	if len(rest) < 1 {
		return nil, ErrMissingHMAC
	}
	signature := rest[0]
	rest = rest[1:]
	if len(rest) < 4 {
		return nil, ErrInsufficientParts
	}
	jsonParts := rest[:4]
	buffers := rest[4:]

	if len(key) != 0 {
		want := sign(key, jsonParts...)
		if !hmac.Equal(want, signature) {
			return nil, ErrVerify
		}
	}

	var header message.Header
	if err := json.Unmarshal(jsonParts[0], &header); err != nil {
		return nil, errors.WithMessage(err, "wire.Decode: parsing header")
	}

	// A parent header that fails to parse is treated as absent (tolerant
	// read, spec.md §4.B).
	var parentHeader *message.Header
	if !bytes.Equal(bytes.TrimSpace(jsonParts[1]), []byte("{}")) {
		var ph message.Header
		if err := json.Unmarshal(jsonParts[1], &ph); err == nil {
			parentHeader = &ph
		}
	}

	var metadata map[string]interface{}
	if err := json.Unmarshal(jsonParts[2], &metadata); err != nil {
		return nil, errors.WithMessage(err, "wire.Decode: parsing metadata")
	}

	content, err := message.DecodeContent(header.MsgType, jsonParts[3])
	if err != nil {
		return nil, &ParseError{MsgType: header.MsgType, Err: err}
	}

	idsCopy := make([][]byte, len(identities))
	copy(idsCopy, identities)
	buffersCopy := make([][]byte, len(buffers))
	copy(buffersCopy, buffers)

	return &message.Message{
		Header:       header,
		ParentHeader: parentHeader,
		Metadata:     metadata,
		Content:      content,
		Buffers:      buffersCopy,
		Identities:   idsCopy,
	}, nil
}
