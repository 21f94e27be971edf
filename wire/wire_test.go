package wire

import (
	"testing"

	"github.com/dstq/kernelbus/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFrames(t *testing.T, msg *message.Message, key []byte, identities ...[]byte) [][]byte {
	t.Helper()
	parts, err := Encode(msg, key)
	require.NoError(t, err)
	frames := make([][]byte, 0, len(identities)+1+len(parts))
	frames = append(frames, identities...)
	frames = append(frames, Delimiter)
	frames = append(frames, parts...)
	return frames
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg, err := message.New(message.ExecuteRequest{Code: "print(1)", Silent: false, StoreHistory: true})
	require.NoError(t, err)
	msg.Identities = [][]byte{[]byte("route-1")}
	key := []byte("s3cr3t-key")

	frames := buildFrames(t, msg, key, msg.Identities...)
	decoded, err := Decode(frames, key)
	require.NoError(t, err)

	assert.Equal(t, msg.Header.MsgID, decoded.Header.MsgID)
	assert.Equal(t, msg.Header.Session, decoded.Header.Session)
	assert.Equal(t, msg.Header.MsgType, decoded.Header.MsgType)
	assert.Equal(t, msg.Identities, decoded.Identities)
	req, ok := decoded.Content.(message.ExecuteRequest)
	require.True(t, ok)
	assert.Equal(t, "print(1)", req.Code)
	assert.True(t, req.StoreHistory)
}

func TestEncodeDecodeUnsigned(t *testing.T) {
	msg, err := message.New(message.KernelInfoRequest{})
	require.NoError(t, err)

	frames := buildFrames(t, msg, nil)
	decoded, err := Decode(frames, nil)
	require.NoError(t, err)
	assert.Equal(t, "kernel_info_request", decoded.Header.MsgType)
}

func TestDecodeRejectsBadSignature(t *testing.T) {
	msg, err := message.New(message.KernelInfoRequest{})
	require.NoError(t, err)

	frames := buildFrames(t, msg, []byte("key-a"))
	_, err = Decode(frames, []byte("key-b"))
	require.ErrorIs(t, err, ErrVerify)
}

func TestDecodeMissingDelimiter(t *testing.T) {
	_, err := Decode([][]byte{[]byte("no delimiter here")}, nil)
	assert.ErrorIs(t, err, ErrMissingDelimiter)
}

func TestDecodeInsufficientParts(t *testing.T) {
	frames := [][]byte{Delimiter, []byte(""), []byte("{}"), []byte("{}")}
	_, err := Decode(frames, nil)
	assert.ErrorIs(t, err, ErrInsufficientParts)
}

func TestDecodeMissingHMACFrame(t *testing.T) {
	frames := [][]byte{Delimiter}
	_, err := Decode(frames, nil)
	assert.ErrorIs(t, err, ErrMissingHMAC)
}

func TestDecodeUnknownMsgTypePreservesRaw(t *testing.T) {
	msg, err := message.New(message.Unknown{MsgType: "future_msg", Raw: []byte(`{"z":1}`)})
	require.NoError(t, err)

	frames := buildFrames(t, msg, nil)
	decoded, err := Decode(frames, nil)
	require.NoError(t, err)
	u, ok := decoded.Content.(message.Unknown)
	require.True(t, ok)
	assert.Equal(t, "future_msg", u.MsgType)
	assert.JSONEq(t, `{"z":1}`, string(u.Raw))
}

func TestDecodeTolerantOfMalformedParentHeader(t *testing.T) {
	msg, err := message.New(message.KernelInfoRequest{})
	require.NoError(t, err)
	parts, err := Encode(msg, nil)
	require.NoError(t, err)
	parts[2] = []byte(`not json`) // parent_header slot (parts[0] is the signature)
	frames := append([][]byte{Delimiter}, parts...)

	decoded, err := Decode(frames, nil)
	require.NoError(t, err)
	assert.Nil(t, decoded.ParentHeader)
}

func TestSignatureCoversExactlyFourJSONParts(t *testing.T) {
	msg, err := message.New(message.ExecuteRequest{Code: "x"})
	require.NoError(t, err)
	key := []byte("key")
	parts1, err := Encode(msg, key)
	require.NoError(t, err)

	msg.Buffers = [][]byte{[]byte("extra-buffer")}
	parts2, err := Encode(msg, key)
	require.NoError(t, err)

	// Buffers differ but the signature (parts[0]) must be identical, since
	// it is computed only over header/parent/metadata/content.
	assert.Equal(t, parts1[0], parts2[0])
}
