package persist

import (
	"context"
	"testing"

	"github.com/dstq/kernelbus/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLogAppendsInOrder(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	msg1, err := message.New(&message.StatusMsg{ExecutionState: message.StateBusy})
	require.NoError(t, err)
	msg2, err := message.New(&message.StatusMsg{ExecutionState: message.StateIdle})
	require.NoError(t, err)

	require.NoError(t, log.Append(ctx, Record{RuntimeID: "r1", Channel: "iopub", Direction: Outbound, Message: msg1}))
	require.NoError(t, log.Append(ctx, Record{RuntimeID: "r1", Channel: "iopub", Direction: Outbound, Message: msg2}))

	recs := log.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "status", recs[0].Message.Header.MsgType)
	assert.Equal(t, "status", recs[1].Message.Header.MsgType)
}
