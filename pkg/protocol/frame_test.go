package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/toy-tcp-events/pkg/protocol"
)

func encodeFrames(t *testing.T, msgs ...protocol.Message) []byte {
	t.Helper()
	var out []byte
	for _, m := range msgs {
		frame, err := m.EncodeFrame()
		require.NoError(t, err)
		out = append(out, frame...)
	}
	return out
}

func TestDecoder_FeedWholeFrames(t *testing.T) {
	msgs := []protocol.Message{
		{Type: protocol.MessageTypeJoin, Sender: "alice"},
		{Type: protocol.MessageTypeText, Sender: "alice", Content: "hi"},
		{Type: protocol.MessageTypeLeave, Sender: "alice"},
	}
	stream := encodeFrames(t, msgs...)

	d := protocol.NewDecoder()
	got, err := d.Feed(stream)
	require.NoError(t, err)
	assert.Equal(t, msgs, got)
	assert.Zero(t, d.Buffered())
}

func TestDecoder_FeedByteByByte(t *testing.T) {
	msgs := []protocol.Message{
		{Type: protocol.MessageTypeText, Sender: "bob", Content: "first"},
		{Type: protocol.MessageTypeText, Sender: "bob", Content: "second"},
	}
	stream := encodeFrames(t, msgs...)

	d := protocol.NewDecoder()
	var got []protocol.Message
	for i := range stream {
		out, err := d.Feed(stream[i : i+1])
		require.NoError(t, err, "byte %d", i)
		got = append(got, out...)
	}
	assert.Equal(t, msgs, got)
}

func TestDecoder_LongFrameHeaderSplit(t *testing.T) {
	// A content of 300 bytes needs a two byte length prefix.
	long := protocol.Message{Type: protocol.MessageTypeText, Sender: "c", Content: string(make([]byte, 300))}
	stream := encodeFrames(t, long)

	d := protocol.NewDecoder()
	out, err := d.Feed(stream[:1])
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = d.Feed(stream[1:])
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, long, out[0])
}

func TestDecoder_FrameTooLarge(t *testing.T) {
	d := &protocol.Decoder{MaxFrameSize: 8}
	frame := protocol.AppendFrame(nil, make([]byte, 9))

	_, err := d.Feed(frame)
	assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)
}

func TestDecoder_MalformedPayload(t *testing.T) {
	d := protocol.NewDecoder()
	frame := protocol.AppendFrame(nil, []byte{0x12, 0x05, 'a'})

	_, err := d.Feed(frame)
	assert.ErrorIs(t, err, protocol.ErrMalformed)
}

func TestDecoder_EmptyFrame(t *testing.T) {
	d := protocol.NewDecoder()
	got, err := d.Feed(protocol.AppendFrame(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, []protocol.Message{{Type: protocol.MessageTypeText}}, got)
}
