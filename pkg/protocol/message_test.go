package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/toy-tcp-events/pkg/protocol"
)

func TestMessage_Encode(t *testing.T) {
	tests := []struct {
		name    string
		msg     protocol.Message
		wantErr bool
	}{
		{
			name: "encode text message successfully",
			msg: protocol.Message{
				Type:    protocol.MessageTypeText,
				Sender:  "user1",
				Content: "Hello, World!",
			},
		},
		{
			name: "encode join message successfully",
			msg: protocol.Message{
				Type:   protocol.MessageTypeJoin,
				Sender: "user2",
			},
		},
		{
			name: "encode leave message successfully",
			msg: protocol.Message{
				Type:   protocol.MessageTypeLeave,
				Sender: "user3",
			},
		},
		{
			name: "reject invalid UTF-8 sender",
			msg: protocol.Message{
				Type:   protocol.MessageTypeText,
				Sender: "\xff\xfe",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.msg.Encode()
			if tt.wantErr {
				assert.ErrorIs(t, err, protocol.ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, data)
		})
	}
}

func TestMessage_Decode(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    protocol.Message
		wantErr bool
	}{
		{
			name: "decode text message successfully",
			data: func() []byte {
				msg := protocol.Message{
					Type:    protocol.MessageTypeText,
					Sender:  "user1",
					Content: "Hello, World!",
				}
				data, _ := msg.Encode()
				return data
			}(),
			want: protocol.Message{
				Type:    protocol.MessageTypeText,
				Sender:  "user1",
				Content: "Hello, World!",
			},
		},
		{
			name: "decode empty data as empty text message",
			data: []byte{},
			want: protocol.Message{Type: protocol.MessageTypeText},
		},
		{
			name: "skip unknown fields",
			data: []byte{
				0x08, 0x02, // type JOIN
				0x20, 0x07, // field 4, varint
				0x12, 0x01, 'a', // sender "a"
			},
			want: protocol.Message{Type: protocol.MessageTypeJoin, Sender: "a"},
		},
		{
			name:    "fail on truncated string",
			data:    []byte{0x12, 0x05, 'a'},
			wantErr: true,
		},
		{
			name:    "fail on invalid tag",
			data:    []byte{0xff},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got protocol.Message
			err := got.Decode(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, protocol.ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessage_EncodeDecodeRoundTrip(t *testing.T) {
	original := protocol.Message{
		Type:    protocol.MessageTypeText,
		Sender:  "testuser",
		Content: "Test message content",
	}

	encoded, err := original.Encode()
	require.NoError(t, err)

	var decoded protocol.Message
	require.NoError(t, decoded.Decode(encoded))
	assert.Equal(t, original, decoded)
}

func TestMessageType_String(t *testing.T) {
	tests := []struct {
		name string
		mt   protocol.MessageType
		want string
	}{
		{"text type", protocol.MessageTypeText, "TEXT"},
		{"join type", protocol.MessageTypeJoin, "JOIN"},
		{"leave type", protocol.MessageTypeLeave, "LEAVE"},
		{"unknown type", protocol.MessageType(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mt.String())
		})
	}
}
