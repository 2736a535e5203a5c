// Package protocol defines the chat message carried over tcpconn connections.
// Messages use the protobuf wire format and travel in frames prefixed with a
// varint length, so a receiver can rebuild them from arbitrary chunks.
package protocol

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// MessageType represents the type of message
type MessageType int

const (
	MessageTypeText MessageType = iota
	MessageTypeJoin
	MessageTypeLeave
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeText:
		return "TEXT"
	case MessageTypeJoin:
		return "JOIN"
	case MessageTypeLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// Field numbers and enum values of the chat message on the wire.
const (
	fieldType    protowire.Number = 1
	fieldSender  protowire.Number = 2
	fieldContent protowire.Number = 3

	wireTypeText  = 1
	wireTypeJoin  = 2
	wireTypeLeave = 3
)

// ErrMalformed is returned when bytes cannot be decoded into a Message.
var ErrMalformed = errors.New("malformed message")

// Message represents a chat message
type Message struct {
	Type    MessageType
	Sender  string
	Content string
}

// Encode encodes the message into bytes using the protobuf wire format
func (m *Message) Encode() ([]byte, error) {
	return m.appendTo(nil)
}

func (m *Message) appendTo(b []byte) ([]byte, error) {
	if !utf8.ValidString(m.Sender) || !utf8.ValidString(m.Content) {
		return nil, fmt.Errorf("failed to encode message: %w: invalid UTF-8", ErrMalformed)
	}
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, messageTypeToWire(m.Type))
	if m.Sender != "" {
		b = protowire.AppendTag(b, fieldSender, protowire.BytesType)
		b = protowire.AppendString(b, m.Sender)
	}
	if m.Content != "" {
		b = protowire.AppendTag(b, fieldContent, protowire.BytesType)
		b = protowire.AppendString(b, m.Content)
	}
	return b, nil
}

// Decode decodes bytes in the protobuf wire format into a message. Unknown
// fields are skipped.
func (m *Message) Decode(data []byte) error {
	var out Message
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("failed to decode message: %w: %w", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("failed to decode type: %w: %w", ErrMalformed, protowire.ParseError(n))
			}
			out.Type = messageTypeFromWire(v)
			data = data[n:]
		case (num == fieldSender || num == fieldContent) && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("failed to decode field %d: %w: %w", num, ErrMalformed, protowire.ParseError(n))
			}
			if !utf8.ValidString(s) {
				return fmt.Errorf("failed to decode field %d: %w: invalid UTF-8", num, ErrMalformed)
			}
			if num == fieldSender {
				out.Sender = s
			} else {
				out.Content = s
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("failed to skip field %d: %w: %w", num, ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	*m = out
	return nil
}

// messageTypeToWire maps unknown types to TEXT so a peer always gets a
// message it can display.
func messageTypeToWire(mt MessageType) uint64 {
	switch mt {
	case MessageTypeJoin:
		return wireTypeJoin
	case MessageTypeLeave:
		return wireTypeLeave
	default:
		return wireTypeText
	}
}

func messageTypeFromWire(v uint64) MessageType {
	switch v {
	case wireTypeJoin:
		return MessageTypeJoin
	case wireTypeLeave:
		return MessageTypeLeave
	default:
		return MessageTypeText
	}
}
