package protocol

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// DefaultMaxFrameSize bounds a single frame accepted by a Decoder.
const DefaultMaxFrameSize = 64 * 1024

// ErrFrameTooLarge is returned when a frame header announces more than the
// decoder's MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

// EncodeFrame encodes the message and prefixes it with its varint length.
func (m *Message) EncodeFrame() ([]byte, error) {
	payload, err := m.Encode()
	if err != nil {
		return nil, err
	}
	return AppendFrame(nil, payload), nil
}

// AppendFrame appends payload to b as one length-prefixed frame.
func AppendFrame(b, payload []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(payload)))
	return append(b, payload...)
}

// Decoder rebuilds messages from a byte stream cut into arbitrary chunks.
// It is not safe for concurrent use; feed it from one receive loop.
type Decoder struct {
	// MaxFrameSize limits the payload size of one frame. Zero means
	// DefaultMaxFrameSize.
	MaxFrameSize int

	buf []byte
}

// NewDecoder returns a Decoder with the default frame limit.
func NewDecoder() *Decoder {
	return &Decoder{MaxFrameSize: DefaultMaxFrameSize}
}

// Feed appends chunk to the pending bytes and returns every message that is
// now complete. Incomplete trailing bytes are kept for the next call. After
// an error the stream is out of sync and the decoder should be discarded.
func (d *Decoder) Feed(chunk []byte) ([]Message, error) {
	d.buf = append(d.buf, chunk...)

	limit := d.MaxFrameSize
	if limit <= 0 {
		limit = DefaultMaxFrameSize
	}

	var msgs []Message
	off := 0
	for off < len(d.buf) {
		size, n := protowire.ConsumeVarint(d.buf[off:])
		if n < 0 {
			err := protowire.ParseError(n)
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return msgs, fmt.Errorf("failed to read frame header: %w: %w", ErrMalformed, err)
		}
		if size > uint64(limit) {
			return msgs, fmt.Errorf("frame of %d bytes exceeds %d: %w", size, limit, ErrFrameTooLarge)
		}
		end := off + n + int(size)
		if end > len(d.buf) {
			break
		}

		var m Message
		if err := m.Decode(d.buf[off+n : end]); err != nil {
			return msgs, err
		}
		msgs = append(msgs, m)
		off = end
	}

	// Keep only the unconsumed tail.
	d.buf = append(d.buf[:0], d.buf[off:]...)
	return msgs, nil
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
