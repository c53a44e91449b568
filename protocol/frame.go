// Package protocol implements the relay wire format.
// A frame is a 4-byte big-endian length followed by a UTF-8 JSON body.
// There is no resynchronization: any decode failure is fatal for the stream.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"unicode/utf8"

	"feedback-relay/errors"
)

const (
	HeaderSize = 4
	// MaxFrameSize is the largest body accepted by default (20 MiB).
	MaxFrameSize uint32 = 20 * 1024 * 1024
)

// Encode serializes v into a complete frame.
func Encode(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if uint64(len(body)) > uint64(MaxFrameSize) {
		return nil, fmt.Errorf("%w: body of %d bytes exceeds %d", errors.ErrProtocolViolation, len(body), MaxFrameSize)
	}
	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[:HeaderSize], uint32(len(body)))
	copy(frame[HeaderSize:], body)
	return frame, nil
}

// WriteFrame encodes v and writes it with a single Write call.
func WriteFrame(w io.Writer, v any) error {
	frame, err := Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadFrame reads exactly one frame body from r.
// The length is validated before any body byte is read, so a hostile
// length prefix never triggers a large allocation.
func ReadFrame(r io.Reader, max uint32) ([]byte, error) {
	if max == 0 {
		max = MaxFrameSize
	}
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, closedOr(err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > max {
		return nil, fmt.Errorf("%w: invalid frame length %d", errors.ErrProtocolViolation, length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, closedOr(err)
	}
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("%w: body is not valid UTF-8", errors.ErrDecode)
	}
	return body, nil
}

// ReadRequest reads one frame and decodes it as a client request.
func ReadRequest(r io.Reader, max uint32) (Request, error) {
	body, err := ReadFrame(r, max)
	if err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}
	return req, nil
}

// closedOr keeps the underlying cause reachable so callers can tell an
// idle deadline from a peer close.
func closedOr(err error) error {
	if stderrors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: stream closed mid-frame", errors.ErrConnectionClosed)
	}
	return fmt.Errorf("%w: %w", errors.ErrConnectionClosed, err)
}
