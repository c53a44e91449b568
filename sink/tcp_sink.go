package sink

import (
	"context"
	"feedback-relay/domain/event"
	"feedback-relay/protocol"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TCPSink serializes frames onto one connection.
// The lock covers the whole frame so concurrent broadcasts never interleave
// bytes on the wire.
type TCPSink struct {
	mu           sync.Mutex
	conn         net.Conn
	writeTimeout time.Duration
	closed       atomic.Bool
	closeOnce    sync.Once
	closeErr     error
}

func NewTCPSink(conn net.Conn, writeTimeout time.Duration) *TCPSink {
	return &TCPSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *TCPSink) Consume(ctx context.Context, f event.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := protocol.Encode(f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.FrameType(), err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return net.ErrClosed
	}
	deadline := time.Time{}
	if s.writeTimeout > 0 {
		deadline = time.Now().Add(s.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err = s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if _, err = s.conn.Write(payload); err != nil {
		return fmt.Errorf("write %s: %w", f.FrameType(), err)
	}
	return nil
}

// Close is idempotent. It does not wait for the write lock, so a writer
// stuck on a slow peer is released immediately.
func (s *TCPSink) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *TCPSink) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}
