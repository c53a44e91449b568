// Package tcp runs the per-connection protocol loop of the relay.
package tcp

import (
	"context"
	stderrors "errors"
	"feedback-relay/errors"
	"feedback-relay/observability"
	"feedback-relay/protocol"
	"feedback-relay/runtime"
	"feedback-relay/sink"
	"log/slog"
	"net"
	"os"
	"time"
)

type Relay interface {
	Register(ctx context.Context, s *runtime.Session, req protocol.Request) error
	Unregister(ctx context.Context, s *runtime.Session)
	Reject(ctx context.Context, s *runtime.Session, reason string)
	SubmitText(ctx context.Context, s *runtime.Session, content string)
	SubmitFile(ctx context.Context, s *runtime.Session, req protocol.Request) error
	RequestDownload(ctx context.Context, s *runtime.Session, fileID string) error
	MarkRead(ctx context.Context, s *runtime.Session, messageID string)
	Ping(ctx context.Context, s *runtime.Session) error
}

type Handler struct {
	relay        Relay
	log          *slog.Logger
	metrics      *observability.Metrics
	maxFrameSize uint32
	idleTimeout  time.Duration
	writeTimeout time.Duration
}

func NewHandler(
	relay Relay,
	log *slog.Logger,
	metrics *observability.Metrics,
	maxFrameSize uint32,
	idleTimeout time.Duration,
	writeTimeout time.Duration,
) *Handler {
	return &Handler{
		relay:        relay,
		log:          log,
		metrics:      metrics,
		maxFrameSize: maxFrameSize,
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
	}
}

// Serve owns conn until it returns. The first frame must register the
// session; any decode failure ends the connection. Unregister runs exactly
// once on the way out, whatever the reason.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) {
	out := sink.NewTCPSink(conn, h.writeTimeout)
	s := runtime.NewSession(out, conn.RemoteAddr().String())
	stop := context.AfterFunc(ctx, func() { _ = out.Close() })
	defer stop()
	defer func() { _ = out.Close() }()
	// Cleanup still has to reach the other sessions during shutdown.
	defer h.relay.Unregister(context.WithoutCancel(ctx), s)

	log := h.log.With("remote", s.Remote, "session", s.ID)
	log.Debug("Connection accepted")

	first, err := h.read(conn)
	if err != nil {
		if !stderrors.Is(err, errors.ErrConnectionClosed) {
			h.relay.Reject(ctx, s, RegisterFirstReason(err))
		}
		log.Info("Connection dropped before registering", "error", err)
		return
	}
	if err = h.relay.Register(ctx, s, first); err != nil {
		if stderrors.Is(err, errors.ErrInvalidRegistration) {
			h.relay.Reject(ctx, s, runtime.RegisterFirst)
		}
		log.Info("Registration failed", "error", err)
		return
	}
	log = log.With("username", s.Username)

	for {
		req, err := h.read(conn)
		if err != nil {
			h.logReadError(log, err)
			return
		}
		if err = h.dispatch(ctx, s, req, log); err != nil {
			log.Info("Connection lost while answering", "type", req.Type, "error", err)
			return
		}
	}
}

func (h *Handler) read(conn net.Conn) (protocol.Request, error) {
	if h.idleTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(h.idleTimeout)); err != nil {
			return protocol.Request{}, err
		}
	}
	req, err := protocol.ReadRequest(conn, h.maxFrameSize)
	if err != nil {
		return protocol.Request{}, err
	}
	h.metrics.FramesReceived.WithLabelValues(typeLabel(req.Type)).Inc()
	return req, nil
}

func (h *Handler) dispatch(ctx context.Context, s *runtime.Session, req protocol.Request, log *slog.Logger) error {
	switch req.Type {
	case protocol.TypeMessage:
		h.relay.SubmitText(ctx, s, req.Content)
	case protocol.TypeFile:
		return h.relay.SubmitFile(ctx, s, req)
	case protocol.TypeDownloadFile:
		return h.relay.RequestDownload(ctx, s, req.FileID)
	case protocol.TypeMarkRead:
		h.relay.MarkRead(ctx, s, req.MessageID)
	case protocol.TypePing:
		return h.relay.Ping(ctx, s)
	default:
		log.Warn("Unknown frame type ignored", "type", req.Type)
	}
	return nil
}

func (h *Handler) logReadError(log *slog.Logger, err error) {
	switch {
	case stderrors.Is(err, os.ErrDeadlineExceeded):
		log.Info("Idle session evicted", "idle_timeout", h.idleTimeout)
	case stderrors.Is(err, errors.ErrProtocolViolation), stderrors.Is(err, errors.ErrDecode):
		log.Warn("Protocol violation, closing connection", "error", err)
	default:
		log.Info("Connection closed", "error", err)
	}
}

// RegisterFirstReason explains to a peer why its first frame was refused.
func RegisterFirstReason(err error) string {
	if stderrors.Is(err, errors.ErrProtocolViolation) {
		return "invalid frame length"
	}
	return runtime.RegisterFirst
}

func typeLabel(t string) string {
	switch t {
	case protocol.TypeRegister, protocol.TypeMessage, protocol.TypeFile,
		protocol.TypeDownloadFile, protocol.TypeMarkRead, protocol.TypePing:
		return t
	default:
		return "unknown"
	}
}
