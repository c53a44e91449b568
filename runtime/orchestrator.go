package runtime

import (
	"context"
	stderrors "errors"
	"feedback-relay/domain/event"
	"feedback-relay/errors"
	"feedback-relay/observability"
	"feedback-relay/protocol"
	"feedback-relay/services"
	"log/slog"
)

const (
	SimultaneousLogin = "simultaneous login: this account connected from another client"
	FileNotFound      = "file not found"
	UploadFailed      = "file upload failed"
	InvalidUpload     = "invalid file upload"
	RegisterFirst     = "first frame must be a register request with a username"
)

// Orchestrator ties the session registry to the services and the broadcaster.
// Every operation runs on the caller's connection goroutine.
type Orchestrator struct {
	log         *slog.Logger
	registry    *Registry
	broadcaster *Broadcaster
	users       services.IUserService
	messages    services.IMessageService
	files       services.IFileService
	receipts    services.IReceiptService
	history     services.IHistoryService
	metrics     *observability.Metrics
}

func NewOrchestrator(
	log *slog.Logger,
	registry *Registry,
	broadcaster *Broadcaster,
	users services.IUserService,
	messages services.IMessageService,
	files services.IFileService,
	receipts services.IReceiptService,
	history services.IHistoryService,
	metrics *observability.Metrics,
) *Orchestrator {
	return &Orchestrator{
		log:         log,
		registry:    registry,
		broadcaster: broadcaster,
		users:       users,
		messages:    messages,
		files:       files,
		receipts:    receipts,
		history:     history,
		metrics:     metrics,
	}
}

// Register admits s under the requested username.
// A validation error leaves s unregistered; the caller answers and closes.
func (o *Orchestrator) Register(ctx context.Context, s *Session, req protocol.Request) error {
	username, err := protocol.ValidateRegister(req)
	if err != nil {
		return err
	}
	if displaced := o.registry.Admit(ctx, s, username, event.NewError(SimultaneousLogin)); displaced != nil {
		o.metrics.Takeovers.Inc()
	}
	o.metrics.LiveSessions.Set(float64(o.registry.Count()))

	profile := o.users.Join(ctx, username)
	if err = s.Welcome(ctx, event.NewRegisterSuccess(event.NewUserInfo(profile), o.history.Recent())); err != nil {
		return err
	}
	o.metrics.FramesSent.WithLabelValues(event.TypeRegisterSuccess).Inc()
	o.log.Info("Session registered", "username", username, "remote", s.Remote, "session", s.ID)
	o.broadcast(ctx, event.NewUserOnline(profile), s)
	return nil
}

// Unregister is idempotent and a no-op for sessions that are not live,
// including sessions displaced by a takeover.
func (o *Orchestrator) Unregister(ctx context.Context, s *Session) {
	if !o.registry.Remove(s) {
		return
	}
	o.leave(ctx, s)
	o.broadcast(ctx, event.NewUserOffline(s.Username), nil)
}

func (o *Orchestrator) leave(ctx context.Context, s *Session) {
	_ = s.Close()
	o.metrics.LiveSessions.Set(float64(o.registry.Count()))
	o.users.Leave(ctx, s.Username)
	o.log.Info("Session unregistered", "username", s.Username, "remote", s.Remote, "session", s.ID)
}

func (o *Orchestrator) SubmitText(ctx context.Context, s *Session, content string) {
	if frame := o.messages.SubmitText(ctx, s.Username, content); frame != nil {
		o.broadcast(ctx, frame, nil)
	}
}

// SubmitFile answers the uploader with an error frame on failure; the
// connection survives.
func (o *Orchestrator) SubmitFile(ctx context.Context, s *Session, req protocol.Request) error {
	name, data, err := protocol.DecodeUpload(req)
	if err != nil {
		o.log.Warn("Rejected upload", "username", s.Username, "error", err)
		return o.send(ctx, s, event.NewError(InvalidUpload))
	}
	if req.Size > 0 && req.Size != int64(len(data)) {
		o.log.Debug("Declared size differs from payload", "username", s.Username,
			"declared", req.Size, "actual", len(data))
	}
	frame, err := o.files.SubmitFile(ctx, s.Username, name, data)
	if err != nil {
		o.log.Error("Upload failed", "username", s.Username, "name", name, "error", err)
		return o.send(ctx, s, event.NewError(UploadFailed))
	}
	o.broadcast(ctx, frame, nil)
	return nil
}

func (o *Orchestrator) RequestDownload(ctx context.Context, s *Session, fileID string) error {
	frame, err := o.files.ResolveDownload(fileID)
	if err != nil {
		if stderrors.Is(err, errors.ErrFileNotFound) {
			o.log.Info("Download of unknown file", "username", s.Username, "file_id", fileID)
		} else {
			o.log.Error("Download resolution failed", "username", s.Username, "file_id", fileID, "error", err)
		}
		return o.send(ctx, s, event.NewError(FileNotFound))
	}
	return o.send(ctx, s, frame)
}

func (o *Orchestrator) MarkRead(ctx context.Context, s *Session, messageID string) {
	if update := o.receipts.MarkRead(ctx, s.Username, messageID); update != nil {
		o.broadcast(ctx, update, nil)
	}
}

func (o *Orchestrator) Ping(ctx context.Context, s *Session) error {
	return o.send(ctx, s, event.NewPong())
}

// Reject answers a connection that never registered. Best effort.
func (o *Orchestrator) Reject(ctx context.Context, s *Session, reason string) {
	if err := s.Send(ctx, event.NewError(reason)); err != nil {
		o.log.Debug("Reject not delivered", "remote", s.Remote, "error", err)
	}
}

func (o *Orchestrator) send(ctx context.Context, s *Session, f event.Frame) error {
	if err := s.Send(ctx, f); err != nil {
		return err
	}
	o.metrics.FramesSent.WithLabelValues(f.FrameType()).Inc()
	return nil
}

// broadcast delivers f, then unregisters every session that failed. The
// user_offline frames this produces may fail in turn; the queue drains them.
func (o *Orchestrator) broadcast(ctx context.Context, f event.Frame, exclude *Session) {
	failed := o.broadcaster.Broadcast(ctx, f, exclude)
	for len(failed) > 0 {
		s := failed[0]
		failed = failed[1:]
		if !o.registry.Remove(s) {
			continue
		}
		o.leave(ctx, s)
		failed = append(failed, o.broadcaster.Broadcast(ctx, event.NewUserOffline(s.Username), nil)...)
	}
}
