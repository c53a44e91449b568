package services

import (
	"context"
	"feedback-relay/contract"
	"feedback-relay/domain"
	"feedback-relay/domain/event"
	"feedback-relay/moderation"
	"feedback-relay/observability"
	"log/slog"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
)

type IMessageService interface {
	SubmitText(ctx context.Context, username, content string) *event.NewMessage
}

type MessageService struct {
	ledger    *domain.Ledger
	snapshots contract.ISnapshotSink
	dedup     domain.DedupPolicy
	moderator *moderation.Moderator
	metrics   *observability.Metrics
	log       *slog.Logger
	now       func() time.Time
}

func NewMessageService(
	ledger *domain.Ledger,
	snapshots contract.ISnapshotSink,
	dedup domain.DedupPolicy,
	moderator *moderation.Moderator,
	metrics *observability.Metrics,
	log *slog.Logger,
	now func() time.Time,
) *MessageService {
	if now == nil {
		now = time.Now
	}
	return &MessageService{
		ledger:    ledger,
		snapshots: snapshots,
		dedup:     dedup,
		moderator: moderator,
		metrics:   metrics,
		log:       log,
		now:       now,
	}
}

// SubmitText stores a text message and returns the frame to broadcast.
// It returns nil when the content is blank or collapses onto a message
// already stored in the same dedup bucket.
func (s *MessageService) SubmitText(ctx context.Context, username, content string) *event.NewMessage {
	content = strings.TrimSpace(content)
	if content == "" {
		s.log.Debug("Dropping blank message", "username", username)
		return nil
	}
	// The identity is taken on what the user typed, before masking.
	id := s.dedup.MessageID(username, content, s.now())
	stored, words := s.moderator.Censor(content)
	if len(words) > 0 {
		s.log.Info("Message censored", "username", username, "id", id, "words", len(words))
	}

	message, status, ok := s.ledger.AppendText(id, username, stored)
	if !ok {
		s.metrics.Duplicates.Inc()
		s.log.Debug("Duplicate message dropped", "username", username, "id", id)
		return nil
	}
	s.snapshots.Persist(ctx, s.ledger.Snapshot())
	s.metrics.MessagesStored.WithLabelValues(string(domain.KindText)).Inc()

	lang := whatlanggo.Detect(stored).Lang.Iso6391()
	s.log.Info("Message stored", "username", username, "id", id, "lang", lang, "length", len(stored))

	author, _ := s.ledger.Profile(username)
	return event.NewNewMessage(message, author, status)
}
