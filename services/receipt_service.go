package services

import (
	"context"
	"feedback-relay/contract"
	"feedback-relay/domain"
	"feedback-relay/domain/event"
	"log/slog"
)

type IReceiptService interface {
	MarkRead(ctx context.Context, username, messageID string) *event.ReadStatusUpdate
}

type ReceiptService struct {
	ledger    *domain.Ledger
	snapshots contract.ISnapshotSink
	log       *slog.Logger
}

func NewReceiptService(ledger *domain.Ledger, snapshots contract.ISnapshotSink, log *slog.Logger) *ReceiptService {
	return &ReceiptService{ledger: ledger, snapshots: snapshots, log: log}
}

// MarkRead returns the aggregate update to broadcast, or nil when nothing
// changed (unknown message or already read).
func (s *ReceiptService) MarkRead(ctx context.Context, username, messageID string) *event.ReadStatusUpdate {
	status, ok := s.ledger.MarkRead(messageID, username)
	if !ok {
		s.log.Debug("Read receipt ignored", "username", username, "message_id", messageID)
		return nil
	}
	s.snapshots.Persist(ctx, s.ledger.Snapshot())
	return event.NewReadStatusUpdate(status)
}
