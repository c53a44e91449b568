package services

import (
	"context"
	"feedback-relay/contract"
	"feedback-relay/domain"
	"log/slog"
)

type IUserService interface {
	Join(ctx context.Context, username string) domain.UserProfile
	Leave(ctx context.Context, username string) domain.UserProfile
}

// UserService maintains the user directory. Profiles are never deleted.
type UserService struct {
	ledger    *domain.Ledger
	snapshots contract.ISnapshotSink
	log       *slog.Logger
}

func NewUserService(ledger *domain.Ledger, snapshots contract.ISnapshotSink, log *slog.Logger) *UserService {
	return &UserService{ledger: ledger, snapshots: snapshots, log: log}
}

func (s *UserService) Join(ctx context.Context, username string) domain.UserProfile {
	profile := s.ledger.Touch(username)
	s.snapshots.Persist(ctx, s.ledger.Snapshot())
	s.log.Info("User joined", "username", username, "first_seen", profile.FirstSeen)
	return profile
}

func (s *UserService) Leave(ctx context.Context, username string) domain.UserProfile {
	profile := s.ledger.Touch(username)
	s.snapshots.Persist(ctx, s.ledger.Snapshot())
	s.log.Info("User left", "username", username)
	return profile
}
