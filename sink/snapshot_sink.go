package sink

import (
	"context"
	"feedback-relay/domain"
	"feedback-relay/repositories"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotSink writes full snapshots synchronously, one at a time.
// Copies taken concurrently may reach it out of order; a copy older than the
// last one written is dropped so the file never goes backwards.
type SnapshotSink struct {
	mu         sync.Mutex
	repository repositories.ISnapshotRepository
	log        *slog.Logger
	saved      uint64
	duration   prometheus.Observer
	failures   prometheus.Counter
}

func NewSnapshotSink(
	repository repositories.ISnapshotRepository,
	log *slog.Logger,
	duration prometheus.Observer,
	failures prometheus.Counter,
) *SnapshotSink {
	return &SnapshotSink{repository: repository, log: log, duration: duration, failures: failures}
}

// Persist never fails the caller: a write error is logged and the in-memory
// state stays authoritative.
func (s *SnapshotSink) Persist(_ context.Context, snapshot domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snapshot.Version != 0 && snapshot.Version <= s.saved {
		s.log.Debug("Skipping stale snapshot", "version", snapshot.Version, "saved", s.saved)
		return
	}
	start := time.Now()
	if err := s.repository.Save(snapshot); err != nil {
		s.log.Error("Snapshot persistence failed", "version", snapshot.Version, "error", err)
		if s.failures != nil {
			s.failures.Inc()
		}
		return
	}
	if s.duration != nil {
		s.duration.Observe(time.Since(start).Seconds())
	}
	s.saved = snapshot.Version
	s.log.Debug("Snapshot saved", "version", snapshot.Version,
		"messages", len(snapshot.Messages), "users", len(snapshot.Users))
}
