package runtime

import (
	"context"
	"feedback-relay/domain/event"
	"feedback-relay/observability"
	"log/slog"
	"sync"
)

// Broadcaster fans a frame out to every live session.
// Each send runs in its own goroutine; a slow or dead peer only costs its
// own write timeout.
type Broadcaster struct {
	registry *Registry
	metrics  *observability.Metrics
	log      *slog.Logger
}

func NewBroadcaster(registry *Registry, metrics *observability.Metrics, log *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, metrics: metrics, log: log}
}

// Broadcast returns the sessions whose send failed. It never touches the
// registry: cleanup is the caller's job once the whole pass is over.
func (b *Broadcaster) Broadcast(ctx context.Context, f event.Frame, exclude *Session) []*Session {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []*Session
	)
	for _, s := range b.registry.Live() {
		if s == exclude {
			continue
		}
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Deliver(ctx, f); err != nil {
				b.log.Warn("Broadcast send failed", "username", s.Username, "type", f.FrameType(), "error", err)
				mu.Lock()
				failed = append(failed, s)
				mu.Unlock()
				return
			}
			b.metrics.FramesSent.WithLabelValues(f.FrameType()).Inc()
		}(s)
	}
	wg.Wait()
	if len(failed) > 0 {
		b.metrics.BroadcastFailures.Add(float64(len(failed)))
	}
	return failed
}
