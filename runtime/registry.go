package runtime

import (
	"context"
	"feedback-relay/contract"
	"feedback-relay/domain/event"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Session is one TCP connection. It becomes live once admitted under a
// username and stops being live when removed, for good.
// Broadcasts reaching a live session before its welcome are held back and
// flushed right after it, minus the messages the welcome already replayed.
type Session struct {
	ID       uuid.UUID
	Remote   string
	Username string
	JoinedAt time.Time
	sink     contract.EventSink

	gate     sync.Mutex
	welcomed bool
	pending  []event.Frame
	replayed map[string]struct{}
}

func NewSession(sink contract.EventSink, remote string) *Session {
	return &Session{ID: uuid.New(), Remote: remote, sink: sink}
}

func (s *Session) Send(ctx context.Context, f event.Frame) error {
	return s.sink.Consume(ctx, f)
}

// Deliver is the broadcast path: it queues until Welcome has run.
func (s *Session) Deliver(ctx context.Context, f event.Frame) error {
	s.gate.Lock()
	defer s.gate.Unlock()
	if !s.welcomed {
		s.pending = append(s.pending, f)
		return nil
	}
	if s.wasReplayed(f) {
		return nil
	}
	return s.sink.Consume(ctx, f)
}

// Welcome sends the register_success frame, then whatever was broadcast to
// the session while it was being built.
func (s *Session) Welcome(ctx context.Context, welcome *event.RegisterSuccess) error {
	s.gate.Lock()
	defer s.gate.Unlock()
	s.replayed = make(map[string]struct{}, len(welcome.RecentMessages))
	for _, entry := range welcome.RecentMessages {
		s.replayed[entry.ID] = struct{}{}
	}
	if err := s.sink.Consume(ctx, welcome); err != nil {
		return err
	}
	pending := s.pending
	s.pending = nil
	s.welcomed = true
	for _, f := range pending {
		if s.wasReplayed(f) {
			continue
		}
		if err := s.sink.Consume(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) wasReplayed(f event.Frame) bool {
	var id string
	switch f := f.(type) {
	case *event.NewMessage:
		id = f.ID
	case *event.FileShared:
		id = f.ID
	default:
		return false
	}
	_, ok := s.replayed[id]
	return ok
}

func (s *Session) Close() error {
	return s.sink.Close()
}

// Registry holds the live sessions and the username index.
// Admissions are serialized by admitMu so a takeover runs its three steps
// (notify old, remove old, close old) before the new session is visible.
// The old session leaves the live set before its connection is closed, so
// its own cleanup always finds it gone.
// The map lock is never held during network I/O.
type Registry struct {
	admitMu    sync.Mutex
	mu         sync.RWMutex
	sessions   map[uuid.UUID]*Session
	byUsername map[string]*Session
	log        *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		sessions:   make(map[uuid.UUID]*Session),
		byUsername: make(map[string]*Session),
		log:        log,
	}
}

// Admit makes s the live session for username and returns the session it
// displaced, if any. The displaced session has already received notice and
// been closed when Admit returns. s receives broadcasts only once Welcome
// has run.
func (r *Registry) Admit(ctx context.Context, s *Session, username string, notice event.Frame) *Session {
	r.admitMu.Lock()
	defer r.admitMu.Unlock()

	r.mu.RLock()
	previous, taken := r.byUsername[username]
	r.mu.RUnlock()

	if taken && previous != s {
		if err := previous.Send(ctx, notice); err != nil {
			r.log.Debug("Takeover notice not delivered", "username", username, "error", err)
		}
		r.Remove(previous)
		if err := previous.Close(); err != nil {
			r.log.Debug("Closing displaced session", "username", username, "error", err)
		}
		r.log.Info("Session taken over", "username", username,
			"previous", previous.Remote, "next", s.Remote)
	} else {
		previous = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s.Username = username
	s.JoinedAt = time.Now().UTC()
	r.sessions[s.ID] = s
	r.byUsername[username] = s
	return previous
}

// Remove reports whether s was live. The username entry is only dropped when
// it still points at s.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return false
	}
	delete(r.sessions, s.ID)
	if current, ok := r.byUsername[s.Username]; ok && current == s {
		delete(r.byUsername, s.Username)
	}
	return true
}

func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUsername[username]
	return s, ok
}

func (r *Registry) IsLive(s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[s.ID]
	return ok
}

// Live returns a copy of the live set, safe to walk without the lock.
func (r *Registry) Live() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.sessions)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Usernames lists the users currently online.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.byUsername)
}
