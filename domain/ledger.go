package domain

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

type Set map[string]struct{}

// Snapshot is a complete copy of the durable state.
// Version grows with every mutation so that writers can drop stale copies.
type Snapshot struct {
	Version  uint64
	Users    map[string]UserProfile
	Messages map[string]Message
	ReadBy   map[string][]string
}

func EmptySnapshot() Snapshot {
	return Snapshot{
		Users:    map[string]UserProfile{},
		Messages: map[string]Message{},
		ReadBy:   map[string][]string{},
	}
}

// ReadStatus is the aggregate view of one read-receipt set.
type ReadStatus struct {
	MessageID  string
	ReadBy     int
	TotalUsers int
}

// Entry is a message enriched for client replay.
type Entry struct {
	Message Message
	Author  UserProfile
	Status  ReadStatus
}

// Ledger owns the user directory, the message log and the read-receipt sets.
// Every mutation happens under one lock; callers never see the maps.
type Ledger struct {
	mu       sync.RWMutex
	users    map[string]UserProfile
	messages map[string]Message
	readBy   map[string]Set
	version  uint64
	last     time.Time
	now      func() time.Time
}

func NewLedger(snapshot Snapshot, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	l := &Ledger{
		users:    make(map[string]UserProfile, len(snapshot.Users)),
		messages: make(map[string]Message, len(snapshot.Messages)),
		readBy:   make(map[string]Set, len(snapshot.Messages)),
		version:  snapshot.Version,
		now:      now,
	}
	for name, profile := range snapshot.Users {
		l.users[name] = profile
	}
	for id, message := range snapshot.Messages {
		if !message.Valid() {
			continue
		}
		l.messages[id] = message
		if message.At.After(l.last) {
			l.last = message.At
		}
		readers := make(Set)
		for _, username := range snapshot.ReadBy[id] {
			if _, ok := l.users[username]; ok {
				readers[username] = struct{}{}
			}
		}
		if _, ok := l.users[message.Author]; ok {
			readers[message.Author] = struct{}{}
		}
		l.readBy[id] = readers
	}
	return l
}

// stamp returns a strictly increasing UTC timestamp. Caller holds the lock.
func (l *Ledger) stamp() time.Time {
	at := l.now().UTC()
	if !at.After(l.last) {
		at = l.last.Add(time.Microsecond)
	}
	l.last = at
	return at
}

// Touch creates the profile on first sight or refreshes LastSeen.
func (l *Ledger) Touch(username string) UserProfile {
	l.mu.Lock()
	defer l.mu.Unlock()
	at := l.now().UTC()
	profile, ok := l.users[username]
	if !ok {
		profile = NewUserProfile(username, at)
	} else {
		profile.LastSeen = at
	}
	l.users[username] = profile
	l.version++
	return profile
}

// AppendText stores a text message unless id is already taken.
func (l *Ledger) AppendText(id, author, content string) (Message, ReadStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.messages[id]; exists {
		return Message{}, ReadStatus{}, false
	}
	message := NewTextMessage(id, author, content, l.stamp())
	return message, l.insert(message), true
}

// AppendFile stores a file message whose record was written beforehand.
func (l *Ledger) AppendFile(id, author, name string, record FileRecord) (Message, ReadStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.messages[id]; exists {
		return Message{}, ReadStatus{}, false
	}
	message := NewFileMessage(id, author, name, record, l.stamp())
	return message, l.insert(message), true
}

func (l *Ledger) insert(message Message) ReadStatus {
	l.messages[message.ID] = message
	l.readBy[message.ID] = Set{message.Author: {}}
	l.version++
	return l.status(message.ID)
}

// MarkRead adds username to the read set of id.
// It reports false when the message is unknown, the user is unknown or the
// user already read it.
func (l *Ledger) MarkRead(id, username string) (ReadStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	readers, ok := l.readBy[id]
	if !ok {
		return ReadStatus{}, false
	}
	if _, known := l.users[username]; !known {
		return ReadStatus{}, false
	}
	if _, already := readers[username]; already {
		return ReadStatus{}, false
	}
	readers[username] = struct{}{}
	l.version++
	return l.status(id), true
}

func (l *Ledger) status(id string) ReadStatus {
	return ReadStatus{MessageID: id, ReadBy: len(l.readBy[id]), TotalUsers: len(l.users)}
}

// Status returns the current aggregate for id.
func (l *Ledger) Status(id string) (ReadStatus, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.messages[id]; !ok {
		return ReadStatus{}, false
	}
	return l.status(id), true
}

// Recent selects the limit newest messages and returns them oldest first.
func (l *Ledger) Recent(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 {
		return nil
	}
	messages := lo.Values(l.messages)
	slices.SortFunc(messages, func(a, b Message) int {
		if c := b.At.Compare(a.At); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if len(messages) > limit {
		messages = messages[:limit]
	}
	slices.Reverse(messages)
	return lo.Map(messages, func(m Message, _ int) Entry {
		return Entry{Message: m, Author: l.profile(m.Author), Status: l.status(m.ID)}
	})
}

func (l *Ledger) profile(username string) UserProfile {
	if profile, ok := l.users[username]; ok {
		return profile
	}
	return UserProfile{Username: username, Avatar: Avatar(username)}
}

// Profile returns the directory entry, or a synthetic one for unknown authors.
func (l *Ledger) Profile(username string) (UserProfile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.users[username]
	return l.profile(username), ok
}

func (l *Ledger) Message(id string) (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	message, ok := l.messages[id]
	return message, ok
}

func (l *Ledger) TotalUsers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.users)
}

// Snapshot copies the whole state. Read sets are returned sorted.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snapshot := Snapshot{
		Version:  l.version,
		Users:    make(map[string]UserProfile, len(l.users)),
		Messages: make(map[string]Message, len(l.messages)),
		ReadBy:   make(map[string][]string, len(l.readBy)),
	}
	for name, profile := range l.users {
		snapshot.Users[name] = profile
	}
	for id, message := range l.messages {
		snapshot.Messages[id] = message
	}
	for id, readers := range l.readBy {
		names := lo.Keys(readers)
		slices.Sort(names)
		snapshot.ReadBy[id] = names
	}
	return snapshot
}
