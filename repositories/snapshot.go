//go:generate go run go.uber.org/mock/mockgen -source=snapshot.go -destination=../mocks/mock_snapshot_repository.go -package=mocks
package repositories

import (
	"feedback-relay/domain"
	"fmt"
	"log/slog"
	"slices"
)

// ISnapshotRepository stores complete copies of the relay state.
// Load on an empty store returns domain.EmptySnapshot().
type ISnapshotRepository interface {
	Load() (domain.Snapshot, error)
	Save(snapshot domain.Snapshot) error
}

// MessageDoc is the persisted form of one message and its read set.
// Text entries carry Content, file entries carry Name, Size and, since stored
// names have been tracked, StoredName.
type MessageDoc struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Content    string   `json:"content,omitempty"`
	Name       string   `json:"name,omitempty"`
	Size       int64    `json:"size,omitempty"`
	StoredName string   `json:"stored_name,omitempty"`
	MimeType   string   `json:"mime_type,omitempty"`
	Username   string   `json:"username"`
	Timestamp  string   `json:"timestamp"`
	ReadBy     []string `json:"read_by"`
}

type UserDoc struct {
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
}

func fromMessage(message domain.Message, readBy []string) MessageDoc {
	doc := MessageDoc{
		ID:        message.ID,
		Type:      string(message.Kind),
		Username:  message.Author,
		Timestamp: domain.FormatTime(message.At),
		ReadBy:    slices.Clone(readBy),
	}
	if doc.ReadBy == nil {
		doc.ReadBy = []string{}
	}
	switch message.Kind {
	case domain.KindText:
		doc.Content = message.Text.Content
	case domain.KindFile:
		doc.Name = message.File.Name
		doc.Size = message.File.Size
		if record := message.File.Record; record != nil {
			doc.StoredName = record.StoredName
			doc.MimeType = record.MimeType
		}
	}
	return doc
}

// toMessage rebuilds a message. Entries without a type are legacy text.
func toMessage(id string, doc MessageDoc) (domain.Message, error) {
	if doc.ID == "" {
		doc.ID = id
	}
	at, err := domain.ParseTime(doc.Timestamp)
	if err != nil {
		return domain.Message{}, fmt.Errorf("message %s: %w", doc.ID, err)
	}
	switch domain.Kind(doc.Type) {
	case domain.KindText, "":
		return domain.NewTextMessage(doc.ID, doc.Username, doc.Content, at), nil
	case domain.KindFile:
		if doc.StoredName == "" {
			return domain.Message{
				ID:     doc.ID,
				Author: doc.Username,
				At:     at,
				Kind:   domain.KindFile,
				File:   &domain.FileBody{Name: doc.Name, Size: doc.Size},
			}, nil
		}
		record := domain.FileRecord{StoredName: doc.StoredName, Size: doc.Size, MimeType: doc.MimeType}
		return domain.NewFileMessage(doc.ID, doc.Username, doc.Name, record, at), nil
	default:
		return domain.Message{}, fmt.Errorf("message %s: unknown type %q", doc.ID, doc.Type)
	}
}

func fromProfile(p domain.UserProfile) UserDoc {
	return UserDoc{
		Username:  p.Username,
		Avatar:    p.Avatar,
		FirstSeen: domain.FormatTime(p.FirstSeen),
		LastSeen:  domain.FormatTime(p.LastSeen),
	}
}

func toProfile(name string, doc UserDoc) domain.UserProfile {
	profile := domain.UserProfile{Username: doc.Username, Avatar: doc.Avatar}
	if profile.Username == "" {
		profile.Username = name
	}
	if profile.Avatar == "" {
		profile.Avatar = domain.Avatar(profile.Username)
	}
	if at, err := domain.ParseTime(doc.FirstSeen); err == nil {
		profile.FirstSeen = at
	}
	if at, err := domain.ParseTime(doc.LastSeen); err == nil {
		profile.LastSeen = at
	}
	return profile
}

// assemble turns decoded documents into a snapshot, skipping broken entries.
func assemble(log *slog.Logger, messages map[string]MessageDoc, users map[string]UserDoc) domain.Snapshot {
	snapshot := domain.EmptySnapshot()
	for name, doc := range users {
		profile := toProfile(name, doc)
		snapshot.Users[profile.Username] = profile
	}
	for id, doc := range messages {
		message, err := toMessage(id, doc)
		if err != nil {
			log.Warn("Skipping unreadable message", "id", id, "error", err)
			continue
		}
		snapshot.Messages[message.ID] = message
		snapshot.ReadBy[message.ID] = doc.ReadBy
	}
	return snapshot
}
