// Package domain contains core concepts of the feedback relay.
// This file defines Message, a tagged variant over text and file payloads.
// Messages are immutable once their ID has been assigned.
package domain

import "time"

type Kind string

const (
	KindText Kind = "message"
	KindFile Kind = "file"
)

// Message is the unit stored in the log.
// Exactly one of Text or File is set, according to Kind.
type Message struct {
	ID     string
	Author string
	At     time.Time
	Kind   Kind
	Text   *TextBody
	File   *FileBody
}

type TextBody struct {
	Content string
}

// FileBody is the display side of an upload.
// Record is nil for legacy entries persisted before stored names were tracked.
type FileBody struct {
	Name   string
	Size   int64
	Record *FileRecord
}

// FileRecord maps a file message to its stored artifact.
// It is resolvable by StoredName alone.
type FileRecord struct {
	StoredName string
	LogicalID  string
	Size       int64
	MimeType   string
}

func NewTextMessage(id, author, content string, at time.Time) Message {
	return Message{ID: id, Author: author, At: at, Kind: KindText, Text: &TextBody{Content: content}}
}

func NewFileMessage(id, author, name string, record FileRecord, at time.Time) Message {
	record.LogicalID = id
	return Message{
		ID:     id,
		Author: author,
		At:     at,
		Kind:   KindFile,
		File:   &FileBody{Name: name, Size: record.Size, Record: &record},
	}
}

// Valid reports whether the variant tag matches the populated payload.
func (m Message) Valid() bool {
	switch m.Kind {
	case KindText:
		return m.Text != nil && m.File == nil
	case KindFile:
		return m.File != nil && m.Text == nil
	default:
		return false
	}
}

// FormatTime renders timestamps the way they travel on the wire.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var legacyLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTime accepts RFC 3339 and the naive ISO-8601 form written by older snapshots.
func ParseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range legacyLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
