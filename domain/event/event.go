// Package event holds every frame the relay sends to clients.
// Each frame carries its own "type" discriminator, set by its constructor.
package event

import (
	"feedback-relay/domain"
)

const (
	TypeRegisterSuccess  = "register_success"
	TypeNewMessage       = "new_message"
	TypeFile             = "file"
	TypeFileDownloadURL  = "file_download_url"
	TypeReadStatusUpdate = "read_status_update"
	TypeUserOnline       = "user_online"
	TypeUserOffline      = "user_offline"
	TypeError            = "error"
	TypePong             = "pong"
	TypeHistoryMessage   = "message"
)

type Frame interface {
	FrameType() string
}

type UserInfo struct {
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	FirstSeen string `json:"first_seen,omitempty"`
	LastSeen  string `json:"last_seen,omitempty"`
}

func NewUserInfo(p domain.UserProfile) UserInfo {
	info := UserInfo{Username: p.Username, Avatar: p.Avatar}
	if !p.FirstSeen.IsZero() {
		info.FirstSeen = domain.FormatTime(p.FirstSeen)
	}
	if !p.LastSeen.IsZero() {
		info.LastSeen = domain.FormatTime(p.LastSeen)
	}
	return info
}

type RegisterSuccess struct {
	Type           string         `json:"type"`
	User           UserInfo       `json:"user"`
	RecentMessages []HistoryEntry `json:"recent_messages"`
}

func NewRegisterSuccess(user UserInfo, recent []HistoryEntry) *RegisterSuccess {
	if recent == nil {
		recent = []HistoryEntry{}
	}
	return &RegisterSuccess{Type: TypeRegisterSuccess, User: user, RecentMessages: recent}
}

func (f *RegisterSuccess) FrameType() string { return f.Type }

// HistoryEntry is one replayed message.
// Type is "message" for text, "file_download_url" when the artifact still
// resolves and "file" otherwise.
type HistoryEntry struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Content     string   `json:"content,omitempty"`
	FileID      string   `json:"file_id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Size        int64    `json:"size,omitempty"`
	URL         string   `json:"url,omitempty"`
	Username    string   `json:"username"`
	UserInfo    UserInfo `json:"user_info"`
	Timestamp   string   `json:"timestamp"`
	ReadByCount int      `json:"read_by_count"`
	TotalUsers  int      `json:"total_users"`
}

type NewMessage struct {
	Type        string   `json:"type"`
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Content     string   `json:"content"`
	UserInfo    UserInfo `json:"user_info"`
	Timestamp   string   `json:"timestamp"`
	ReadByCount int      `json:"read_by_count"`
	TotalUsers  int      `json:"total_users"`
}

func NewNewMessage(m domain.Message, author domain.UserProfile, status domain.ReadStatus) *NewMessage {
	return &NewMessage{
		Type:        TypeNewMessage,
		ID:          m.ID,
		Username:    m.Author,
		Content:     m.Text.Content,
		UserInfo:    NewUserInfo(author),
		Timestamp:   domain.FormatTime(m.At),
		ReadByCount: status.ReadBy,
		TotalUsers:  status.TotalUsers,
	}
}

func (f *NewMessage) FrameType() string { return f.Type }

// FileShared announces an upload to every session.
type FileShared struct {
	Type        string   `json:"type"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Size        int64    `json:"size"`
	URL         string   `json:"url,omitempty"`
	Username    string   `json:"username"`
	UserInfo    UserInfo `json:"user_info"`
	Timestamp   string   `json:"timestamp"`
	ReadByCount int      `json:"read_by_count"`
	TotalUsers  int      `json:"total_users"`
}

func NewFileShared(m domain.Message, author domain.UserProfile, status domain.ReadStatus, url string) *FileShared {
	return &FileShared{
		Type:        TypeFile,
		ID:          m.ID,
		Name:        m.File.Name,
		Size:        m.File.Size,
		URL:         url,
		Username:    m.Author,
		UserInfo:    NewUserInfo(author),
		Timestamp:   domain.FormatTime(m.At),
		ReadByCount: status.ReadBy,
		TotalUsers:  status.TotalUsers,
	}
}

func (f *FileShared) FrameType() string { return f.Type }

type FileDownloadURL struct {
	Type   string `json:"type"`
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	URL    string `json:"url"`
}

func NewFileDownloadURL(fileID, name string, size int64, url string) *FileDownloadURL {
	return &FileDownloadURL{Type: TypeFileDownloadURL, FileID: fileID, Name: name, Size: size, URL: url}
}

func (f *FileDownloadURL) FrameType() string { return f.Type }

type ReadStatusUpdate struct {
	Type        string `json:"type"`
	MessageID   string `json:"message_id"`
	ReadByCount int    `json:"read_by_count"`
	TotalUsers  int    `json:"total_users"`
}

func NewReadStatusUpdate(status domain.ReadStatus) *ReadStatusUpdate {
	return &ReadStatusUpdate{
		Type:        TypeReadStatusUpdate,
		MessageID:   status.MessageID,
		ReadByCount: status.ReadBy,
		TotalUsers:  status.TotalUsers,
	}
}

func (f *ReadStatusUpdate) FrameType() string { return f.Type }

type Presence struct {
	Type     string    `json:"type"`
	Username string    `json:"username"`
	UserInfo *UserInfo `json:"user_info,omitempty"`
}

func NewUserOnline(profile domain.UserProfile) *Presence {
	info := NewUserInfo(profile)
	return &Presence{Type: TypeUserOnline, Username: profile.Username, UserInfo: &info}
}

func NewUserOffline(username string) *Presence {
	return &Presence{Type: TypeUserOffline, Username: username}
}

func (f *Presence) FrameType() string { return f.Type }

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) *Error {
	return &Error{Type: TypeError, Message: message}
}

func (f *Error) FrameType() string { return f.Type }

type Pong struct {
	Type string `json:"type"`
}

func NewPong() *Pong { return &Pong{Type: TypePong} }

func (f *Pong) FrameType() string { return f.Type }
