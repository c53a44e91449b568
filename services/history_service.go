package services

import (
	"feedback-relay/domain"
	"feedback-relay/domain/event"

	"github.com/samber/lo"
)

const DefaultHistoryLimit = 50

type IHistoryService interface {
	Recent() []event.HistoryEntry
}

// HistoryService builds the replay sent with register_success.
type HistoryService struct {
	ledger *domain.Ledger
	files  *FileService
	limit  int
}

func NewHistoryService(ledger *domain.Ledger, files *FileService, limit int) *HistoryService {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	return &HistoryService{ledger: ledger, files: files, limit: limit}
}

// Recent returns the newest messages, oldest first.
// File entries whose artifact still resolves are replayed as
// file_download_url, the others as plain file entries.
func (s *HistoryService) Recent() []event.HistoryEntry {
	return lo.Map(s.ledger.Recent(s.limit), func(entry domain.Entry, _ int) event.HistoryEntry {
		return s.toHistoryEntry(entry)
	})
}

func (s *HistoryService) toHistoryEntry(entry domain.Entry) event.HistoryEntry {
	m := entry.Message
	h := event.HistoryEntry{
		ID:          m.ID,
		Username:    m.Author,
		UserInfo:    event.NewUserInfo(entry.Author),
		Timestamp:   domain.FormatTime(m.At),
		ReadByCount: entry.Status.ReadBy,
		TotalUsers:  entry.Status.TotalUsers,
	}
	switch m.Kind {
	case domain.KindText:
		h.Type = event.TypeHistoryMessage
		h.Content = m.Text.Content
	case domain.KindFile:
		h.Type = event.TypeFile
		h.Name = m.File.Name
		h.Size = m.File.Size
		if record, err := s.files.resolve(m); err == nil {
			h.Type = event.TypeFileDownloadURL
			h.FileID = m.ID
			h.URL = s.files.DownloadURL(record.StoredName)
		}
	}
	return h
}
