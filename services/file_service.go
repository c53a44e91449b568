package services

import (
	"context"
	"feedback-relay/contract"
	"feedback-relay/domain"
	"feedback-relay/domain/event"
	"feedback-relay/errors"
	"feedback-relay/observability"
	"feedback-relay/storage"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

type IFileService interface {
	SubmitFile(ctx context.Context, username, name string, data []byte) (*event.FileShared, error)
	ResolveDownload(fileID string) (*event.FileDownloadURL, error)
}

// FileService bridges uploads received over TCP to the HTTP download path.
type FileService struct {
	ledger    *domain.Ledger
	store     *storage.ArtifactStore
	snapshots contract.ISnapshotSink
	metrics   *observability.Metrics
	log       *slog.Logger
	baseURL   string
}

func NewFileService(
	ledger *domain.Ledger,
	store *storage.ArtifactStore,
	snapshots contract.ISnapshotSink,
	metrics *observability.Metrics,
	log *slog.Logger,
	baseURL string,
) *FileService {
	return &FileService{
		ledger:    ledger,
		store:     store,
		snapshots: snapshots,
		metrics:   metrics,
		log:       log,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// SubmitFile writes the artifact first, then records the message.
// The recorded size is the decoded byte count, whatever the client declared.
func (s *FileService) SubmitFile(ctx context.Context, username, name string, data []byte) (*event.FileShared, error) {
	artifact, err := s.store.Save(name, data)
	if err != nil {
		return nil, err
	}
	ts := strings.TrimPrefix(strings.TrimSuffix(artifact.StoredName, extOf(artifact.StoredName)), "file_")
	id := fmt.Sprintf("file_%s_%s", username, ts)
	record := domain.FileRecord{StoredName: artifact.StoredName, Size: artifact.Size, MimeType: artifact.MimeType}

	message, status, ok := s.ledger.AppendFile(id, username, name, record)
	if !ok {
		// Unreachable while stored names stay unique.
		return nil, fmt.Errorf("%w: file id %s already taken", errors.ErrInvalidFile, id)
	}
	s.snapshots.Persist(ctx, s.ledger.Snapshot())
	s.metrics.MessagesStored.WithLabelValues(string(domain.KindFile)).Inc()
	s.log.Info("File stored", "username", username, "id", id, "name", name,
		"size", artifact.Size, "mime", artifact.MimeType)

	author, _ := s.ledger.Profile(username)
	return event.NewFileShared(message, author, status, s.DownloadURL(artifact.StoredName)), nil
}

// ResolveDownload maps a file message id to its HTTP download URL.
func (s *FileService) ResolveDownload(fileID string) (*event.FileDownloadURL, error) {
	message, ok := s.ledger.Message(fileID)
	if !ok || message.Kind != domain.KindFile {
		return nil, fmt.Errorf("%w: %s", errors.ErrFileNotFound, fileID)
	}
	record, err := s.resolve(message)
	if err != nil {
		return nil, err
	}
	return event.NewFileDownloadURL(fileID, message.File.Name, record.Size, s.DownloadURL(record.StoredName)), nil
}

// StoredName maps a file message id to the artifact name on disk.
func (s *FileService) StoredName(fileID string) (string, error) {
	message, ok := s.ledger.Message(fileID)
	if !ok || message.Kind != domain.KindFile {
		return "", fmt.Errorf("%w: %s", errors.ErrFileNotFound, fileID)
	}
	record, err := s.resolve(message)
	if err != nil {
		return "", err
	}
	return record.StoredName, nil
}

// resolve checks that the artifact behind a file message is still on disk.
func (s *FileService) resolve(message domain.Message) (domain.FileRecord, error) {
	record := message.File.Record
	if record == nil {
		return domain.FileRecord{}, fmt.Errorf("%w: %s has no stored artifact", errors.ErrFileNotFound, message.ID)
	}
	if _, err := s.store.Stat(record.StoredName); err != nil {
		return domain.FileRecord{}, err
	}
	return *record, nil
}

func (s *FileService) DownloadURL(storedName string) string {
	return s.baseURL + "/download?file_name=" + url.QueryEscape(storedName)
}

func extOf(storedName string) string {
	if i := strings.LastIndexByte(storedName, '.'); i >= 0 {
		return storedName[i:]
	}
	return ""
}
