package storage

import (
	stderrors "errors"
	"feedback-relay/errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

const maxExtLength = 16

// ArtifactStore keeps uploaded bytes under a flat directory.
// Stored names never derive from user input beyond a sanitized extension.
type ArtifactStore struct {
	mu  sync.Mutex
	dir string
	log *slog.Logger
	now func() time.Time
}

type Artifact struct {
	StoredName string
	Size       int64
	MimeType   string
}

func NewArtifactStore(dir string, log *slog.Logger, now func() time.Time) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create files dir %s: %w", dir, err)
	}
	if now == nil {
		now = time.Now
	}
	return &ArtifactStore{dir: dir, log: log, now: now}, nil
}

func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Save writes data under a fresh "file_<unix_nano><ext>" name.
// The name is reserved with O_EXCL; a collision bumps the timestamp.
func (s *ArtifactStore) Save(originalName string, data []byte) (Artifact, error) {
	ext := sanitizeExt(originalName)
	f, storedName, err := s.reserve(ext)
	if err != nil {
		return Artifact{}, err
	}
	path := f.Name()
	if _, err = f.Write(data); err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return Artifact{}, fmt.Errorf("write artifact %s: %w", storedName, err)
	}
	artifact := Artifact{
		StoredName: storedName,
		Size:       int64(len(data)),
		MimeType:   mimetype.Detect(data).String(),
	}
	s.log.Debug("Artifact stored", "stored_name", storedName, "size", artifact.Size, "mime", artifact.MimeType)
	return artifact, nil
}

func (s *ArtifactStore) reserve(ext string) (*os.File, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UnixNano()
	for attempt := 0; attempt < 1000; attempt++ {
		name := fmt.Sprintf("file_%d%s", ts+int64(attempt), ext)
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !stderrors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("reserve artifact: %w", err)
		}
	}
	return nil, "", fmt.Errorf("reserve artifact: no free name near %d", ts)
}

// Path resolves a stored name. Anything but a bare file name is rejected.
func (s *ArtifactStore) Path(storedName string) (string, error) {
	if storedName == "" || storedName == "." || storedName == ".." ||
		filepath.Base(storedName) != storedName || strings.ContainsAny(storedName, `/\`) {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidFile, storedName)
	}
	return filepath.Join(s.dir, storedName), nil
}

func (s *ArtifactStore) Stat(storedName string) (Artifact, error) {
	path, err := s.Path(storedName)
	if err != nil {
		return Artifact{}, err
	}
	info, err := os.Stat(path)
	if stderrors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return Artifact{}, fmt.Errorf("%w: %s", errors.ErrFileNotFound, storedName)
	}
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{StoredName: storedName, Size: info.Size()}, nil
}

// Open returns the artifact positioned at its first byte, with its sniffed
// MIME type.
func (s *ArtifactStore) Open(storedName string) (*os.File, Artifact, error) {
	artifact, err := s.Stat(storedName)
	if err != nil {
		return nil, Artifact{}, err
	}
	path, _ := s.Path(storedName)
	f, err := os.Open(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, Artifact{}, fmt.Errorf("%w: %s", errors.ErrFileNotFound, storedName)
	}
	if err != nil {
		return nil, Artifact{}, err
	}
	mtype, err := mimetype.DetectReader(f)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = f.Close()
		return nil, Artifact{}, fmt.Errorf("sniff artifact %s: %w", storedName, err)
	}
	artifact.MimeType = mtype.String()
	return f, artifact, nil
}

// sanitizeExt keeps a short alphanumeric extension, lowercased.
func sanitizeExt(name string) string {
	ext := filepath.Ext(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if len(ext) < 2 || len(ext) > maxExtLength {
		return ""
	}
	for _, r := range ext[1:] {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return ""
		}
	}
	return strings.ToLower(ext)
}
