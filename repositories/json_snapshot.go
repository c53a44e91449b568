package repositories

import (
	"encoding/json"
	stderrors "errors"
	"feedback-relay/domain"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	MessagesFile = "feedback_data.json"
	UsersFile    = "users.json"
)

// JSONSnapshotRepository keeps the state in two human-readable files under dir.
// Each file is replaced atomically so a crash never leaves a truncated document.
type JSONSnapshotRepository struct {
	dir string
	log *slog.Logger
}

func NewJSONSnapshotRepository(dir string, log *slog.Logger) (*JSONSnapshotRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &JSONSnapshotRepository{dir: dir, log: log}, nil
}

func (r *JSONSnapshotRepository) Load() (domain.Snapshot, error) {
	messages := map[string]MessageDoc{}
	if err := r.read(MessagesFile, &messages); err != nil {
		return domain.Snapshot{}, err
	}
	users := map[string]UserDoc{}
	if err := r.read(UsersFile, &users); err != nil {
		return domain.Snapshot{}, err
	}
	snapshot := assemble(r.log, messages, users)
	r.log.Info("Snapshot loaded", "messages", len(snapshot.Messages), "users", len(snapshot.Users))
	return snapshot, nil
}

func (r *JSONSnapshotRepository) Save(snapshot domain.Snapshot) error {
	messages := make(map[string]MessageDoc, len(snapshot.Messages))
	for id, message := range snapshot.Messages {
		messages[id] = fromMessage(message, snapshot.ReadBy[id])
	}
	users := make(map[string]UserDoc, len(snapshot.Users))
	for name, profile := range snapshot.Users {
		users[name] = fromProfile(profile)
	}
	if err := r.write(MessagesFile, messages); err != nil {
		return err
	}
	return r.write(UsersFile, users)
}

func (r *JSONSnapshotRepository) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if stderrors.Is(err, fs.ErrNotExist) {
		r.log.Info("No snapshot file yet", "file", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err = json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// write goes through a temp file, fsync and rename.
func (r *JSONSnapshotRepository) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(r.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err = os.Rename(tmpName, filepath.Join(r.dir, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
