package repositories

import (
	"feedback-relay/domain"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() domain.Snapshot {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snapshot := domain.EmptySnapshot()
	snapshot.Users["alice"] = domain.NewUserProfile("alice", at)
	snapshot.Users["bob"] = domain.NewUserProfile("bob", at.Add(time.Minute))
	snapshot.Messages["alice_1"] = domain.NewTextMessage("alice_1", "alice", "你好 world", at.Add(2*time.Minute))
	snapshot.Messages["file_bob_1"] = domain.NewFileMessage("file_bob_1", "bob", "report.pdf",
		domain.FileRecord{StoredName: "file_1.pdf", Size: 1024, MimeType: "application/pdf"}, at.Add(3*time.Minute))
	snapshot.ReadBy["alice_1"] = []string{"alice", "bob"}
	snapshot.ReadBy["file_bob_1"] = []string{"bob"}
	return snapshot
}

func TestJSONSnapshotRepository_Save_Then_Load(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	repository, err := NewJSONSnapshotRepository(t.TempDir(), log)
	req.NoError(err)

	// Given an empty directory
	loaded, err := repository.Load()
	req.NoError(err)
	req.Empty(loaded.Messages)
	req.Empty(loaded.Users)

	// When a snapshot is saved and loaded back
	snapshot := sampleSnapshot()
	req.NoError(repository.Save(snapshot))
	loaded, err = repository.Load()
	req.NoError(err)

	// Then nothing is lost
	req.Equal(snapshot.Users, loaded.Users)
	req.Equal(snapshot.Messages, loaded.Messages)
	req.Equal(snapshot.ReadBy, loaded.ReadBy)
}

func TestJSONSnapshotRepository_Load_Legacy_Documents(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given files written by an older relay: naive timestamps, no type on
	// text entries and no stored name on file entries
	messages := `{
  "alice_ab12cd34": {"id": "alice_ab12cd34", "content": "hello", "username": "alice",
                     "timestamp": "2024-05-01T10:00:00.123456", "read_by": ["alice", "bob"]},
  "file_bob_1714557600": {"type": "file", "id": "file_bob_1714557600", "name": "a.txt", "size": 3,
                          "username": "bob", "timestamp": "2024-05-01T10:01:00"},
  "broken": {"id": "broken", "username": "x", "timestamp": "not a time"}
}`
	users := `{"alice": {"username": "alice", "avatar": "https://example/a.svg",
                        "first_seen": "2024-05-01T09:00:00", "last_seen": "2024-05-01T10:00:00"}}`
	req.NoError(os.WriteFile(filepath.Join(dir, MessagesFile), []byte(messages), 0o644))
	req.NoError(os.WriteFile(filepath.Join(dir, UsersFile), []byte(users), 0o644))
	repository, err := NewJSONSnapshotRepository(dir, log)
	req.NoError(err)

	// When
	snapshot, err := repository.Load()

	// Then
	req.NoError(err)
	req.Len(snapshot.Messages, 2)
	text := snapshot.Messages["alice_ab12cd34"]
	req.Equal(domain.KindText, text.Kind)
	req.Equal("hello", text.Text.Content)
	req.Equal(time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC), text.At)
	req.Equal([]string{"alice", "bob"}, snapshot.ReadBy["alice_ab12cd34"])

	file := snapshot.Messages["file_bob_1714557600"]
	req.Equal(domain.KindFile, file.Kind)
	req.Equal("a.txt", file.File.Name)
	req.Nil(file.File.Record)

	req.Equal("https://example/a.svg", snapshot.Users["alice"].Avatar)
}

func TestJSONSnapshotRepository_Load_Corrupted_File(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	req.NoError(os.WriteFile(filepath.Join(dir, MessagesFile), []byte("{not json"), 0o644))
	repository, err := NewJSONSnapshotRepository(dir, slog.Default())
	req.NoError(err)

	_, err = repository.Load()
	req.Error(err)
}

func TestJSONSnapshotRepository_Save_Leaves_No_Temp_Files(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	repository, err := NewJSONSnapshotRepository(dir, slog.Default())
	req.NoError(err)

	req.NoError(repository.Save(sampleSnapshot()))
	req.NoError(repository.Save(sampleSnapshot()))

	entries, err := os.ReadDir(dir)
	req.NoError(err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	req.ElementsMatch([]string{MessagesFile, UsersFile}, names)
}

func TestBadgerSnapshotRepository_Save_Then_Load(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()
	repository := NewBadgerSnapshotRepository(db, slog.Default())

	loaded, err := repository.Load()
	req.NoError(err)
	req.Empty(loaded.Messages)

	// When saved twice, with a read receipt added in between
	snapshot := sampleSnapshot()
	req.NoError(repository.Save(snapshot))
	snapshot.ReadBy["file_bob_1"] = []string{"alice", "bob"}
	req.NoError(repository.Save(snapshot))

	// Then the latest read sets win and nothing is duplicated
	loaded, err = repository.Load()
	req.NoError(err)
	req.Equal(snapshot.Users, loaded.Users)
	req.Equal(snapshot.Messages, loaded.Messages)
	req.Equal(snapshot.ReadBy, loaded.ReadBy)
}
