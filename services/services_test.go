package services

import (
	"context"
	"feedback-relay/domain"
	"feedback-relay/domain/event"
	"feedback-relay/errors"
	"feedback-relay/mocks"
	"feedback-relay/moderation"
	"feedback-relay/observability"
	"feedback-relay/storage"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type clock struct {
	mu sync.Mutex
	at time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

type fixture struct {
	clock     *clock
	ledger    *domain.Ledger
	snapshots *mocks.MockISnapshotSink
	store     *storage.ArtifactStore
	messages  *MessageService
	files     *FileService
	receipts  *ReceiptService
	users     *UserService
	history   *HistoryService
}

func newFixture(t *testing.T, moderator *moderation.Moderator) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	c := &clock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	ledger := domain.NewLedger(domain.EmptySnapshot(), c.Now)
	snapshots := mocks.NewMockISnapshotSink(ctrl)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store, err := storage.NewArtifactStore(t.TempDir(), log, c.Now)
	require.NoError(t, err)

	files := NewFileService(ledger, store, snapshots, metrics, log, "http://relay.local:8889/")
	return fixture{
		clock:     c,
		ledger:    ledger,
		snapshots: snapshots,
		store:     store,
		messages:  NewMessageService(ledger, snapshots, domain.NewDedupPolicy(10*time.Second), moderator, metrics, log, c.Now),
		files:     files,
		receipts:  NewReceiptService(ledger, snapshots, log),
		users:     NewUserService(ledger, snapshots, log),
		history:   NewHistoryService(ledger, files, 50),
	}
}

func TestMessageService_SubmitText(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	f.snapshots.EXPECT().Persist(ctx, gomock.Any()).Times(2)
	f.users.Join(ctx, "alice")

	// When alice sends a padded message
	frame := f.messages.SubmitText(ctx, "alice", "  hello 世界  ")

	// Then it is trimmed and acknowledged by its author
	req.NotNil(frame)
	req.Equal(event.TypeNewMessage, frame.Type)
	req.Equal("hello 世界", frame.Content)
	req.Equal("alice", frame.Username)
	req.True(strings.HasPrefix(frame.ID, "alice_"))
	req.Equal(1, frame.ReadByCount)
	req.Equal(1, frame.TotalUsers)
	req.Equal(domain.Avatar("alice"), frame.UserInfo.Avatar)
}

func TestMessageService_SubmitText_Blank_Is_Dropped(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)

	// Then nothing is persisted
	f.snapshots.EXPECT().Persist(gomock.Any(), gomock.Any()).Times(0)

	req.Nil(f.messages.SubmitText(context.Background(), "alice", "   \t\n"))
	req.Empty(f.ledger.Recent(50))
}

func TestMessageService_SubmitText_Dedup_Window(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	// Then only two messages reach the store
	f.snapshots.EXPECT().Persist(ctx, gomock.Any()).Times(2)

	first := f.messages.SubmitText(ctx, "alice", "hi")
	req.NotNil(first)

	// When the same text comes back in the same 10 second bucket
	f.clock.Advance(3 * time.Second)
	req.Nil(f.messages.SubmitText(ctx, "alice", "hi"))
	req.Nil(f.messages.SubmitText(ctx, "alice", " hi "))

	// And once more in the next bucket
	f.clock.Advance(10 * time.Second)
	second := f.messages.SubmitText(ctx, "alice", "hi")
	req.NotNil(second)
	req.NotEqual(first.ID, second.ID)
	req.Len(f.ledger.Recent(50), 2)
}

func TestMessageService_SubmitText_Is_Censored(t *testing.T) {
	req := require.New(t)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*', slog.Default())
	req.NoError(err)
	f := newFixture(t, moderator)
	ctx := context.Background()

	f.snapshots.EXPECT().Persist(ctx, gomock.Any()).Times(1)

	frame := f.messages.SubmitText(ctx, "alice", "the badger")
	req.NotNil(frame)
	req.Equal("the ******", frame.Content)

	// The dedup key still follows the original text
	policy := domain.NewDedupPolicy(10 * time.Second)
	req.Equal(policy.MessageID("alice", "the badger", f.clock.Now()), frame.ID)
}

func TestFileService_SubmitFile_Then_Resolve(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}

	f.snapshots.EXPECT().Persist(ctx, gomock.Any()).Times(2)
	f.users.Join(ctx, "bob")

	// When bob uploads a file
	shared, err := f.files.SubmitFile(ctx, "bob", "report.pdf", data)

	// Then the broadcast frame points at the stored artifact
	req.NoError(err)
	req.Equal(event.TypeFile, shared.Type)
	req.Equal("file_bob_1772366400000000000", shared.ID)
	req.Equal("report.pdf", shared.Name)
	req.Equal(int64(1024), shared.Size)
	req.Equal("http://relay.local:8889/download?file_name=file_1772366400000000000.pdf", shared.URL)
	req.Equal(1, shared.ReadByCount)

	// And the download request resolves to the same URL
	download, err := f.files.ResolveDownload(shared.ID)
	req.NoError(err)
	req.Equal(event.TypeFileDownloadURL, download.Type)
	req.Equal(shared.ID, download.FileID)
	req.Equal(shared.URL, download.URL)
	req.Equal(int64(1024), download.Size)

	// And the id maps back to the stored name for legacy links
	stored, err := f.files.StoredName(shared.ID)
	req.NoError(err)
	req.Equal("file_1772366400000000000.pdf", stored)
}

func TestFileService_ResolveDownload_Not_Found(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()
	f.snapshots.EXPECT().Persist(ctx, gomock.Any()).AnyTimes()

	// Unknown id
	_, err := f.files.ResolveDownload("file_nobody_1")
	req.ErrorIs(err, errors.ErrFileNotFound)

	// A text message is not a file
	text := f.messages.SubmitText(ctx, "alice", "hi")
	_, err = f.files.ResolveDownload(text.ID)
	req.ErrorIs(err, errors.ErrFileNotFound)

	// Artifact removed from disk after the upload
	shared, err := f.files.SubmitFile(ctx, "alice", "a.txt", []byte("abc"))
	req.NoError(err)
	req.NoError(os.Remove(filepath.Join(f.store.Dir(), "file_1772366400000000000.txt")))
	_, err = f.files.ResolveDownload(shared.ID)
	req.ErrorIs(err, errors.ErrFileNotFound)
	_, err = f.files.StoredName(shared.ID)
	req.ErrorIs(err, errors.ErrFileNotFound)
}

func TestReceiptService_MarkRead(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	// join, join, message, one effective receipt
	f.snapshots.EXPECT().Persist(ctx, gomock.Any()).Times(4)
	f.users.Join(ctx, "alice")
	f.users.Join(ctx, "bob")
	message := f.messages.SubmitText(ctx, "alice", "hi")

	update := f.receipts.MarkRead(ctx, "bob", message.ID)
	req.Equal(&event.ReadStatusUpdate{
		Type:        event.TypeReadStatusUpdate,
		MessageID:   message.ID,
		ReadByCount: 2,
		TotalUsers:  2,
	}, update)

	// Then repeated or unknown receipts are silent
	req.Nil(f.receipts.MarkRead(ctx, "bob", message.ID))
	req.Nil(f.receipts.MarkRead(ctx, "bob", "missing"))
}

func TestHistoryService_Recent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()
	f.snapshots.EXPECT().Persist(ctx, gomock.Any()).AnyTimes()

	f.users.Join(ctx, "alice")
	text := f.messages.SubmitText(ctx, "alice", "hi")
	f.clock.Advance(time.Second)
	kept, err := f.files.SubmitFile(ctx, "alice", "kept.txt", []byte("kept"))
	req.NoError(err)
	f.clock.Advance(time.Second)
	lost, err := f.files.SubmitFile(ctx, "alice", "lost.txt", []byte("lost"))
	req.NoError(err)
	req.NoError(os.Remove(filepath.Join(f.store.Dir(), "file_1772366402000000000.txt")))

	entries := f.history.Recent()

	req.Len(entries, 3)
	req.Equal(text.ID, entries[0].ID)
	req.Equal(event.TypeHistoryMessage, entries[0].Type)
	req.Equal("hi", entries[0].Content)

	req.Equal(kept.ID, entries[1].ID)
	req.Equal(event.TypeFileDownloadURL, entries[1].Type)
	req.Equal(kept.ID, entries[1].FileID)
	req.Equal(kept.URL, entries[1].URL)

	req.Equal(lost.ID, entries[2].ID)
	req.Equal(event.TypeFile, entries[2].Type)
	req.Equal("lost.txt", entries[2].Name)
	req.Empty(entries[2].URL)
}

func TestHistoryService_Limit_Is_Capped(t *testing.T) {
	req := require.New(t)
	req.Equal(DefaultHistoryLimit, NewHistoryService(nil, nil, 0).limit)
	req.Equal(DefaultHistoryLimit, NewHistoryService(nil, nil, 500).limit)
	req.Equal(10, NewHistoryService(nil, nil, 10).limit)
}
