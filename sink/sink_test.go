package sink

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"feedback-relay/domain"
	"feedback-relay/domain/event"
	"feedback-relay/mocks"
	"feedback-relay/protocol"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSnapshotSink_Drops_Stale_Versions(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockISnapshotRepository(ctrl)
	s := NewSnapshotSink(repository, logs.GetLoggerFromLevel(slog.LevelDebug), nil, nil)

	newer := domain.EmptySnapshot()
	newer.Version = 5
	older := domain.EmptySnapshot()
	older.Version = 3

	// Then only the newest copy reaches the repository
	repository.EXPECT().Save(newer).Return(nil).Times(1)

	// When the newer copy is written first
	s.Persist(context.Background(), newer)
	s.Persist(context.Background(), older)
	s.Persist(context.Background(), newer)
	req.Equal(uint64(5), s.saved)
}

func TestSnapshotSink_Failure_Is_Retried_On_Next_Mutation(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockISnapshotRepository(ctrl)
	s := NewSnapshotSink(repository, slog.Default(), nil, nil)

	first := domain.EmptySnapshot()
	first.Version = 1
	second := domain.EmptySnapshot()
	second.Version = 2

	gomock.InOrder(
		repository.EXPECT().Save(first).Return(stderrors.New("disk full")).Times(1),
		repository.EXPECT().Save(second).Return(nil).Times(1),
	)

	// When the first write fails, the caller is not affected
	s.Persist(context.Background(), first)
	req.Equal(uint64(0), s.saved)

	// And the next mutation writes the complete state again
	s.Persist(context.Background(), second)
	req.Equal(uint64(2), s.saved)
}

func TestTCPSink_Frames_Are_Not_Interleaved(t *testing.T) {
	req := require.New(t)
	server, client := net.Pipe()
	defer client.Close()
	s := NewTCPSink(server, time.Second)
	defer s.Close()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Consume(context.Background(), event.NewError("simultaneous login"))
		}()
	}

	// Then every frame decodes cleanly on the other side
	for i := 0; i < writers; i++ {
		body, err := protocol.ReadFrame(client, 0)
		req.NoError(err)
		var frame event.Error
		req.NoError(json.Unmarshal(body, &frame))
		req.Equal(event.TypeError, frame.Type)
		req.Equal("simultaneous login", frame.Message)
	}
	wg.Wait()
}

func TestTCPSink_Write_Timeout(t *testing.T) {
	req := require.New(t)
	server, client := net.Pipe()
	defer client.Close()

	// Given a peer that never reads
	s := NewTCPSink(server, 50*time.Millisecond)
	defer s.Close()

	err := s.Consume(context.Background(), event.NewPong())

	var netErr net.Error
	req.ErrorAs(err, &netErr)
	req.True(netErr.Timeout())
}

func TestTCPSink_Close_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	server, client := net.Pipe()
	defer client.Close()
	s := NewTCPSink(server, time.Second)

	req.NoError(s.Close())
	req.NoError(s.Close())
	req.ErrorIs(s.Consume(context.Background(), event.NewPong()), net.ErrClosed)
}
