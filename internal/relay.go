package internal

import (
	"feedback-relay/contract"
	"feedback-relay/domain"
	"feedback-relay/errors"
	"feedback-relay/infrastructure/httpserver"
	"feedback-relay/infrastructure/tcp"
	"feedback-relay/moderation"
	"feedback-relay/observability"
	"feedback-relay/repositories"
	"feedback-relay/runtime"
	"feedback-relay/runtime/workers"
	"feedback-relay/services"
	"feedback-relay/sink"
	"feedback-relay/storage"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Relay is the assembled server: state restored from the snapshot store,
// services, the session registry and the workers that expose them.
type Relay struct {
	Metrics  *observability.Metrics
	Registry *runtime.Registry
	TCP      *workers.TCPListenerWorker
	HTTP     *workers.HTTPServerWorker
	Health   *workers.HealthMonitoringWorker
	closers  []func() error
	log      *slog.Logger
}

// NewRelay builds every component from config. Close releases the snapshot
// store once the workers are stopped.
func NewRelay(config Config, log *slog.Logger, reg *prometheus.Registry) (*Relay, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	relay := &Relay{log: log}

	repository, err := relay.openRepository(config)
	if err != nil {
		return nil, err
	}
	snapshot, err := repository.Load()
	if err != nil {
		_ = relay.Close()
		return nil, fmt.Errorf("snapshot loading failed: %w", err)
	}
	log.Info("Snapshot restored",
		"backend", config.SnapshotBackend,
		"users", len(snapshot.Users),
		"messages", len(snapshot.Messages))

	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(reg)
	relay.Metrics = metrics

	store, err := storage.NewArtifactStore(config.FilesDir(), log, nil)
	if err != nil {
		_ = relay.Close()
		return nil, err
	}
	moderator, err := buildModerator(config, log)
	if err != nil {
		_ = relay.Close()
		return nil, err
	}

	ledger := domain.NewLedger(snapshot, time.Now)
	snapshots := sink.NewSnapshotSink(repository, log, metrics.SnapshotDuration, metrics.SnapshotFailures)
	files := services.NewFileService(ledger, store, snapshots, metrics, log, config.PublicBaseURL)
	registry := runtime.NewRegistry(log)
	relay.Registry = registry

	orchestrator := runtime.NewOrchestrator(
		log,
		registry,
		runtime.NewBroadcaster(registry, metrics, log),
		services.NewUserService(ledger, snapshots, log),
		services.NewMessageService(ledger, snapshots, domain.NewDedupPolicy(config.DedupWindow), moderator, metrics, log, time.Now),
		files,
		services.NewReceiptService(ledger, snapshots, log),
		services.NewHistoryService(ledger, files, config.HistoryLimit),
		metrics,
	)

	handler := tcp.NewHandler(orchestrator, log, metrics, uint32(config.MaxFrameSize), config.IdleTimeout, config.WriteTimeout)
	relay.TCP = workers.NewTCPListenerWorker(log, config.RelayAddress(), handler)
	relay.HTTP = workers.NewHTTPServerWorker(
		log,
		config.HTTPAddress(),
		httpserver.NewRouter(store, files, registry, metrics, reg, log),
		config.ShutdownTimeout,
	)
	relay.Health = workers.NewHealthMonitoringWorker(log, metrics, config.MetricInterval)
	return relay, nil
}

func (r *Relay) Workers() []contract.Worker {
	return []contract.Worker{r.TCP, r.HTTP, r.Health}
}

func (r *Relay) Close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if closeErr := r.closers[i](); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	r.closers = nil
	return err
}

func (r *Relay) openRepository(config Config) (repositories.ISnapshotRepository, error) {
	switch config.SnapshotBackend {
	case BackendJSON:
		return repositories.NewJSONSnapshotRepository(config.DataDir, r.log)
	case BackendBadger:
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		r.closers = append(r.closers, func() error {
			r.log.Info("Closing BadgerDB...")
			return db.Close()
		})
		return repositories.NewBadgerSnapshotRepository(db, r.log), nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownBackend, config.SnapshotBackend)
	}
}

// buildModerator returns a nil moderator when no word list is configured.
func buildModerator(config Config, log *slog.Logger) (*moderation.Moderator, error) {
	if config.CensoredWordsPath == "" {
		return nil, nil
	}
	censored, err := moderation.LoadCensoredWords(config.CensoredWordsPath)
	if err != nil {
		return nil, err
	}
	char, err := CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	log.Info("Moderation enabled", "words", len(censored.Words), "languages", censored.Languages)
	return moderation.NewModerator(censored.Words, char, log)
}
