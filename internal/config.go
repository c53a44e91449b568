package internal

import (
	"feedback-relay/errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	BackendJSON   = "json"
	BackendBadger = "badger"
)

type Config struct {
	Host              string        `env:"HOST,default=0.0.0.0"`
	Port              int           `env:"PORT,default=8888" validate:"gte=0,lte=65535"`
	HTTPHost          string        `env:"HTTP_HOST,default=0.0.0.0"`
	HTTPPort          int           `env:"HTTP_PORT,default=8889" validate:"gte=0,lte=65535"`
	PublicBaseURL     string        `env:"PUBLIC_BASE_URL,default=http://localhost:8889" validate:"required,url"`
	DataDir           string        `env:"DATA_DIR,default=feedback_data" validate:"required"`
	SnapshotBackend   string        `env:"SNAPSHOT_BACKEND,default=json"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,default=feedback_data/badger"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	DedupWindow       time.Duration `env:"DEDUP_WINDOW,default=10s" validate:"gt=0"`
	HistoryLimit      int           `env:"HISTORY_LIMIT,default=50" validate:"gte=1,lte=50"`
	MaxFrameSize      int           `env:"MAX_FRAME_SIZE,default=20971520" validate:"gte=1024,lte=2147483647"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT,default=0s" validate:"gte=0"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	MetricInterval    time.Duration `env:"METRIC_INTERVAL,default=15s" validate:"gt=0"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s" validate:"gt=0"`
	CensoredWordsPath string        `env:"CENSORED_WORDS_PATH"`
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,default=*"`
}

var validate = validator.New()

// Validate checks ranges and cross-field rules go-env cannot express.
// The backend is checked separately so main can report ErrUnknownBackend.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) RelayAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) HTTPAddress() string {
	return net.JoinHostPort(c.HTTPHost, strconv.Itoa(c.HTTPPort))
}

// FilesDir is where uploaded artifacts are stored.
func (c Config) FilesDir() string {
	return filepath.Join(c.DataDir, "files")
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
