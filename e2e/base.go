// Package e2e drives a relay over real TCP and HTTP.
package e2e

import (
	"context"
	"feedback-relay/client"
	"feedback-relay/internal"
	"feedback-relay/runtime/workers"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
)

type BaseRelaySuite struct {
	suite.Suite
	Config  Config
	relay   *internal.Relay
	stopSup context.CancelFunc
	done    chan struct{}
}

// SetupSuite loads the environment configuration and boots a relay when none
// is given.
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr != "" {
		return
	}

	var config internal.Config
	_, err = env.UnmarshalFromEnviron(&config)
	s.Require().NoError(err)
	config.Host, config.HTTPHost = "127.0.0.1", "127.0.0.1"
	config.Port = s.freePort()
	config.HTTPPort = s.freePort()
	config.PublicBaseURL = "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(config.HTTPPort))
	config.DataDir = s.T().TempDir()
	config.SnapshotBackend = internal.BackendJSON

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	s.relay, err = internal.NewRelay(config, log, prometheus.NewRegistry())
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	s.stopSup = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		workers.NewSupervisor(log, config.RestartInterval, s.relay.Metrics.WorkerRestarts).
			Add(s.relay.Workers()...).
			Run(ctx)
	}()

	bootCtx, cancelBoot := context.WithTimeout(ctx, 5*time.Second)
	defer cancelBoot()
	addr, err := s.relay.TCP.Addr(bootCtx)
	s.Require().NoError(err)
	_, err = s.relay.HTTP.Addr(bootCtx)
	s.Require().NoError(err)
	s.Config.RelayAddr = addr.String()
}

func (s *BaseRelaySuite) TearDownSuite() {
	if s.relay == nil {
		return
	}
	s.stopSup()
	<-s.done
	s.Require().NoError(s.relay.Close())
}

func (s *BaseRelaySuite) freePort() int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// Connect registers username, printing a colorized header for the step.
func (s *BaseRelaySuite) Connect(t *testing.T, username string) *client.Client {
	header := fmt.Sprintf("  ====== %s joins ======", username)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, s.Config.RelayAddr, username)
	s.Require().NoError(err, "Failed to register on relay at "+s.Config.RelayAddr)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// Expect waits for the next frame of frameType on c and decodes it into v.
func (s *BaseRelaySuite) Expect(c *client.Client, frameType string, v any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frame, err := c.NextOf(ctx, frameType)
	s.Require().NoError(err, "waiting for "+frameType)
	s.Require().NoError(frame.Decode(v))
}
