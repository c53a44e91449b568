package workers

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HTTPServerWorker runs the file bridge HTTP server until ctx is done, then
// shuts it down within shutdownTimeout.
type HTTPServerWorker struct {
	log             *slog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
	ready           chan net.Addr
}

func NewHTTPServerWorker(log *slog.Logger, address string, handler http.Handler, shutdownTimeout time.Duration) *HTTPServerWorker {
	return &HTTPServerWorker{
		log: log,
		server: &http.Server{
			Addr:              address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
		ready:           make(chan net.Addr, 1),
	}
}

// Addr blocks until the server is bound.
func (w *HTTPServerWorker) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case addr := <-w.ready:
		w.ready <- addr
		return addr, nil
	}
}

func (w *HTTPServerWorker) Run(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", w.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", w.server.Addr, err)
	}
	select {
	case w.ready <- listener.Addr():
	default:
	}

	errChan := make(chan error, 1)
	go func() {
		w.log.Info("File server listening", "address", listener.Addr().String())
		errChan <- w.server.Serve(listener)
	}()

	select {
	case err = <-errChan:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("file server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.shutdownTimeout)
	defer cancel()
	if err = w.server.Shutdown(shutdownCtx); err != nil {
		w.log.Warn("File server shutdown incomplete", "error", err)
		return nil
	}
	w.log.Info("File server stopped")
	return nil
}
