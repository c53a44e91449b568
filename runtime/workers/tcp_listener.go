package workers

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

type ConnHandler interface {
	Serve(ctx context.Context, conn net.Conn)
}

// TCPListenerWorker accepts relay connections and runs one handler goroutine
// per connection. Run returns once the listener is closed and every handler
// has finished.
type TCPListenerWorker struct {
	log      *slog.Logger
	address  string
	handler  ConnHandler
	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

func NewTCPListenerWorker(log *slog.Logger, address string, handler ConnHandler) *TCPListenerWorker {
	return &TCPListenerWorker{log: log, address: address, handler: handler, ready: make(chan struct{})}
}

// Addr blocks until the listener is bound. Useful when the port is 0.
func (w *TCPListenerWorker) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.ready:
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.listener.Addr(), nil
	}
}

func (w *TCPListenerWorker) Run(ctx context.Context) error {
	listener, err := w.listen(ctx)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	w.log.Info("Relay listening", "address", listener.Addr().String())
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				w.log.Info("Relay listener stopped")
				return nil
			}
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				w.log.Warn("Temporary accept failure", "error", err)
				continue
			}
			w.reset()
			return fmt.Errorf("accept on %s: %w", w.address, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.handler.Serve(ctx, conn)
		}()
	}
}

// listen binds once; a restarted worker reuses the bound listener.
func (w *TCPListenerWorker) listen(ctx context.Context) (net.Listener, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listener != nil {
		return w.listener, nil
	}
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", w.address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", w.address, err)
	}
	w.listener = listener
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
	return listener, nil
}

func (w *TCPListenerWorker) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listener != nil {
		_ = w.listener.Close()
		w.listener = nil
	}
}
