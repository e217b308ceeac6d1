package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Abraxas-365/wabridge/logx"
	"github.com/Abraxas-365/wabridge/msgx"
)

// ShutdownTimeout bounds how long in-flight requests and deliveries get to
// finish once shutdown starts.
const ShutdownTimeout = 10 * time.Second

// NewServer returns an http.Server for handler listening on port
func NewServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort("", port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Serve runs the HTTP server and the delivery supervisor until ctx is done,
// then drains both.
func (a *App) Serve(ctx context.Context) error {
	work, stopWork := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWork()

	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		a.Supervisor.Run(work)
	}()

	dispatcher := msgx.NewAsyncDispatcher(work, NewResponder(a.Orchestrator, a.Events))
	server := NewServer(a.Settings.Port, a.Router(dispatcher))

	errCh := make(chan error, 1)
	go func() {
		logx.Info("listening on %s, webhook at %s", server.Addr, WebhookPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logx.Info("shutting down")
	case serveErr = <-errCh:
		logx.Error("server stopped: %v", serveErr)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(drainCtx); err != nil {
		logx.Warn("server shutdown: %v", err)
	}

	drained := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-drainCtx.Done():
		logx.Warn("deliveries still running after %s; the supervisor will close them on the next start", ShutdownTimeout)
	}

	stopWork()
	bg.Wait()
	return serveErr
}
