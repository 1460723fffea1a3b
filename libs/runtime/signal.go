package runtime

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalContext is cancelled on the first SIGINT or SIGTERM so the service can
// drain. A second signal while draining exits immediately.
func SignalContext() (context.Context, context.CancelFunc) {
	return signalContext(os.Exit, syscall.SIGINT, syscall.SIGTERM)
}

func signalContext(exit func(int), sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	done := make(chan struct{})
	signal.Notify(ch, sigs...)

	go func() {
		select {
		case sig := <-ch:
			slog.Info("shutdown signal received", "signal", sig.String())
			cancel()
		case <-done:
			return
		}
		select {
		case sig := <-ch:
			slog.Warn("second signal, exiting now", "signal", sig.String())
			exit(1)
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
			cancel()
		})
	}
}
