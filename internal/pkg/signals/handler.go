package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/endorses/iaxcat/internal/pkg/constants"
	"github.com/endorses/iaxcat/internal/pkg/logger"
)

// SetupHandler sets up a signal handler that cancels the provided context on SIGINT, SIGTERM, or SIGHUP.
// Returns a cleanup function that should be called when the signal handler is no longer needed.
func SetupHandler(ctx context.Context, cancel context.CancelFunc) (cleanup func()) {
	sigCh := make(chan os.Signal, constants.SignalChannelBuffer)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received signal, stopping analysis", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			// Context already cancelled, clean up
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
}
