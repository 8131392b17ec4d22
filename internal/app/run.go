package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.Bool("allow-deposits", a.cfg.AllowDeposits),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.Start()
	if err != nil {
		_ = a.Shutdown()
		return err
	}

	return a.waitForShutdown()
}

// Start replays the journal and starts the sequencer and the HTTP server.
// It returns once the application is ready.
func (a *App) Start() error {
	err := a.sequencer.Recover(a.ctx)
	if err != nil {
		return fmt.Errorf("recover journal: %w", err)
	}

	a.wg.Add(1)
	go a.runSequencer()

	a.wg.Add(1)
	go a.runHTTPServer()

	a.healthChecker.SetReady(true)

	hash, seq, err := a.sequencer.Digest()
	if err != nil {
		return fmt.Errorf("state digest: %w", err)
	}

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.Uint64("event-seq", seq),
		zap.String("digest", hash.Hex()))

	return nil
}

func (a *App) runSequencer() {
	defer a.wg.Done()
	err := a.sequencer.Run(a.ctx)
	if err != nil {
		a.logger.Error("sequencer-error", zap.Error(err))
	}
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
		a.cancel()
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
