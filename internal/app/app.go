package app

import (
	"context"
	"sync"
	"time"

	"github.com/mselser95/lmsr-amm/internal/engine"
	"github.com/mselser95/lmsr-amm/internal/storage"
	"github.com/mselser95/lmsr-amm/pkg/cache"
	"github.com/mselser95/lmsr-amm/pkg/config"
	"github.com/mselser95/lmsr-amm/pkg/healthprobe"
	"github.com/mselser95/lmsr-amm/pkg/httpserver"
	"github.com/mselser95/lmsr-amm/pkg/websocket"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	hub           *websocket.Hub
	engine        *engine.Engine
	sequencer     *Sequencer
	journal       storage.Journal
	cache         *cache.RistrettoCache
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	shutdownOnce  sync.Once
}

// Options holds application options.
type Options struct {
	// Clock overrides the wall clock, for simulations and tests.
	Clock func() time.Time
	// Journal overrides the journal selected by the config.
	Journal storage.Journal
}

// Sequencer returns the ledger's single writer.
func (a *App) Sequencer() *Sequencer {
	return a.sequencer
}

// HealthChecker returns the probe state served on /health and /ready.
func (a *App) HealthChecker() *healthprobe.HealthChecker {
	return a.healthChecker
}
