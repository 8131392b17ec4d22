package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/lmsr-amm/internal/circuitbreaker"
	"github.com/mselser95/lmsr-amm/internal/engine"
	"github.com/mselser95/lmsr-amm/internal/settlement"
	"github.com/mselser95/lmsr-amm/internal/storage"
	"github.com/mselser95/lmsr-amm/pkg/cache"
	"github.com/mselser95/lmsr-amm/pkg/config"
	"github.com/mselser95/lmsr-amm/pkg/healthprobe"
	"github.com/mselser95/lmsr-amm/pkg/httpserver"
	"github.com/mselser95/lmsr-amm/pkg/websocket"
	"go.uber.org/zap"
)

const journalConnectTimeout = 10 * time.Second

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := healthprobe.New()

	eng, err := setupEngine(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup engine: %w", err)
	}

	journal := opts.Journal
	if journal == nil {
		journal, err = setupJournal(ctx, cfg, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("setup journal: %w", err)
		}
	}

	snapshotCache, err := setupCache(cfg, logger)
	if err != nil {
		cancel()
		_ = journal.Close()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	hub := setupHub(cfg, logger)

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		Name:             "journal",
		FailureThreshold: cfg.JournalFailureThreshold,
		SuccessThreshold: 1,
		Cooldown:         cfg.JournalCooldown,
		Logger:           logger,
	})
	if err != nil {
		cancel()
		_ = journal.Close()
		snapshotCache.Close()
		return nil, fmt.Errorf("setup journal breaker: %w", err)
	}

	sequencer, err := NewSequencer(&SequencerConfig{
		Engine:    eng,
		Journal:   journal,
		Publisher: hub,
		Cache:     snapshotCache,
		Breaker:   breaker,
		CacheTTL:  cfg.SnapshotCacheTTL,
		InboxSize: cfg.InboxSize,
		Clock:     opts.Clock,
		Logger:    logger,
	})
	if err != nil {
		cancel()
		_ = journal.Close()
		snapshotCache.Close()
		return nil, fmt.Errorf("setup sequencer: %w", err)
	}

	setupHealthChecks(healthChecker, sequencer, breaker)

	httpServer := httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Backend:       sequencer,
		Events:        hub,
	})

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		hub:           hub,
		engine:        eng,
		sequencer:     sequencer,
		journal:       journal,
		cache:         snapshotCache,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func setupEngine(cfg *config.Config, logger *zap.Logger) (*engine.Engine, error) {
	var treasury common.Address
	if cfg.ProtocolTreasury != "" {
		treasury = common.HexToAddress(cfg.ProtocolTreasury)
	}

	return engine.New(&engine.Config{
		MinSubsidy:       cfg.MinSubsidy,
		ArbitrationFee:   cfg.ArbitrationFee,
		ProtocolTreasury: treasury,
		AllowDeposits:    cfg.AllowDeposits,
		Settlement: settlement.Config{
			GracePeriod:   cfg.GracePeriod,
			DisputePeriod: cfg.DisputePeriod,
			VotingWindow:  cfg.VotingWindow,
		},
		Logger: logger,
	})
}

func setupJournal(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Journal, error) {
	if cfg.StorageMode == "postgres" {
		connectCtx, cancel := context.WithTimeout(ctx, journalConnectTimeout)
		defer cancel()

		pg, err := storage.NewPostgresJournal(connectCtx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres journal: %w", err)
		}
		return pg, nil
	}

	return storage.NewMemoryJournal(logger), nil
}

func setupCache(cfg *config.Config, logger *zap.Logger) (*cache.RistrettoCache, error) {
	return cache.NewRistrettoCache(cache.DefaultRistrettoConfig("snapshots", cfg.SnapshotCacheSize, logger))
}

func setupHub(cfg *config.Config, logger *zap.Logger) *websocket.Hub {
	return websocket.NewHub(websocket.HubConfig{
		PingInterval: cfg.WSPingInterval,
		PongTimeout:  cfg.WSPongTimeout,
		WriteTimeout: cfg.WSWriteTimeout,
		SendBuffer:   cfg.WSSendBuffer,
		Logger:       logger,
	})
}

func setupHealthChecks(hc *healthprobe.HealthChecker, seq *Sequencer, breaker *circuitbreaker.Breaker) {
	hc.AddCheck("journal-recovered", func(context.Context) error {
		if !seq.Recovered() {
			return fmt.Errorf("journal not replayed")
		}
		return nil
	})
	hc.AddCheck("sequencer-running", func(context.Context) error {
		if !seq.Running() {
			return ErrStopped
		}
		return nil
	})
	hc.AddCheck("journal-breaker", func(context.Context) error {
		return breaker.Check()
	})
}
