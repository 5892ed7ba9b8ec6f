package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/mafiabot/internal/adapters/gamefile"
	"github.com/okian/mafiabot/internal/adapters/http/api"
	"github.com/okian/mafiabot/internal/adapters/http/swagger"
	"github.com/okian/mafiabot/internal/adapters/repository"
	"github.com/okian/mafiabot/internal/adapters/thread"
	service "github.com/okian/mafiabot/internal/app"
	"github.com/okian/mafiabot/internal/config"
	"github.com/okian/mafiabot/internal/domain/stage"
	"github.com/okian/mafiabot/pkg/logger"
	"github.com/okian/mafiabot/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (.env -> defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "moderator stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the moderator and blocks until ctx is done or the game ends.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc, cleanup, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc, svc).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("%w: %v", api.ErrServe, err)
		}
	}()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	loopErr := make(chan error, 1)
	go func() { loopErr <- svc.Run(loopCtx) }()

	var result error
	loopDone := false
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down...")
	case err := <-serveErr:
		result = err
	case err := <-loopErr:
		loopDone = true
		if !errors.Is(err, service.ErrGameOver) && !errors.Is(err, context.Canceled) {
			result = err
		}
		log.Info(ctx, "polling loop finished", logger.Error(err))
	}

	// The loop must be idle before the store closes.
	cancelLoop()
	if !loopDone {
		<-loopErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return result
}

// buildService opens the adapters named by cfg and returns the service
// with a cleanup that closes them.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Service, func(), error) {
	cutoff, err := cfg.Cutoff()
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	timer, err := stage.NewTimer(
		stage.WithDurationHours(cfg.StageDurationHours),
		stage.WithCutoff(cutoff),
		stage.WithLocation(loc),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("stage timer: %w", err)
	}

	th, err := thread.Open(cfg.ThreadSnapshot,
		thread.WithGameMaster(cfg.GameMaster),
		thread.WithBotUser(cfg.BotUser),
		thread.WithLogger(log),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open thread: %w", err)
	}

	store, err := repository.Open(ctx,
		repository.WithDialect(cfg.DBDialect),
		repository.WithSQLitePath(cfg.DBSQLitePath),
		repository.WithPostgresDSN(cfg.DBPostgresDSN),
		repository.WithLogger(log),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if last, ok, err := store.LastCycle(ctx); err == nil && ok {
		log.Info(ctx, "resuming after a previous run", logger.Int("last_cycle", last))
	}

	svc := service.New(
		service.WithLogger(log),
		service.WithThreadReader(th),
		service.WithStore(store),
		service.WithRightsStore(gamefile.NewSource(cfg.RightsFile, log)),
		service.WithPoster(th),
		service.WithTimer(timer),
		service.WithInterval(cfg.UpdateInterval()),
		service.WithUpdateThresholds(cfg.PostsUntilUpdate, cfg.VotesUntilUpdate),
		service.WithQueueSize(cfg.OutboundQueueSize),
		service.WithGameMaster(cfg.GameMaster),
		service.WithModerators(cfg.Moderators...),
	)
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "closing store failed", logger.Error(err))
		}
	}
	return svc, cleanup, nil
}

// startServiceMetricsUpdater refreshes gauges derived from service stats.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()
	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if cycle, ok := stats["nextCycle"].(int); ok && cycle > 0 {
		metrics.UpdateCurrentCycle(cycle - 1)
	}
}
