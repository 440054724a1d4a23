package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"google.golang.org/grpc"

	"honeypot-lab/internal/api"
	"honeypot-lab/internal/api/handlers"
	"honeypot-lab/internal/config"
	"honeypot-lab/internal/domain/services"
	"honeypot-lab/internal/grpc/health"
	"honeypot-lab/internal/infrastructure/cache"
	"honeypot-lab/internal/infrastructure/database"
	"honeypot-lab/internal/infrastructure/database/repository"
	"honeypot-lab/internal/infrastructure/transcripts"
	"honeypot-lab/internal/streaming"
	"honeypot-lab/internal/telemetry"
	"honeypot-lab/pkg/logger"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the honeypot HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := newLogger(cfg)
			logger.SetGlobal(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log)
		},
	}
}

func newLogger(cfg *config.Config) *logger.Logger {
	lc := logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		TimeFormat: cfg.Logger.TimeFormat,
	}
	if cfg.App.Environment == "production" {
		lc.Format = "json"
	}
	return logger.New(lc)
}

// infrastructure holds the optional backends. Any field may be nil.
type infrastructure struct {
	redis *cache.RedisCache
	db    *database.PostgresDB
	repo  *repository.TranscriptRepository
	files *transcripts.FileStore
	nats  *streaming.NATSPublisher
}

func initInfrastructure(ctx context.Context, cfg *config.Config, log *logger.Logger) (*infrastructure, error) {
	infra := &infrastructure{}

	if cfg.Redis.Enabled || (cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis") {
		rc, err := cache.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		infra.redis = rc
	}

	if cfg.Database.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Database, log)
		if err != nil {
			infra.close(log)
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		infra.db = db
		infra.repo = repository.NewTranscriptRepository(db.Pool())
		if err := infra.repo.EnsureSchema(ctx); err != nil {
			infra.close(log)
			return nil, fmt.Errorf("failed to create transcript schema: %w", err)
		}
	}

	if cfg.Transcripts.Enabled {
		fs, err := transcripts.NewFileStore(cfg.Transcripts.Dir, log)
		if err != nil {
			infra.close(log)
			return nil, fmt.Errorf("failed to open transcript directory: %w", err)
		}
		infra.files = fs
	}

	// NATS is optional; the local bus still feeds websocket clients without it
	if cfg.NATS.Enabled {
		np, err := streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, continuing with local event bus")
		} else {
			infra.nats = np
		}
	}

	return infra, nil
}

// sinks returns the configured transcript sinks without typed nils
func (i *infrastructure) sinks() []services.TranscriptSink {
	var out []services.TranscriptSink
	if i.files != nil {
		out = append(out, i.files)
	}
	if i.repo != nil {
		out = append(out, i.repo)
	}
	return out
}

// checks returns readiness checks for every connected backend
func (i *infrastructure) checks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if i.redis != nil {
		checks["redis"] = i.redis
	}
	if i.db != nil {
		checks["postgres"] = i.db
	}
	if i.nats != nil {
		np := i.nats
		checks["nats"] = handlers.PingFunc(func(context.Context) error {
			if !np.IsConnected() {
				return streaming.ErrNotConnected
			}
			return nil
		})
	}
	return checks
}

func (i *infrastructure) close(log *logger.Logger) error {
	var err error
	if i.redis != nil {
		err = multierr.Append(err, i.redis.Close())
	}
	if i.db != nil {
		i.db.Close()
	}
	if err != nil {
		log.Error().Err(err).Msg("error closing infrastructure")
	}
	return err
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) (err error) {
	log.Info().
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Msg("starting scam honeypot")

	metrics := telemetry.NewMetrics()

	infra, err := initInfrastructure(ctx, cfg, log)
	if err != nil {
		return err
	}

	supervisor := services.NewSupervisor(ctx, metrics, log)

	store := services.NewSessionStore(supervisor, metrics, log,
		services.WithTranscriptSinks(infra.sinks()...),
		services.WithIdleTTL(cfg.Session.IdleTTL),
	)

	var (
		limiter    services.RateLimiter
		memLimiter *services.MemoryRateLimiter
	)
	if cfg.RateLimit.Enabled {
		switch cfg.RateLimit.Backend {
		case "redis":
			limiter = services.NewRedisRateLimiter(infra.redis, cfg.RateLimit.MinInterval, log)
		default:
			memLimiter = services.NewMemoryRateLimiter(cfg.RateLimit.MinInterval)
			limiter = memLimiter
		}
	}

	bus := streaming.NewEventBus(infra.nats, log)
	hub := streaming.NewWebSocketHub(bus, log)
	go hub.Run(ctx)

	notifierOpts := []services.NotifierOption{services.WithEventPublisher(bus)}
	if infra.redis != nil {
		notifierOpts = append(notifierOpts, services.WithReportCache(infra.redis))
	}
	notifier := services.NewCallbackNotifier(cfg.Callback, metrics, log, notifierOpts...)

	honeypot := services.NewHoneypot(cfg.Session, services.HoneypotDeps{
		Store:      store,
		Limiter:    limiter,
		Notifier:   notifier,
		Supervisor: supervisor,
		Metrics:    metrics,
		Logger:     log,
	})

	janitor := services.NewJanitor(store, memLimiter, cfg.Session.SweepSchedule, cfg.Session.IdleTTL, log)
	if err := janitor.Start(); err != nil {
		_ = infra.close(log)
		return fmt.Errorf("failed to start session janitor: %w", err)
	}

	checks := infra.checks()
	deps := handlers.Dependencies{
		Config:   *cfg,
		Honeypot: honeypot,
		Checks:   checks,
		Logger:   log,
	}
	// assign only live backends so the handler never sees a typed nil
	if infra.repo != nil {
		deps.Archive = infra.repo
	}
	if infra.files != nil {
		deps.Files = infra.files
	}
	if infra.redis != nil {
		deps.Reports = infra.redis
	}
	h := handlers.NewHandlers(deps)
	router := api.NewRouter(*cfg, h, metrics, hub, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var (
		grpcServer *grpc.Server
		checker    *health.Checker
	)
	if cfg.Server.GRPCPort > 0 {
		pingers := make(map[string]health.Pinger, len(checks))
		for name, p := range checks {
			pingers[name] = p
		}
		checker = health.NewChecker(pingers, 10*time.Second, log)

		lis, lerr := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
		if lerr != nil {
			log.Error().Err(lerr).Int("port", cfg.Server.GRPCPort).Msg("failed to listen for gRPC")
		} else {
			grpcServer = grpc.NewServer()
			checker.Register(grpcServer)
			go checker.Run(ctx)
			go func() {
				log.Info().Int("port", cfg.Server.GRPCPort).Msg("gRPC health server listening")
				if err := grpcServer.Serve(lis); err != nil {
					serverErr <- fmt.Errorf("gRPC server: %w", err)
				}
			}()
		}
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-serverErr:
		log.Error().Err(err).Msg("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if checker != nil {
		checker.Shutdown()
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		err = multierr.Append(err, fmt.Errorf("HTTP shutdown: %w", serr))
	}

	janitor.Stop()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Supervisor.DrainTimeout)
	defer drainCancel()
	if derr := supervisor.Shutdown(drainCtx); derr != nil {
		err = multierr.Append(err, derr)
	}

	bus.Close()
	err = multierr.Append(err, infra.close(log))

	if err != nil {
		log.Error().Err(err).Msg("shutdown finished with errors")
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}
