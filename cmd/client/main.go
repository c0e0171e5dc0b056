package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artisanlink/internal/api"
	"artisanlink/internal/apperror"
	"artisanlink/internal/config"
	"artisanlink/internal/database"
	"artisanlink/internal/domain"
	"artisanlink/internal/events"
	"artisanlink/internal/export"
	"artisanlink/internal/logging"
	"artisanlink/internal/metrics"
	"artisanlink/internal/models"
	"artisanlink/internal/realtime"
	"artisanlink/internal/repository"
	"artisanlink/internal/service"
	"artisanlink/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type options struct {
	role   models.Role
	owner  string
	export bool
	once   bool
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	opts, err := parseFlags()
	if err != nil {
		return err
	}

	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, logger)

	snapshots, cleanup := initSnapshots(ctx, cfg, logger)
	defer cleanup()

	policy, err := store.ParseFetchErrorPolicy(cfg.Store.OnFetchError)
	if err != nil {
		return err
	}
	st := store.New(policy, logging.Component(logger, "store"))
	restoreSnapshot(ctx, snapshots, st, opts, logger)

	client := api.NewClient(cfg.API, logging.Component(logger, "api"))
	svc := service.NewBookingService(client, st, logging.Component(logger, "service"))

	scope := service.NewScope(ctx)
	defer scope.Close()

	// The room is joined before the fetch so pushes sent while the list is
	// in flight are not missed.
	var teardown func()
	if !opts.once && cfg.Realtime.Enabled {
		teardown, err = openLive(ctx, cfg, st, opts, logger)
		if err != nil {
			logger.Error().Err(err).Msg("realtime listener not started")
		} else {
			defer teardown()
		}
	}

	list, err := svc.FetchBookings(scope.Context(), opts.role, opts.owner)
	if err != nil {
		logger.Warn().Err(err).Str("alert", apperror.UserMessage(err)).Msg("fetch bookings failed")
	} else {
		logger.Info().Int("count", len(list)).Str("role", string(opts.role)).Msg("bookings fetched")
	}

	if opts.export {
		path, err := export.NewExporter(cfg.Exports.Path, logging.Component(logger, "export")).
			Export(opts.role, opts.owner, st.Bookings(opts.role))
		if err != nil {
			logger.Error().Err(err).Msg("export bookings")
		} else {
			fmt.Println(path)
		}
	}

	if teardown != nil {
		logger.Info().Str("room", opts.owner).Msg("listening for booking updates")
		<-ctx.Done()
		logger.Info().Msg("shutdown signal received")
	}

	saveSnapshot(snapshots, st, opts, logger)
	return nil
}

func parseFlags() (options, error) {
	role := flag.String("role", string(models.RoleCustomer), "viewer role: customer or artisan")
	owner := flag.String("owner", "", "id of the signed-in user")
	doExport := flag.Bool("export", false, "write the fetched collection to an xlsx file")
	once := flag.Bool("once", false, "exit after fetching instead of listening for updates")
	flag.Parse()

	opts := options{role: models.Role(*role), owner: *owner, export: *doExport, once: *once}
	if !opts.role.Valid() {
		return opts, fmt.Errorf("unknown role %q", *role)
	}
	if opts.owner == "" {
		return opts, errors.New("-owner is required")
	}
	return opts, nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "client-main"), closer, nil
}

func initSnapshots(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.SnapshotRepository, func()) {
	noop := func() {}
	if !cfg.Store.Snapshot.Enabled {
		return nil, noop
	}
	ttl := cfg.Store.Snapshot.TTL
	memory := repository.NewMemorySnapshotRepository(ttl)

	switch cfg.Store.Snapshot.Backend {
	case config.SnapshotRedis:
		client := repository.NewRedisClient(cfg.Redis)
		if err := repository.Ping(ctx, client); err != nil {
			logger.Warn().Err(err).Msg("redis connection failed, keeping snapshots in memory")
			_ = repository.Close(client)
			return memory, noop
		}
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
		repo := repository.NewFailoverSnapshotRepository(
			repository.NewRedisSnapshotRepository(client, ttl), memory, logging.Component(logger, "snapshots"))
		return repo, func() { _ = repository.Close(client) }

	case config.SnapshotSQLite:
		db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
		if err != nil {
			logger.Warn().Err(err).Str("db_path", cfg.Database.Path).Msg("sqlite init failed, keeping snapshots in memory")
			return memory, noop
		}
		snapshots := database.NewSnapshotStore(db, ttl)
		if n, err := snapshots.PurgeExpired(ctx); err == nil && n > 0 {
			logger.Debug().Int64("purged", n).Msg("expired snapshots removed")
		}
		repo := repository.NewFailoverSnapshotRepository(snapshots, memory, logging.Component(logger, "snapshots"))
		return repo, func() { _ = db.Close() }

	default:
		return memory, noop
	}
}

func restoreSnapshot(ctx context.Context, repo domain.SnapshotRepository, st *store.Store, opts options, logger *zerolog.Logger) {
	if repo == nil {
		return
	}
	snap, err := repo.Load(ctx, models.SnapshotKey(opts.role, opts.owner))
	if err != nil {
		logger.Warn().Err(err).Msg("load snapshot")
		return
	}
	if snap == nil {
		return
	}
	st.Restore(*snap)
	logger.Info().
		Time("saved_at", snap.SavedAt).
		Int("bookings", len(snap.Bookings)).
		Int("artisan_bookings", len(snap.ArtisanBookings)).
		Msg("snapshot restored")
}

func saveSnapshot(repo domain.SnapshotRepository, st *store.Store, opts options, logger *zerolog.Logger) {
	if repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap := st.Snapshot(opts.role, opts.owner)
	if err := repo.Save(ctx, &snap); err != nil {
		logger.Warn().Err(err).Msg("save snapshot")
	}
}

// openLive connects the socket, joins the owner's room and logs every
// booking change. The returned func tears all of it down.
func openLive(ctx context.Context, cfg *config.Config, st *store.Store, opts options, logger *zerolog.Logger) (func(), error) {
	rtLogger := logging.Component(logger, "realtime")
	socket := realtime.NewSocket(cfg.Realtime, cfg.API.Token, nil, rtLogger)

	socket.On(models.EventConnectionState, func(e *events.Event) error {
		var p realtime.StatePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		rtLogger.Info().Str("state", string(p.State)).Msg("connection state changed")
		return nil
	})

	if err := socket.Connect(ctx); err != nil {
		_ = socket.Close()
		return nil, err
	}

	feed, err := service.OpenFeed(socket, st, opts.role, opts.owner, logging.Component(logger, "feed"))
	if err != nil {
		_ = socket.Close()
		return nil, err
	}

	unsubscribe := st.Subscribe(func(c store.Change) {
		if c.Kind != store.ChangeUpserted {
			return
		}
		if b, ok := st.Get(c.Role, c.BookingID); ok {
			logger.Info().
				Str("booking_id", b.ID).
				Str("status", b.Status.Label()).
				Bool("awaiting_customer", b.Status.AwaitingCustomerDecision()).
				Msg("booking updated")
		}
	})

	return func() {
		unsubscribe()
		_ = feed.Close()
		_ = socket.Close()
	}, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
