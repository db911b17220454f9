package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xclinic/dental-clinic/internal/api"
	"github.com/xclinic/dental-clinic/internal/auth"
	"github.com/xclinic/dental-clinic/internal/clinic"
	"github.com/xclinic/dental-clinic/internal/config"
	"github.com/xclinic/dental-clinic/internal/db"
	"github.com/xclinic/dental-clinic/internal/logging"
	"github.com/xclinic/dental-clinic/internal/notify"
	"github.com/xclinic/dental-clinic/internal/realtime"
	redisclient "github.com/xclinic/dental-clinic/internal/redis"
	"github.com/xclinic/dental-clinic/internal/storage"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel)
	os.Exit(run(cfg, log))
}

// run returns the process exit code once every deferred close has run.
func run(cfg config.Config, log zerolog.Logger) int {
	log.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("realtime_source", cfg.RealtimeSource).
		Str("photo_mode", cfg.PhotoMode).
		Str("clinic_timezone", cfg.ClinicLocation.String()).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg, "api-server")
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	migrateCtx, cancelMigrate := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migrateCtx, pgPool)
	cancelMigrate()
	if err != nil {
		log.Fatal().Err(err).Msg("schema migration error")
	}

	// Redis is required only as the realtime source; otherwise locks fall
	// back to the process.
	var rdb *redis.Client
	rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, 5*time.Second)
	if err != nil {
		if cfg.RealtimeSource == config.RealtimeSourceRedis {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		log.Warn().Err(err).Msg("redis unavailable, using in-process locks")
		rdb = nil
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	}

	var locker redisclient.Locker = redisclient.NewLocalLocker()
	if rdb != nil {
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	}

	disk, err := storage.NewDisk(cfg.StorageDir, cfg.PublicBaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init error")
	}

	notifyStore := notify.NewPgStore(pgPool)
	reminders := notify.NewReminders(notifyStore, cfg.ReminderLead, log)

	authSvc := auth.NewService(auth.NewPgStore(pgPool), auth.NewLogMailer(log), cfg, log)

	hub := realtime.NewHub(log)
	clinicSvc := clinic.NewService(clinic.NewPgRepository(pgPool, cfg.ClinicLocation), cfg, log).
		WithReminders(reminders).
		WithObjectStore(disk).
		WithLocker(locker)

	g, ctx := errgroup.WithContext(rootCtx)

	switch cfg.RealtimeSource {
	case config.RealtimeSourceRedis:
		clinicSvc.WithPublisher(redisclient.NewChangePublisher(rdb))
		relay := redisclient.NewChangeRelay(rdb, hub, log)
		g.Go(func() error { return relay.Run(ctx) })
	default:
		// Row triggers notify Postgres; the service does not publish itself.
		listener := realtime.NewPgListener(pgPool, hub, log)
		g.Go(func() error { return listener.Run(ctx) })
	}

	ws := api.NewRealtimeHandler(hub, log)
	router := api.NewRouter(api.RouterConfig{
		Clinic:   clinicSvc,
		Auth:     authSvc,
		Push:     reminders,
		Realtime: ws,
		Disk:     disk,
		Postgres: pgPool,
		Redis:    rdb,
		Log:      log,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srv.RegisterOnShutdown(ws.Close)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down api-server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("api-server stopped with error")
		return 1
	}
	log.Info().Msg("api-server stopped")
	return 0
}
