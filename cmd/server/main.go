// Command server runs the callback handler: it captures calls to
// /record/{slug}, answers them with the slug's response policy and serves
// the viewer API.
//
// @title        Callback Handler API
// @version      1.0
// @description  Captures inbound HTTP calls per slug and replays them to the slug's viewer.
// @license.name MIT
// @BasePath     /
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-callback-handler/docs"
	"github.com/tbourn/go-callback-handler/internal/config"
	httpapi "github.com/tbourn/go-callback-handler/internal/http"
	"github.com/tbourn/go-callback-handler/internal/notify"
	"github.com/tbourn/go-callback-handler/internal/observability"
	"github.com/tbourn/go-callback-handler/internal/repo"
	"github.com/tbourn/go-callback-handler/internal/sysutil"
	"github.com/tbourn/go-callback-handler/internal/worker"
)

func main() {
	// .env is optional; real environment wins.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	log.Logger = sysutil.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	zerolog.DefaultContextLogger = &log.Logger
	gin.SetMode(cfg.GinMode)

	version := sysutil.AppVersion()
	docs.SwaggerInfo.Version = version

	root, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownOTel, err := observability.SetupOTel(root, cfg.OTEL, version, log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}

	rdb, err := repo.OpenRedis(root, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis unavailable")
	}

	var db *gorm.DB
	if cfg.DBPath != "" {
		db, err = repo.OpenSQLite(cfg.DBPath)
		if err == nil {
			err = repo.AutoMigrate(db)
		}
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("summary archive unavailable")
		}
	}

	pool := worker.New(worker.Options{
		Workers:         cfg.Workers,
		Queue:           cfg.WorkerQueue,
		MonitorInterval: time.Minute,
		Logger:          log.Logger,
	})
	pool.Start(root)

	// Live streams end when the hub stops, which lets srv.Shutdown finish.
	hubCtx, stopHub := context.WithCancel(root)
	hub := notify.NewHub(rdb, log.Logger)
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("notification hub stopped")
		}
	}()

	deps := httpapi.Deps{RDB: rdb, DB: db, Tasks: pool, Hub: hub, Log: log.Logger}
	core := httpapi.NewCore(deps, cfg)

	if cfg.Stats.Scheduler {
		go core.Stats.RunDaily(root, log.Logger)
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, core, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return root },
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("callback handler listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	wait := gfshutdown.GracefulShutdown(root, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		// Stop intake first, then drain side effects before closing storage.
		"server": func(ctx context.Context) error {
			log.Info().Msg("graceful shutdown initiated")
			stopHub()
			hub.Wait()
			errs := []error{srv.Shutdown(ctx), pool.Shutdown(ctx)}
			cancel()
			errs = append(errs, rdb.Close())
			if db != nil {
				if sqlDB, err := db.DB(); err == nil {
					errs = append(errs, sqlDB.Close())
				}
			}
			return errors.Join(errs...)
		},
		"otel": func(ctx context.Context) error {
			return shutdownOTel(ctx)
		},
	})

	code := <-wait
	log.Info().Int("exit_code", code).Msg("callback handler stopped")
	os.Exit(code)
}
