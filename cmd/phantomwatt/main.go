package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"

	"github.com/phantomwatt/phantomwatt/pkg/engine"
	"github.com/phantomwatt/phantomwatt/pkg/host"
	"github.com/phantomwatt/phantomwatt/pkg/log"
	"github.com/phantomwatt/phantomwatt/pkg/server"
	"github.com/phantomwatt/phantomwatt/pkg/storage"
	"github.com/phantomwatt/phantomwatt/pkg/tariff"
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

func main() {
	// init packages
	db := storage.Configured()
	hub := host.NewHub()
	srv := server.Configured(hub, db)

	var flagConfig types.Config
	lflag.JSON(&flagConfig, "config", types.Config{}, "JSON deployment config, used when storage has none")

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	cfg, err := loadConfig(ctx, db, flagConfig)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	persist := storage.NewPersistence(db)
	eng, err := engine.New(cfg, engine.Deps{
		Values:    hub,
		Notifier:  hub,
		Scheduler: host.TickerScheduler{},
		Publisher: persist,
		Restorer:  persist,
		Rates:     tariff.NewResolver(cfg.Tariff),
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to build engine", "error", err)
		os.Exit(1)
	}
	if err := eng.Start(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to start engine", "error", err)
		os.Exit(1)
	}
	defer eng.Stop()

	srv.AttachEngine(eng)

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}

// loadConfig reads the deployment config from storage, migrating it forward
// when stored at an older version. When storage has no config yet, a config
// passed via the -config flag is stored and used instead.
func loadConfig(ctx context.Context, db storage.Database, flagConfig types.Config) (types.Config, error) {
	cfg, version, err := db.GetConfig(ctx)
	if errors.Is(err, storage.ErrConfigNotFound) {
		if len(flagConfig.Groups) == 0 {
			return types.Config{}, errors.New("no config in storage and no -config flag given")
		}
		cfg, version = flagConfig, 0
		err = nil
	}
	if err != nil {
		return types.Config{}, err
	}

	cfg, migrated, err := types.MigrateConfig(cfg, version)
	if err != nil {
		return types.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, err
	}
	for _, p := range cfg.Tariff.Validate() {
		log.Ctx(ctx).WarnContext(ctx, "tariff configuration problem", slog.String("problem", p))
	}
	if migrated || version == 0 {
		if err := db.SetConfig(ctx, cfg, types.CurrentConfigVersion); err != nil {
			return types.Config{}, err
		}
		log.Ctx(ctx).InfoContext(ctx, "stored migrated config",
			slog.Int("version", types.CurrentConfigVersion))
	}
	return cfg, nil
}
