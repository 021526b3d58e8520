package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marketlink/marketlink/core/bootstrap"
	"github.com/marketlink/marketlink/core/config"
	"github.com/marketlink/marketlink/core/logger"
	coretelegram "github.com/marketlink/marketlink/core/telegram"
	"github.com/marketlink/marketlink/internal/bot"
	"log/slog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("marketlink: %v", err)
	}
}

func run() error {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	result, err := bootstrap.Run(bootstrap.Options{
		Logger: logger.Settings{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			KeysOrder:   cfg.Logging.KeysOrder,
			DebugSample: cfg.Logging.DebugSample,
			Dir:         cfg.Logging.Dir,
			BotFile:     cfg.Logging.BotFile,
			Profile:     cfg.Logging.Profile,
		},
		Database: cfg.Database,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer result.DB.Close()

	app, err := bot.New(cfg, result.DB)
	if err != nil {
		return err
	}

	runOpts := app.RunOptions()
	startedAt := time.Now()
	prevStart := runOpts.OnStart
	runOpts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if prevStart != nil {
			if err := prevStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.L.With("component", "app").Info("app ready",
			slog.String("event", "ready"),
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return coretelegram.RunTelegram(ctx, runOpts)
}
