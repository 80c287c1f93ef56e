package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/relaybot/core/bootstrap"
	coreconfig "github.com/m3rciful/relaybot/core/config"
	"github.com/m3rciful/relaybot/core/logger"
	coretelegram "github.com/m3rciful/relaybot/core/telegram"
	tgadapter "github.com/m3rciful/relaybot/internal/adapter/telegram"
	"github.com/m3rciful/relaybot/internal/relay"

	tele "gopkg.in/telebot.v4"
	"log/slog"
)

const defaultConfigPath = "config.yaml"

func main() {
	if err := run(); err != nil {
		log.Fatalf("relaybot: %v", err)
	}
}

func run() error {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	state, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return err
	}

	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	startedAt := time.Now()

	runOpts := coretelegram.RunOptions{
		Config:      cfg,
		Middlewares: coretelegram.DefaultMiddlewares(cfg, nil),
		BuildRoutes: func(bot *tele.Bot) []coretelegram.Route {
			outbox := tgadapter.NewOutbox(bot)
			service := relay.NewService(state.Roles, state.Tracker, outbox, cfg.Relay)
			return tgadapter.NewHandler(service).Routes()
		},
		OnStart: func(ctx context.Context, _ *tele.Bot) error {
			logger.L.With("component", "app").Info("app ready",
				slog.String("event", "ready"),
				slog.Int("admins", len(state.Roles.Snapshot())),
				slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
			)
			return nil
		},
		OnStop: func(ctx context.Context, _ *tele.Bot) error {
			logger.L.With("component", "app").Info("shutting down...",
				slog.String("event", "shutdown"),
			)
			return nil
		},
	}

	return coretelegram.Run(ctx, runOpts)
}
