package bootstrap

import (
	"context"
	"fmt"

	coreconfig "github.com/m3rciful/relaybot/core/config"
	"github.com/m3rciful/relaybot/core/logger"
	"github.com/m3rciful/relaybot/internal/onboarding"
	"github.com/m3rciful/relaybot/internal/roles"
	"github.com/m3rciful/relaybot/internal/storage"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	OpenStore  func(coreconfig.StorageConfig) (*storage.FileStore, error)
}

// Result exposes the state loaded by the bootstrap pipeline.
type Result struct {
	Store   *storage.FileStore
	Roles   *roles.Registry
	Tracker *onboarding.Tracker
}

// Run initializes the logger, opens the flat-record store, and loads the
// admin set and user map into their owning components.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	openStore := opts.OpenStore
	if openStore == nil {
		openStore = storage.Open
	}
	store, err := openStore(opts.Config.Storage)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: storage initialization failed: %w", err)
	}

	reg, err := roles.NewRegistry(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: admin set load failed: %w", err)
	}

	tracker, err := onboarding.NewTracker(ctx, store, reg.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: user map load failed: %w", err)
	}

	return &Result{Store: store, Roles: reg, Tracker: tracker}, nil
}
