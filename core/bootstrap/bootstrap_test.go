package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/relaybot/core/config"
	"github.com/m3rciful/relaybot/internal/storage"
)

func testConfig(t *testing.T) *coreconfig.Config {
	t.Helper()
	return &coreconfig.Config{
		Telegram: coreconfig.TelegramConfig{Token: "123:abc"},
		Storage: coreconfig.StorageConfig{
			Dir:        t.TempDir(),
			AdminsFile: "admins.txt",
			UsersFile:  "users.txt",
		},
	}
}

func noopLoggerInit(*coreconfig.Config) error { return nil }

func TestRunPipeline(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	seed := filepath.Join(cfg.Storage.Dir, cfg.Storage.AdminsFile)
	if err := os.WriteFile(seed, []byte("7\n"), 0o644); err != nil {
		t.Fatalf("seed admins: %v", err)
	}

	res, err := Run(ctx, Options{Config: cfg, LoggerInit: noopLoggerInit})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Store == nil || res.Roles == nil || res.Tracker == nil {
		t.Fatalf("incomplete result: %+v", res)
	}
	if !res.Roles.IsAdmin(7) {
		t.Fatalf("durable admin set not loaded")
	}
	if res.Tracker.Tracked(7) {
		t.Fatalf("admin leaked into the user map")
	}
}

func TestRunNilConfig(t *testing.T) {
	if _, err := Run(context.Background(), Options{}); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestRunStageFailures(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		opts    func(t *testing.T) Options
		wantErr string
	}{
		{
			"logger init",
			func(t *testing.T) Options {
				return Options{
					Config:     testConfig(t),
					LoggerInit: func(*coreconfig.Config) error { return errors.New("bad sink") },
				}
			},
			"logger init failed",
		},
		{
			"store open",
			func(t *testing.T) Options {
				return Options{
					Config:     testConfig(t),
					LoggerInit: noopLoggerInit,
					OpenStore: func(coreconfig.StorageConfig) (*storage.FileStore, error) {
						return nil, errors.New("read-only filesystem")
					},
				}
			},
			"storage initialization failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Run(ctx, tc.opts(t))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}
