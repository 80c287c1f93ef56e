package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{Telegram: TelegramConfig{Token: "123:abc"}}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want longpoll", cfg.Telegram.RunMode)
	}
	if cfg.Storage.Dir != "data" || cfg.Storage.AdminsFile != "admins.txt" || cfg.Storage.UsersFile != "users.txt" {
		t.Fatalf("storage defaults = %+v", cfg.Storage)
	}
	if cfg.Relay.PromotePhrase != "i am the manager" || cfg.Relay.DemotePhrase != "i am not the manager" {
		t.Fatalf("phrase defaults = %q / %q", cfg.Relay.PromotePhrase, cfg.Relay.DemotePhrase)
	}
	if cfg.Relay.Replies.ForwardPrefix != "Forwarded from %s" {
		t.Fatalf("forward prefix default = %q", cfg.Relay.Replies.ForwardPrefix)
	}
	if cfg.Relay.Replies.OnboardNotice == "" || cfg.Relay.Replies.ForwardAck == "" {
		t.Fatalf("reply defaults missing: %+v", cfg.Relay.Replies)
	}
}

func TestNormalizeValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"missing token",
			func(c *Config) { c.Telegram.Token = "" },
			"token is required",
		},
		{
			"unknown run mode",
			func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" },
			"invalid telegram.run_mode",
		},
		{
			"webhook without url",
			func(c *Config) { c.Telegram.RunMode = "webhook" },
			"webhook.url is required",
		},
		{
			"negative longpoll timeout",
			func(c *Config) { c.Telegram.LongPollTimeoutSeconds = -1 },
			"longpoll_timeout_seconds",
		},
		{
			"colliding record files",
			func(c *Config) {
				c.Storage.AdminsFile = "state.txt"
				c.Storage.UsersFile = "state.txt"
			},
			"must differ",
		},
		{
			"equal phrases",
			func(c *Config) {
				c.Relay.PromotePhrase = "magic words"
				c.Relay.DemotePhrase = "Magic Words"
			},
			"must differ",
		},
		{
			"forward prefix without verb",
			func(c *Config) { c.Relay.Replies.ForwardPrefix = "Forwarded" },
			"forward_prefix",
		},
		{
			"forward prefix with two verbs",
			func(c *Config) { c.Relay.Replies.ForwardPrefix = "%s via %s" },
			"forward_prefix",
		},
		{
			"bad rate limit exclusion",
			func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"callback"} },
			"exclude_updates",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := Normalize(&cfg)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestNormalizeRunModeAliases(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"polling", RunModeLongpoll},
		{" LongPoll ", RunModeLongpoll},
		{"", RunModeLongpoll},
	}
	for _, tc := range cases {
		cfg := validConfig()
		cfg.Telegram.RunMode = tc.in
		if err := Normalize(&cfg); err != nil {
			t.Fatalf("normalize %q: %v", tc.in, err)
		}
		if cfg.Telegram.RunMode != tc.want {
			t.Fatalf("run mode %q normalized to %q, want %q", tc.in, cfg.Telegram.RunMode, tc.want)
		}
	}
}
