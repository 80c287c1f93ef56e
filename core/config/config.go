package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// StorageConfig locates the flat records holding admin and user state.
type StorageConfig struct {
	Dir        string `yaml:"dir" envconfig:"STORAGE_DIR"`
	AdminsFile string `yaml:"admins_file" envconfig:"STORAGE_ADMINS_FILE"`
	UsersFile  string `yaml:"users_file" envconfig:"STORAGE_USERS_FILE"`
}

// RepliesConfig holds the user-facing reply strings. Empty values fall back
// to English defaults during Normalize.
type RepliesConfig struct {
	Promoted      string `yaml:"promoted"`
	Demoted       string `yaml:"demoted"`
	NotAdmin      string `yaml:"not_admin"`
	OnboardNotice string `yaml:"onboard_notice"`
	ForwardAck    string `yaml:"forward_ack"`
	// ForwardPrefix must contain a single %s verb for the sender display name.
	ForwardPrefix string `yaml:"forward_prefix"`
}

// RelayConfig controls the admin phrases and reply texts of the relay.
type RelayConfig struct {
	PromotePhrase string        `yaml:"promote_phrase" envconfig:"RELAY_PROMOTE_PHRASE"`
	DemotePhrase  string        `yaml:"demote_phrase" envconfig:"RELAY_DEMOTE_PHRASE"`
	Replies       RepliesConfig `yaml:"replies"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "message": standard text and media messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the full relaybot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
	Relay     RelayConfig     `yaml:"relay"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if key != UpdateMessage {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if strings.TrimSpace(cfg.Storage.Dir) == "" {
		cfg.Storage.Dir = "data"
	}
	if strings.TrimSpace(cfg.Storage.AdminsFile) == "" {
		cfg.Storage.AdminsFile = "admins.txt"
	}
	if strings.TrimSpace(cfg.Storage.UsersFile) == "" {
		cfg.Storage.UsersFile = "users.txt"
	}
	if cfg.Storage.AdminsFile == cfg.Storage.UsersFile {
		return fmt.Errorf("storage.admins_file and storage.users_file must differ")
	}

	cfg.Relay.PromotePhrase = strings.TrimSpace(cfg.Relay.PromotePhrase)
	cfg.Relay.DemotePhrase = strings.TrimSpace(cfg.Relay.DemotePhrase)
	if cfg.Relay.PromotePhrase == "" {
		cfg.Relay.PromotePhrase = "i am the manager"
	}
	if cfg.Relay.DemotePhrase == "" {
		cfg.Relay.DemotePhrase = "i am not the manager"
	}
	if strings.EqualFold(cfg.Relay.PromotePhrase, cfg.Relay.DemotePhrase) {
		return fmt.Errorf("relay.promote_phrase and relay.demote_phrase must differ")
	}

	r := &cfg.Relay.Replies
	if r.Promoted == "" {
		r.Promoted = "You are now an admin and will receive all future messages and photos."
	}
	if r.Demoted == "" {
		r.Demoted = "You are no longer an admin."
	}
	if r.NotAdmin == "" {
		r.NotAdmin = "You were not an admin."
	}
	if r.OnboardNotice == "" {
		r.OnboardNotice = "Hi! Messages and photos you send here are relayed to the people in charge. They will get back to you in this chat."
	}
	if r.ForwardAck == "" {
		r.ForwardAck = "Your message has been forwarded."
	}
	if r.ForwardPrefix == "" {
		r.ForwardPrefix = "Forwarded from %s"
	}
	if strings.Count(r.ForwardPrefix, "%s") != 1 {
		return fmt.Errorf("relay.replies.forward_prefix must contain exactly one %%s verb")
	}

	return nil
}
