package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/astromechza/questionsync/pkg/channel"
)

// Config holds the settings shared by the client and server programs. Environment variables give the defaults
// and command-line flags override them.
type Config struct {
	Addr          string        `env:"ADDR" envDefault:"127.0.0.1:8080"`
	Channel       string        `env:"CHANNEL" envDefault:"sse"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"1s"`
	LoginPath     string        `env:"LOGIN_PATH" envDefault:"/login"`
	Token         string        `env:"TOKEN"`
	UserID        string        `env:"USER_ID"`
	Database      string        `env:"DATABASE" envDefault:"questions.sqlite3"`
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"development-only-secret"`
	JournalDir    string        `env:"JOURNAL_DIR"`
	Reconnect     time.Duration `env:"RECONNECT"`
}

// Load reads QA_* environment variables and then the flags in args.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := new(Config)
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "QA_"}); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "the address of the server")
	fs.StringVar(&cfg.Channel, "channel", cfg.Channel, "push channel transport: sse or websocket")
	fs.DurationVar(&cfg.RetryInterval, "retry-interval", cfg.RetryInterval, "how often queued outbound messages check the channel")
	fs.StringVar(&cfg.LoginPath, "login-path", cfg.LoginPath, "where to navigate when the session is rejected")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "session token to send with requests")
	fs.StringVar(&cfg.UserID, "user", cfg.UserID, "user id to log in as when no token is given")
	fs.StringVar(&cfg.Database, "database", cfg.Database, "sqlite database path (server only)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "secret for signing session tokens (server only)")
	fs.StringVar(&cfg.JournalDir, "journal-dir", cfg.JournalDir, "directory to dump the state journal into on exit")
	fs.DurationVar(&cfg.Reconnect, "reconnect", cfg.Reconnect, "reconnect delay for the push channel, 0 disables reconnecting")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if _, err := channel.ParseMode(cfg.Channel); err != nil {
		return nil, err
	}
	if cfg.RetryInterval <= 0 {
		return nil, fmt.Errorf("retry interval must be positive, got %s", cfg.RetryInterval)
	}
	return cfg, nil
}

func (c *Config) Mode() channel.Mode {
	m, _ := channel.ParseMode(c.Channel)
	return m
}

func (c *Config) BaseURL() string {
	return "http://" + c.Addr
}

// PushURL is the push endpoint for the configured transport.
func (c *Config) PushURL() string {
	if c.Mode() == channel.ModeWebSocket {
		return "ws://" + c.Addr + "/api/ws"
	}
	return c.BaseURL() + "/api/sse"
}
