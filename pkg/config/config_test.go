package config

import (
	"flag"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/astromechza/questionsync/pkg/channel"
)

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	assert.Equal(t, err, nil)
	assert.Equal(t, cfg.Addr, "127.0.0.1:8080")
	assert.Equal(t, cfg.RetryInterval, time.Second)
	assert.Equal(t, cfg.Mode(), channel.ModeSSE)
	assert.Equal(t, cfg.PushURL(), "http://127.0.0.1:8080/api/sse")
}

func TestLoad_env_then_flags(t *testing.T) {
	t.Setenv("QA_CHANNEL", "websocket")
	t.Setenv("QA_ADDR", "example:1")
	t.Setenv("QA_RETRY_INTERVAL", "250ms")
	cfg, err := Load(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-addr", "other:2"})
	assert.Equal(t, err, nil)
	assert.Equal(t, cfg.Addr, "other:2")
	assert.Equal(t, cfg.RetryInterval, 250*time.Millisecond)
	assert.Equal(t, cfg.PushURL(), "ws://other:2/api/ws")
}

func TestLoad_rejects_bad_values(t *testing.T) {
	_, err := Load(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-channel", "smoke-signals"})
	assert.NotEqual(t, err, nil)
	_, err = Load(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-retry-interval", "0s"})
	assert.NotEqual(t, err, nil)
}
