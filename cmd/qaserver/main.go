package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/astromechza/questionsync/pkg/config"
	"github.com/astromechza/questionsync/pkg/server"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := server.Open(ctx, cfg.Database, cfg.JWTSecret)
	if err != nil {
		return err
	}
	defer s.Close()

	httpServer := &http.Server{Addr: cfg.Addr, Handler: s.Handler()}

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range exit {
		if sig == syscall.SIGHUP {
			slog.Info("asking clients to rebuild", "subscribers", s.Subscribers())
			s.RequestRebuild()
			continue
		}
		slog.Info("Signal caught", "sig", sig)
		break
	}
	cancel()
	_ = httpServer.Close()

	wg.Wait()
	return nil
}
