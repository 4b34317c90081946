package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/astromechza/questionsync/pkg/api"
	"github.com/astromechza/questionsync/pkg/config"
	"github.com/astromechza/questionsync/pkg/engine"
	"github.com/astromechza/questionsync/pkg/journal"
	"github.com/astromechza/questionsync/pkg/notice"
	"github.com/astromechza/questionsync/pkg/session"
	"github.com/astromechza/questionsync/pkg/state"
	"github.com/astromechza/questionsync/pkg/viz"
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

	store := state.NewStore(nil)
	store.Subscribe(func(action state.Action, tree *state.StateTree) {
		slog.Info("state changed", "action", action.Kind, "tags", len(tree.Tags), "questions", len(tree.Questions),
			"thread", tree.QuestionThread.ThreadID(), "refresh", tree.RefreshNeeded)
	})

	recorder, err := journal.NewRecorder(hex.EncodeToString([]byte(fmt.Sprintf("%d", os.Getpid()))))
	if err != nil {
		return err
	}
	recorder.Attach(store)

	guard := session.NewGuard(nil, cfg.LoginPath, session.NavigatorFunc(func(path string) {
		slog.Warn("session rejected, log in again", "navigate", path)
	}))

	client, err := api.New(cfg.BaseURL(), guard.Client(), store, nil)
	if err != nil {
		return err
	}
	switch {
	case cfg.Token != "":
		client.SetToken(cfg.Token)
	case cfg.UserID != "":
		if _, err := client.Login(ctx, cfg.UserID, cfg.UserID); err != nil {
			return fmt.Errorf("failed to login: %w", err)
		}
	}

	eng := engine.New(store, engine.Options{
		Mode:          cfg.Mode(),
		URL:           cfg.PushURL(),
		Header:        client.AuthHeader(),
		RetryInterval: cfg.RetryInterval,
		Notifier:      notice.Log{},
	})
	client.SetThreadWatcher(eng)
	client.WatchRebuild(ctx)

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if cfg.Reconnect > 0 {
			if err := eng.RunWithReconnect(ctx, cfg.Reconnect); err != nil {
				slog.Error("push channel stopped", "err", err)
			}
			return
		}
		if err := eng.Start(ctx); err != nil {
			slog.Error("failed to start push channel", "err", err)
			return
		}
		if err := eng.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("push channel closed", "err", err)
		}
	}()

	if _, err := client.FetchTags(ctx); err != nil {
		slog.Error("failed to fetch tags", "err", err)
	}
	if _, err := client.FetchQuestions(ctx); err != nil {
		slog.Error("failed to fetch questions", "err", err)
	}
	if flag.NArg() > 0 {
		if _, err := client.LoadQuestionThread(ctx, flag.Arg(0)); err != nil {
			slog.Error("failed to load question thread", "question", flag.Arg(0), "err", err)
		}
	}

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()
	_ = eng.Close()

	wg.Wait()
	slog.Info("push stats", "stats", eng.Stats())

	dir := cfg.JournalDir
	if dir == "" {
		dir = os.TempDir()
	}
	if path, err := recorder.SaveToDir(dir); err != nil {
		slog.Error("failed to dump journal", "err", err)
	} else {
		slog.Info("dumped", "journal", path)
	}
	if svgPath, err := viz.RenderToTemp(store.GetState()); err != nil {
		slog.Error("failed to render", "err", err)
	} else {
		slog.Info("rendered", "path", "file://"+svgPath)
	}
	return nil
}
