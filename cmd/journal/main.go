package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/astromechza/questionsync/pkg/journal"
	"github.com/astromechza/questionsync/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	svgVar := flag.String("svg", "", "render the final state to this svg file")
	flag.Parse()
	if flag.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the journal file to read")
	}
	f, err := os.Open(flag.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()
	buff, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	entries, err := journal.History(buff)
	if err != nil {
		return err
	}
	buff = nil
	slog.Info("loaded journal", "transitions", len(entries))

	for i, entry := range entries {
		thread := ""
		answers := 0
		if entry.Tree.QuestionThread != nil {
			thread = entry.Tree.QuestionThread.ThreadID()
			answers = len(entry.Tree.QuestionThread.Answers)
		}
		fmt.Printf("%4d %s %s@%d %-26s tags=%d questions=%d thread=%q answers=%d refresh=%t\n",
			i, entry.Hash[:8], entry.Actor, entry.Seq, entry.Action,
			len(entry.Tree.Tags), len(entry.Tree.Questions), thread, answers, entry.Tree.RefreshNeeded)
	}

	if *svgVar != "" && len(entries) > 0 {
		if err := viz.RenderTreeToSvg(entries[len(entries)-1].Tree, *svgVar); err != nil {
			return err
		}
		slog.Info("rendered", "path", *svgVar)
	}
	return nil
}
