// Package main provides the agentstate CLI for inspecting and exercising
// persisted agent sessions.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/ekessh/agent-checkpoint-protocol/internal/adapters/repository/fs"
	"github.com/ekessh/agent-checkpoint-protocol/internal/adapters/repository/postgres"
	"github.com/ekessh/agent-checkpoint-protocol/internal/adapters/repository/sqlite"
	"github.com/ekessh/agent-checkpoint-protocol/internal/app/controller"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/session"
	"github.com/ekessh/agent-checkpoint-protocol/pkg/agentstate"
)

// Version information set during build
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("agentstate %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
	case "log":
		err = cmdLog(os.Args[2:])
	case "branches":
		err = cmdBranches()
	case "tree":
		err = cmdTree()
	case "metrics":
		err = cmdMetrics()
	case "demo":
		err = cmdDemo(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentstate: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: agentstate <command> [flags]

Commands:
  log       show checkpoint history (-branch, -limit)
  branches  list branches in the persisted session
  tree      render the logic tree
  metrics   print session counters
  demo      run a short checkpoint/rollback/branch walkthrough (-agent)
  version   print version information

Environment (also read from .env):
  AGENTSTATE_BACKEND  fs (default), sqlite, or postgres
  AGENTSTATE_DIR      directory for the fs backend (default .agentstate)
  AGENTSTATE_DSN      database path (sqlite) or connection string (postgres)`)
}

type closerFunc func()

func openSink(ctx context.Context) (session.Sink, closerFunc, error) {
	backend := os.Getenv("AGENTSTATE_BACKEND")
	switch backend {
	case "", "fs":
		dir := os.Getenv("AGENTSTATE_DIR")
		if dir == "" {
			dir = fs.DefaultRoot
		}
		sink, err := fs.NewSink(dir)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() {}, nil
	case "sqlite":
		dsn := os.Getenv("AGENTSTATE_DSN")
		if dsn == "" {
			dsn = "agentstate.db"
		}
		sink, err := sqlite.Open(dsn)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { _ = sink.Close() }, nil
	case "postgres":
		dsn := os.Getenv("AGENTSTATE_DSN")
		if dsn == "" {
			return nil, nil, fmt.Errorf("AGENTSTATE_DSN is required for the postgres backend")
		}
		sink, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { sink.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func loadEngine(ctx context.Context) (*controller.Controller, closerFunc, error) {
	sink, closeSink, err := openSink(ctx)
	if err != nil {
		return nil, nil, err
	}
	eng, err := controller.LoadSession(ctx, sink, slog.Default())
	if err != nil {
		closeSink()
		return nil, nil, err
	}
	if eng == nil {
		closeSink()
		return nil, nil, fmt.Errorf("no persisted session found")
	}
	return eng, closeSink, nil
}

func cmdLog(args []string) error {
	fset := flag.NewFlagSet("log", flag.ExitOnError)
	branchName := fset.String("branch", "", "branch to show (default: current)")
	limit := fset.Int("limit", 20, "maximum entries")
	if err := fset.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	eng, closeSink, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	defer closeSink()

	entries := eng.History(*branchName, *limit)
	if len(entries) == 0 {
		fmt.Println("(no checkpoints)")
		return nil
	}
	for _, e := range entries {
		step := ""
		if len(e.LogicPath) > 0 {
			step = e.LogicPath[len(e.LogicPath)-1]
		}
		fmt.Printf("%s  %s  %-11s  %s\n",
			e.ID, e.Timestamp.Format("2006-01-02 15:04:05"), e.Status, step)
	}
	return nil
}

func cmdBranches() error {
	ctx := context.Background()
	eng, closeSink, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	defer closeSink()

	for _, info := range eng.ListBranches() {
		marker := " "
		if info.IsCurrent {
			marker = "*"
		}
		from := info.Parent
		if from == "" {
			from = "-"
		}
		fmt.Printf("%s %-20s %3d checkpoints  (from %s)\n",
			marker, info.Name, info.CheckpointCount, from)
	}
	return nil
}

func cmdTree() error {
	ctx := context.Background()
	eng, closeSink, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	defer closeSink()

	fmt.Println(eng.VisualizeTree())
	return nil
}

func cmdMetrics() error {
	ctx := context.Background()
	eng, closeSink, err := loadEngine(ctx)
	if err != nil {
		return err
	}
	defer closeSink()

	m := eng.Metrics()
	fmt.Printf("checkpoints:  %d\n", m.TotalCheckpoints)
	fmt.Printf("rollbacks:    %d\n", m.TotalRollbacks)
	fmt.Printf("recoveries:   %d\n", m.TotalRecoveries)
	fmt.Printf("branches:     %d\n", m.TotalBranches)
	fmt.Printf("errors:       %d\n", m.ErrorsCaught)
	fmt.Printf("recovery (s): %.3f\n", m.RecoverySeconds)
	return nil
}

// cmdDemo runs a small end-to-end walkthrough and persists the resulting
// session, so the inspection commands have something to show.
func cmdDemo(args []string) error {
	fset := flag.NewFlagSet("demo", flag.ExitOnError)
	agent := fset.String("agent", "demo-agent", "agent name")
	if err := fset.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	sink, closeSink, err := openSink(ctx)
	if err != nil {
		return err
	}
	defer closeSink()

	eng, err := agentstate.New(agentstate.Options{AgentName: *agent, Sink: sink})
	if err != nil {
		return err
	}

	eng.Checkpoint(ctx, map[string]any{"step": 1, "notes": []any{}}, nil, "initialized", "init")
	eng.Checkpoint(ctx, map[string]any{"step": 2, "notes": []any{"gathered input"}}, nil, "processed input", "process")
	eng.Checkpoint(ctx, map[string]any{"step": 3, "notes": []any{"gathered input", "ran analysis"}}, nil, "analysis complete", "analyze")

	eng.Branch("experiment", "")
	eng.Checkpoint(ctx, map[string]any{"step": 4, "notes": []any{"trying alternative"}}, nil, "experimental path", "experiment")
	if _, err := eng.SwitchBranch(agentstate.MainBranch); err != nil {
		return err
	}

	if _, err := eng.Rollback(1); err != nil {
		return err
	}

	if err := eng.SaveSession(ctx); err != nil {
		return err
	}

	fmt.Printf("demo session for %q saved\n", *agent)
	fmt.Println(eng.VisualizeTree())
	return nil
}
