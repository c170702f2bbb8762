package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"peersync/internal/cli"
	"peersync/internal/config"
	"peersync/internal/lib/logger"
	"peersync/internal/lib/logger/sl"
	"peersync/internal/node"
	pkgcli "peersync/pkg/cli"
)

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func main() {
	cfg := config.MustLoadPeer()

	// the terminal owns stdout, logs go to a file
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		stdlog.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	log := logger.Setup(cfg.Env, file)

	log.Info("starting peer",
		slog.String("env", cfg.Env),
		slog.String("coordinator", cfg.Coordinator),
		slog.String("share_dir", cfg.ShareDir),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("peer stopped", sl.Err(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	log.Info("peer shutdown complete")
}

func run(ctx context.Context, cfg *config.Peer, log *slog.Logger) error {
	n, err := node.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer n.Close()

	restore, err := pkgcli.MakeRaw(os.Stdin)
	if err != nil {
		return err
	}
	defer restore()

	appCtx := cli.NewAppContext(n, cfg.RequestTimeout)
	terminal := pkgcli.NewAutoCompleteTerminal(cli.NewRootCommand(appCtx), stdio{}, cli.Prompt)

	if _, err := cli.Login(ctx, n, terminal, cfg.Username, cfg.Password); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- n.Run(ctx)
	}()

	if err := terminal.Start(ctx); err != nil {
		return err
	}

	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
