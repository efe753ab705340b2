package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/tomz197/officeescape/internal/client"
	"github.com/tomz197/officeescape/internal/config"
	"github.com/tomz197/officeescape/internal/draw"
	"github.com/tomz197/officeescape/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "game error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fd := int(os.Stdin.Fd())
	tty := term.IsTerminal(int(os.Stdout.Fd()))
	profile := draw.DetectProfile(draw.OSEnv(), tty, cfg.ColorProfile)
	logger.Info("starting",
		zap.String("server", cfg.ServerURL),
		zap.String("profile", draw.ProfileName(profile)))

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("failed to enable raw mode: %w", err)
	}
	defer func() {
		_ = term.Restore(fd, oldState)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	c := client.New(bufio.NewReader(os.Stdin), os.Stdout, client.Options{
		Config:  cfg,
		Profile: profile,
		Logger:  logger,
	})
	if err := c.Run(ctx); err != nil {
		logger.Error("client stopped", zap.Error(err))
		return err
	}
	logger.Info("bye")
	return nil
}
