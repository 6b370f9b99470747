package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/hookd/internal/api"
	"github.com/mattjoyce/hookd/internal/auth"
	"github.com/mattjoyce/hookd/internal/doctor"
	"github.com/mattjoyce/hookd/internal/lock"
	"github.com/mattjoyce/hookd/internal/log"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	listen := fs.String("listen", "", "Override api.listen")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := openEnv(ctx, *configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	defer e.Close()

	logger := log.WithComponent("main")
	logger.Info("hookd starting", "version", version, "config", e.configPath, "source", e.cfg.Source)

	if !e.cfg.API.Enabled && *listen == "" {
		logger.Error("nothing to serve: api.enabled is false")
		return 1
	}
	addr := e.cfg.API.Listen
	if *listen != "" {
		addr = *listen
	}

	pidLockPath := lock.PathFor(e.cfg.State.Path)
	pidLock, err := lock.Acquire(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	// Refuse to start with registrations that would fail on first use.
	regs, err := e.registrations(ctx)
	if err != nil {
		logger.Error("failed to read registrations", "error", err)
		return 1
	}
	result := doctor.New(e.cfg, regs, e.catalog).Validate()
	for _, w := range result.Warnings {
		logger.Warn("preflight warning", "category", w.Category, "field", w.Field, "message", w.Message)
	}
	if !result.Valid {
		for _, issue := range result.Errors {
			logger.Error("preflight error", "category", issue.Category, "field", issue.Field, "message", issue.Message)
		}
		return 1
	}

	tokens := make([]auth.TokenConfig, 0, len(e.cfg.API.Auth.Tokens))
	for _, t := range e.cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	server := api.New(api.Config{
		Listen: addr,
		APIKey: e.cfg.API.Auth.APIKey,
		Tokens: tokens,
	}, e.dispatcher(), e.source, e.catalog, log.WithComponent("api"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	logger.Info("hookd running (press Ctrl+C to stop)", "listen", addr, "handlers", e.catalog.Len())

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("api shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		logger.Error("component failed", "error", fmt.Errorf("api: %w", err))
		return 1
	}

	logger.Info("hookd stopped")
	return 0
}
