/*
 * Copyright (C) 2026  Henrique Almeida
 * This file is part of OrderScout.
 *
 * OrderScout is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published
 * by the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * OrderScout is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with OrderScout.  If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/logger"
)

func main() {
	// Initialize context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "orderscout",
		Short:         "Watch Telegram groups for orders matching subscriber filters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := newServeCommand()
	root.RunE = serve.RunE
	root.AddCommand(serve, newLoginCommand(), newRedistributeCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the monitoring pipeline and the operator API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLogger(func(cfg *config.Config, log *zap.Logger) error {
				if err := run(cmd.Context(), cfg, log); err != nil {
					log.Error("Application failed", zap.Error(err))
					return err
				}
				return nil
			})
		},
	}
}

// Load configuration and build the logger around fn
func withLogger(fn func(cfg *config.Config, log *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return err
	}
	defer func() { _ = log.Sync() }()

	return fn(cfg, log)
}
