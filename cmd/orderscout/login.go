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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/storage"
	"github.com/h3nc4/OrderScout/internal/telegram"
)

type loginFlags struct {
	worker     string
	maxGroups  int
	subscriber int64
	phone      string
	password   string
	qr         bool
}

// Where a fresh session is stored
type sessionStore interface {
	CreateWorker(ctx context.Context, w *model.Worker) error
	EnsureSubscriber(ctx context.Context, telegramID int64, username, responseText string) (*model.Subscriber, error)
	SetSession(ctx context.Context, id int64, session string) error
}

func newLoginCommand() *cobra.Command {
	var f loginFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log a Telegram account in and store its session",
		Long: "Log a Telegram account in interactively. With --worker the session becomes a new\n" +
			"shared-pool worker, with --subscriber it is attached to that subscriber.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (f.worker == "") == (f.subscriber == 0) {
				return errors.New("exactly one of --worker or --subscriber is required")
			}
			return withLogger(func(cfg *config.Config, log *zap.Logger) error {
				store, err := storage.Open(cmd.Context(), cfg.DatabaseDSN, log)
				if err != nil {
					return fmt.Errorf("failed to open storage: %w", err)
				}
				defer func() { _ = store.Close() }()

				res, err := telegram.Login(cmd.Context(), telegram.LoginOptions{
					AppID:    cfg.AppID,
					AppHash:  cfg.AppHash,
					Phone:    f.phone,
					Password: f.password,
					QR:       f.qr,
					In:       os.Stdin,
					Out:      cmd.OutOrStdout(),
					Log:      log,
				})
				if err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
				return saveSession(cmd.Context(), store, cfg, f, res, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&f.worker, "worker", "", "create a worker with this name")
	cmd.Flags().IntVar(&f.maxGroups, "max-groups", storage.DefaultMaxGroups, "worker group capacity")
	cmd.Flags().Int64Var(&f.subscriber, "subscriber", 0, "attach the session to the subscriber with this Telegram ID")
	cmd.Flags().StringVar(&f.phone, "phone", "", "phone number, prompted when empty")
	cmd.Flags().StringVar(&f.password, "password", "", "two-factor password, prompted when needed")
	cmd.Flags().BoolVar(&f.qr, "qr", false, "log in by scanning a QR code")
	return cmd
}

func saveSession(ctx context.Context, store sessionStore, cfg *config.Config, f loginFlags, res *telegram.LoginResult, out io.Writer) error {
	if f.worker != "" {
		w := &model.Worker{
			Name:      f.worker,
			Phone:     f.phone,
			Session:   res.Credential,
			MaxGroups: f.maxGroups,
			IsActive:  true,
		}
		if err := store.CreateWorker(ctx, w); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Worker %q (id %d) created for @%s\n", w.Name, w.ID, res.Username)
		return nil
	}

	if res.UserID != f.subscriber {
		return fmt.Errorf("logged in as %d, expected subscriber %d", res.UserID, f.subscriber)
	}
	sub, err := store.EnsureSubscriber(ctx, f.subscriber, res.Username, cfg.ResponseText)
	if err != nil {
		return err
	}
	if err := store.SetSession(ctx, sub.ID, res.Credential); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Session stored for subscriber %d (@%s)\n", sub.TelegramID, res.Username)
	return nil
}
