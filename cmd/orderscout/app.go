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
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/h3nc4/OrderScout/internal/bot"
	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/distributor"
	"github.com/h3nc4/OrderScout/internal/httpapi"
	"github.com/h3nc4/OrderScout/internal/metrics"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/monitor"
	"github.com/h3nc4/OrderScout/internal/notifier"
	"github.com/h3nc4/OrderScout/internal/payment"
	"github.com/h3nc4/OrderScout/internal/pool"
	"github.com/h3nc4/OrderScout/internal/responder"
	"github.com/h3nc4/OrderScout/internal/scheduler"
	"github.com/h3nc4/OrderScout/internal/scout"
	"github.com/h3nc4/OrderScout/internal/storage"
	"github.com/h3nc4/OrderScout/internal/telegram"
)

const stopTimeout = 15 * time.Second

// Load the watch-list of one pool owner
type targetsFunc func(ctx context.Context, ownerID int64) ([]int64, error)

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, err := storage.Open(ctx, cfg.DatabaseDSN, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	var stateDB *bbolt.DB
	if cfg.StateFile != "" {
		stateDB, err = bbolt.Open(cfg.StateFile, 0o600, &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return fmt.Errorf("failed to open state file: %w", err)
		}
		defer func() { _ = stateDB.Close() }()
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to connect bot api: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	// Channel for streaming messages from every connection to Scout
	messages := make(chan model.Message, cfg.Monitoring.QueueSize)

	connections := func(kind model.SourceKind, targets targetsFunc) pool.Factory {
		return func(ownerID int64, credential string) pool.Conn {
			return telegram.New(telegram.Options{
				AppID:      cfg.AppID,
				AppHash:    cfg.AppHash,
				Kind:       kind,
				OwnerID:    ownerID,
				Credential: credential,
				Targets:    func(ctx context.Context) ([]int64, error) { return targets(ctx, ownerID) },
				Out:        messages,
				StateDB:    stateDB,
				Log:        log,
			})
		}
	}
	users := pool.New("users", connections(model.SourceSubscriber, store.EnabledChatIDs), log, rec.ConnectionGauge("users"))
	workers := pool.New("workers", connections(model.SourceWorker, store.WorkerChatIDs), log, rec.ConnectionGauge("workers"))

	clients := func(credential string) telegram.ScoutClient {
		return telegram.NewClient(cfg.AppID, cfg.AppHash, credential, log)
	}

	notif := notifier.New(api, cfg.Notify, log, rec)
	dist := distributor.New(store, workers, log)
	sc := scout.New(cfg, store, notif, log, rec)
	resp := responder.New(cfg, store, users, workers, clients, log, rec)
	mon := monitor.New(cfg, store, users, workers, dist, clients, log)

	botDeps := bot.Deps{Store: store, Monitor: mon, Responder: resp}
	schedDeps := scheduler.Deps{Store: store, Notifier: notif, Users: users}
	apiDeps := httpapi.Deps{Metrics: metrics.Handler(reg), AdminToken: cfg.AdminToken}

	if cfg.Mode == config.ModeShared {
		botDeps.Stats = dist
		schedDeps.Rebalancer = dist
		apiDeps.Distribution = dist
		apiDeps.Workers = mon
	}

	gw, err := payment.NewGateway(cfg.Payments)
	switch {
	case errors.Is(err, payment.ErrDisabled):
		log.Info("Payments disabled")
	case err != nil:
		return fmt.Errorf("failed to configure payments: %w", err)
	default:
		svc := payment.NewService(gw, store, notif, cfg, log)
		botDeps.Payments = svc
		schedDeps.Payments = svc
		apiDeps.Webhooks = svc
	}

	b := bot.New(api, cfg, botDeps, log)
	sched := scheduler.New(cfg, schedDeps, log)

	log.Info("Starting OrderScout",
		zap.String("mode", string(cfg.Mode)),
		zap.String("bot", api.Self.UserName),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sc.Start(gctx, messages)
		return nil
	})
	g.Go(func() error { return runBot(gctx, b, log) })
	g.Go(func() error { return sched.Run(gctx) })
	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewRouter(apiDeps, log), log)
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		// Connections must stop before Scout so no emit blocks on a full queue
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), stopTimeout)
		defer cancel()
		return errors.Join(users.StopAll(stopCtx), workers.StopAll(stopCtx))
	})

	if err := mon.Recover(gctx); err != nil {
		log.Error("Failed to recover monitoring", zap.Error(err))
	}

	err = g.Wait()
	log.Info("OrderScout shutdown complete")
	return err
}

// Keep the bot update loop alive, restarting it with exponential backoff
func runBot(ctx context.Context, b *bot.Bot, log *zap.Logger) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	op := func() error {
		err := b.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("update channel closed")
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Error("Bot loop stopped, restarting", zap.Error(err), zap.Duration("backoff", wait))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
