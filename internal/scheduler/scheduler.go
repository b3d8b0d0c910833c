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

// Package scheduler runs the periodic sweeps: expiry reminders, expiry
// deactivation, retention purge and pending payment polling.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/distributor"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/notifier"
	"github.com/h3nc4/OrderScout/internal/storage"
)

// Store is the persistence the sweeps need
type Store interface {
	ExpiringSubscribers(ctx context.Context, now time.Time, within time.Duration) ([]model.Subscriber, error)
	MarkReminderSent(ctx context.Context, id int64, now time.Time) error
	ExpiredSubscribers(ctx context.Context, now time.Time) ([]model.Subscriber, error)
	DeactivateSubscriber(ctx context.Context, id int64) error
	PurgeBefore(ctx context.Context, cutoff time.Time) (storage.PurgeResult, error)
}

// Stopper stops the connection of a subscriber
type Stopper interface {
	StopClient(ctx context.Context, ownerID int64) error
}

// Rebalancer moves chats off subscribers that no longer need them
type Rebalancer interface {
	RedistributeGroups(ctx context.Context) (distributor.Result, error)
}

// PaymentPoller confirms pending payments with their gateway
type PaymentPoller interface {
	PollPending(ctx context.Context) error
}

// Deps are the collaborators of the sweeps. Users, Rebalancer and Payments may be nil.
type Deps struct {
	Store      Store
	Notifier   notifier.Notifier
	Users      Stopper
	Rebalancer Rebalancer
	Payments   PaymentPoller
}

type job struct {
	name     string
	interval time.Duration
	fn       func(context.Context) error
}

type Scheduler struct {
	cron      *cron.Cron
	deps      Deps
	rules     config.ScheduleRules
	retention time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// New creates a scheduler with one job per sweep
func New(cfg *config.Config, deps Deps, log *zap.Logger) *Scheduler {
	log = log.Named("scheduler")
	logger := cronLogger{log.Sugar()}
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		deps:      deps,
		rules:     cfg.Schedule,
		retention: cfg.Monitoring.Retention,
		log:       log,
		now:       time.Now,
	}
}

// Run starts every job and blocks until ctx is cancelled, then waits for running jobs
func (s *Scheduler) Run(ctx context.Context) error {
	jobs := []job{
		{"reminders", s.rules.SweepInterval, s.SendReminders},
		{"expiry", s.rules.SweepInterval, s.ExpireSubscriptions},
		{"purge", s.rules.SweepInterval, s.Purge},
	}
	if s.deps.Payments != nil {
		jobs = append(jobs, job{"payments", s.rules.PaymentPollInterval, s.deps.Payments.PollPending})
	}

	for _, j := range jobs {
		if j.interval <= 0 {
			return fmt.Errorf("job %s: interval must be positive", j.name)
		}
		if _, err := s.cron.AddFunc("@every "+j.interval.String(), s.wrap(ctx, j.name, j.fn)); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}

	s.cron.Start()
	s.log.Info("Scheduler started", zap.Int("jobs", len(jobs)))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) wrap(ctx context.Context, name string, fn func(context.Context) error) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		start := s.now()
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("Job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.log.Debug("Job finished", zap.String("job", name), zap.Duration("took", s.now().Sub(start)))
	}
}

// SendReminders warns subscribers whose subscription ends within the reminder window
func (s *Scheduler) SendReminders(ctx context.Context) error {
	now := s.now()
	within := time.Duration(s.rules.ReminderDays) * 24 * time.Hour
	subs, err := s.deps.Store.ExpiringSubscribers(ctx, now, within)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		days := int(sub.SubscriptionEnd.Sub(now).Hours()/24) + 1
		text := fmt.Sprintf("⏰ Подписка заканчивается через %d дн. (%s). Продлить: /pay",
			days, sub.SubscriptionEnd.Format("02.01.2006"))
		if err := s.deps.Notifier.Send(ctx, sub.TelegramID, text); err != nil {
			s.log.Warn("Failed to send reminder", zap.Int64("subscriber_id", sub.ID), zap.Error(err))
			continue
		}
		if err := s.deps.Store.MarkReminderSent(ctx, sub.ID, now); err != nil {
			return err
		}
	}
	if len(subs) > 0 {
		s.log.Info("Reminders sent", zap.Int("subscribers", len(subs)))
	}
	return nil
}

// ExpireSubscriptions deactivates subscribers past their end and stops their connections
func (s *Scheduler) ExpireSubscriptions(ctx context.Context) error {
	subs, err := s.deps.Store.ExpiredSubscribers(ctx, s.now())
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := s.log.With(zap.Int64("subscriber_id", sub.ID))
		if s.deps.Users != nil {
			if err := s.deps.Users.StopClient(ctx, sub.ID); err != nil {
				log.Warn("Failed to stop connection", zap.Error(err))
			}
		}
		if err := s.deps.Store.DeactivateSubscriber(ctx, sub.ID); err != nil {
			return err
		}
		if err := s.deps.Notifier.Send(ctx, sub.TelegramID, "⌛ Подписка закончилась, мониторинг остановлен. Продлить: /pay"); err != nil {
			log.Warn("Failed to notify expiry", zap.Error(err))
		}
	}
	if len(subs) == 0 {
		return nil
	}
	s.log.Info("Subscriptions expired", zap.Int("subscribers", len(subs)))

	if s.deps.Rebalancer != nil {
		if _, err := s.deps.Rebalancer.RedistributeGroups(ctx); err != nil {
			s.log.Warn("Failed to rebalance after expiry", zap.Error(err))
		}
	}
	return nil
}

// Purge removes observed messages and deliveries older than the retention window
func (s *Scheduler) Purge(ctx context.Context) error {
	res, err := s.deps.Store.PurgeBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		return err
	}
	if res.Messages > 0 || res.Deliveries > 0 {
		s.log.Info("Purged old messages", zap.Int64("messages", res.Messages), zap.Int64("deliveries", res.Deliveries))
	}
	return nil
}

// Adapt zap to the cron logger
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
