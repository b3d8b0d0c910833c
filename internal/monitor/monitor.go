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

// Package monitor is the control surface behind the bot commands and the
// operator API: it turns monitoring on and off, syncs and enables groups,
// manages filters and workers, and restores connections after a restart.
package monitor

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/distributor"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/pool"
	"github.com/h3nc4/OrderScout/internal/storage"
	"github.com/h3nc4/OrderScout/internal/telegram"
)

var (
	ErrNoSession      = errors.New("no authorized session, log in first")
	ErrNoSubscription = errors.New("subscription is not active")
	ErrBanned         = errors.New("subscriber is banned")
	ErrNoKeywords     = errors.New("add at least one keyword first")
	ErrNoGroups       = errors.New("enable at least one group first")
)

// Store is the persistence the monitor needs
type Store interface {
	Subscriber(ctx context.Context, id int64) (*model.Subscriber, error)
	SetMonitoring(ctx context.Context, id int64, enabled bool) error
	SetSubscriberError(ctx context.Context, id int64, msg string) error
	ExpireSession(ctx context.Context, id int64, msg string) error
	MonitoringSubscribers(ctx context.Context, now time.Time) ([]model.Subscriber, error)

	SyncWatchTargets(ctx context.Context, subscriberID int64, chats []model.Chat) (storage.SyncResult, error)
	WatchTargets(ctx context.Context, subscriberID int64) ([]model.WatchTarget, error)
	EnabledChatIDs(ctx context.Context, subscriberID int64) ([]int64, error)
	SetWatchTargetEnabled(ctx context.Context, subscriberID, chatID int64, enabled bool) error

	AddKeyword(ctx context.Context, subscriberID int64, word string) (bool, error)
	RemoveKeyword(ctx context.Context, subscriberID int64, word string) (bool, error)
	AddCity(ctx context.Context, subscriberID int64, name string, variations []string) (bool, error)
	RemoveCity(ctx context.Context, subscriberID int64, name string) (bool, error)

	CreateWorker(ctx context.Context, w *model.Worker) error
	Worker(ctx context.Context, id int64) (*model.Worker, error)
	ActiveWorkers(ctx context.Context) ([]model.Worker, error)
	UpdateWorker(ctx context.Context, id int64, u model.WorkerUpdate) (*model.Worker, error)
	DeleteWorker(ctx context.Context, id int64) error
	RecordWorkerFailure(ctx context.Context, id int64, msg string) error
	MarkWorkerStarted(ctx context.Context, id int64, now time.Time) error
}

// Pool is the connection registry of one kind of owner
type Pool interface {
	StartClient(ctx context.Context, ownerID int64, credential string) (bool, error)
	StopClient(ctx context.Context, ownerID int64) error
	IsRunning(ownerID int64) bool
	Get(ownerID int64) (pool.Conn, bool)
	RefreshGroups(ctx context.Context, ownerID int64) error
}

// Distributor places chats on workers in shared mode
type Distributor interface {
	RedistributeGroups(ctx context.Context) (distributor.Result, error)
	AssignNewGroup(ctx context.Context, chatID int64, name string) (*model.Worker, error)
	ReleaseGroups(ctx context.Context, chatIDs []int64) (int, error)
}

// ClientFactory opens an on-demand client from a session credential
type ClientFactory func(credential string) telegram.ScoutClient

type groupLister interface {
	ListGroups(ctx context.Context) ([]model.Chat, error)
}

type Monitor struct {
	mode      config.Mode
	threshold float64
	store     Store
	users     Pool
	workers   Pool
	dist      Distributor
	clients   ClientFactory
	log       *zap.Logger
	now       func() time.Time
}

// New creates a monitor. In user mode workers and dist may be nil.
func New(cfg *config.Config, store Store, users, workers Pool, dist Distributor, clients ClientFactory, log *zap.Logger) *Monitor {
	return &Monitor{
		mode:      cfg.Mode,
		threshold: cfg.Monitoring.FuzzyThreshold,
		store:     store,
		users:     users,
		workers:   workers,
		dist:      dist,
		clients:   clients,
		log:       log.Named("monitor"),
		now:       time.Now,
	}
}

// EnableResult reports chats that found no worker with spare capacity
type EnableResult struct {
	Unassigned []int64
}

// EnableMonitoring validates the subscriber and starts watching its enabled groups
func (m *Monitor) EnableMonitoring(ctx context.Context, subscriberID int64) (EnableResult, error) {
	sub, err := m.store.Subscriber(ctx, subscriberID)
	if err != nil {
		return EnableResult{}, err
	}
	chats, err := m.ready(ctx, sub)
	if err != nil {
		return EnableResult{}, err
	}

	if err := m.store.SetMonitoring(ctx, sub.ID, true); err != nil {
		return EnableResult{}, err
	}

	if m.mode == config.ModeUser {
		if err := m.startSubscriber(ctx, sub); err != nil {
			if rerr := m.store.SetMonitoring(ctx, sub.ID, false); rerr != nil {
				m.log.Error("Failed to roll back monitoring flag", zap.Int64("subscriber_id", sub.ID), zap.Error(rerr))
			}
			return EnableResult{}, err
		}
		return EnableResult{}, nil
	}

	return m.assign(ctx, sub.ID, chats)
}

// Check the preconditions of monitoring and return the enabled chats
func (m *Monitor) ready(ctx context.Context, sub *model.Subscriber) ([]int64, error) {
	switch {
	case sub.IsBanned:
		return nil, ErrBanned
	case !sub.HasActiveSubscription(m.now()):
		return nil, ErrNoSubscription
	case m.mode == config.ModeUser && sub.Session == "":
		return nil, ErrNoSession
	case len(sub.Keywords) == 0:
		return nil, ErrNoKeywords
	}
	chats, err := m.store.EnabledChatIDs(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, ErrNoGroups
	}
	return chats, nil
}

// DisableMonitoring stops watching for the subscriber
func (m *Monitor) DisableMonitoring(ctx context.Context, subscriberID int64) error {
	if err := m.store.SetMonitoring(ctx, subscriberID, false); err != nil {
		return err
	}
	if m.mode == config.ModeUser {
		return m.users.StopClient(ctx, subscriberID)
	}
	chats, err := m.store.EnabledChatIDs(ctx, subscriberID)
	if err != nil {
		return err
	}
	return m.release(ctx, chats...)
}

// Free worker capacity held by chats nobody watches anymore
func (m *Monitor) release(ctx context.Context, chats ...int64) error {
	if m.dist == nil {
		return nil
	}
	_, err := m.dist.ReleaseGroups(ctx, chats)
	return err
}

// Start the subscriber's own connection, recording why it failed
func (m *Monitor) startSubscriber(ctx context.Context, sub *model.Subscriber) error {
	log := m.log.With(zap.Int64("subscriber_id", sub.ID))
	if _, err := m.users.StartClient(ctx, sub.ID, sub.Session); err != nil {
		if telegram.IsAuthError(err) {
			log.Warn("Session is no longer valid", zap.Error(err))
			if xerr := m.store.ExpireSession(ctx, sub.ID, err.Error()); xerr != nil {
				log.Error("Failed to expire session", zap.Error(xerr))
			}
			return ErrNoSession
		}
		log.Error("Failed to start connection", zap.Error(err))
		if serr := m.store.SetSubscriberError(ctx, sub.ID, err.Error()); serr != nil {
			log.Error("Failed to record connection error", zap.Error(serr))
		}
		return err
	}
	return m.store.SetSubscriberError(ctx, sub.ID, "")
}

// Place each chat on a worker, collecting chats no worker could take
func (m *Monitor) assign(ctx context.Context, subscriberID int64, chats []int64) (EnableResult, error) {
	var res EnableResult
	if m.dist == nil {
		return res, nil
	}
	names := map[int64]string{}
	targets, err := m.store.WatchTargets(ctx, subscriberID)
	if err != nil {
		return res, err
	}
	for _, t := range targets {
		names[t.ChatID] = t.Name
	}
	for _, id := range chats {
		if _, err := m.dist.AssignNewGroup(ctx, id, names[id]); err != nil {
			if errors.Is(err, distributor.ErrNoCapacity) {
				res.Unassigned = append(res.Unassigned, id)
				continue
			}
			return res, err
		}
	}
	if len(res.Unassigned) > 0 {
		m.log.Warn("No worker capacity for chats",
			zap.Int64("subscriber_id", subscriberID),
			zap.Int64s("chats", res.Unassigned),
		)
	}
	return res, nil
}

// React to a change of the subscriber's enabled targets
func (m *Monitor) targetsChanged(ctx context.Context, subscriberID int64) error {
	if m.mode == config.ModeUser {
		return m.users.RefreshGroups(ctx, subscriberID)
	}
	sub, err := m.store.Subscriber(ctx, subscriberID)
	if err != nil {
		return err
	}
	if !sub.MonitoringEnabled {
		return nil
	}
	chats, err := m.store.EnabledChatIDs(ctx, subscriberID)
	if err != nil {
		return err
	}
	_, err = m.assign(ctx, subscriberID, chats)
	return err
}

// Recover restarts every connection a previous run left monitoring
func (m *Monitor) Recover(ctx context.Context) error {
	if m.mode == config.ModeShared {
		return m.recoverWorkers(ctx)
	}

	subs, err := m.store.MonitoringSubscribers(ctx, m.now())
	if err != nil {
		return err
	}
	started := 0
	for i := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.startSubscriber(ctx, &subs[i]); err != nil {
			continue
		}
		started++
	}
	m.log.Info("Recovered subscriber connections", zap.Int("started", started), zap.Int("total", len(subs)))
	return nil
}

func (m *Monitor) recoverWorkers(ctx context.Context) error {
	workers, err := m.store.ActiveWorkers(ctx)
	if err != nil {
		return err
	}
	started := 0
	for _, w := range workers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.startWorker(ctx, w.ID); err != nil {
			continue
		}
		started++
	}
	m.log.Info("Recovered worker connections", zap.Int("started", started), zap.Int("total", len(workers)))

	return m.redistribute(ctx)
}
