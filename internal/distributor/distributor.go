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

package distributor

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/storage"
)

// ErrNoCapacity is returned when no active worker can take another chat
var ErrNoCapacity = errors.New("no worker with spare capacity")

// Store is the persistence the distributor needs
type Store interface {
	DemandedChats(ctx context.Context, now time.Time) ([]model.Chat, error)
	Workers(ctx context.Context) ([]model.Worker, error)
	ActiveWorkers(ctx context.Context) ([]model.Worker, error)
	Worker(ctx context.Context, id int64) (*model.Worker, error)
	ReplaceAssignments(ctx context.Context, assignments []model.GroupAssignment) error
	Assignment(ctx context.Context, chatID int64) (*model.GroupAssignment, error)
	CreateAssignment(ctx context.Context, a *model.GroupAssignment) (bool, error)
	DeleteAssignment(ctx context.Context, chatID int64) error
	AssignmentCounts(ctx context.Context) (map[int64]int, error)
}

// Refresher reloads worker watch-lists
type Refresher interface {
	RefreshGroups(ctx context.Context, workerID int64) error
	RefreshAll(ctx context.Context) error
}

// Distributor spreads demanded chats across worker accounts
type Distributor struct {
	store   Store
	workers Refresher
	log     *zap.Logger
	now     func() time.Time
}

func New(store Store, workers Refresher, log *zap.Logger) *Distributor {
	return &Distributor{
		store:   store,
		workers: workers,
		log:     log.Named("distributor"),
		now:     time.Now,
	}
}

// Summarize one rebalance
type Result struct {
	Chats   int `json:"chats"`
	Workers int `json:"workers"`
}

// RedistributeGroups rebuilds every assignment round-robin over the active
// workers in name order, then refreshes every worker watch-list.
func (d *Distributor) RedistributeGroups(ctx context.Context) (Result, error) {
	workers, err := d.store.ActiveWorkers(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(workers) == 0 {
		d.log.Warn("No active workers for redistribution")
		return Result{}, ErrNoCapacity
	}

	chats, err := d.store.DemandedChats(ctx, d.now())
	if err != nil {
		return Result{}, err
	}

	assignments := make([]model.GroupAssignment, 0, len(chats))
	for i, c := range chats {
		assignments = append(assignments, model.GroupAssignment{
			ChatID:   c.ID,
			WorkerID: workers[i%len(workers)].ID,
			Name:     c.Name,
		})
	}
	if err := d.store.ReplaceAssignments(ctx, assignments); err != nil {
		return Result{}, err
	}

	if err := d.workers.RefreshAll(ctx); err != nil {
		d.log.Warn("Failed to refresh some workers", zap.Error(err))
	}

	d.log.Info("Groups redistributed", zap.Int("chats", len(chats)), zap.Int("workers", len(workers)))
	return Result{Chats: len(chats), Workers: len(workers)}, nil
}

// AssignNewGroup places one chat on the least-loaded worker with room.
// An already assigned chat keeps its worker while that worker is active.
func (d *Distributor) AssignNewGroup(ctx context.Context, chatID int64, name string) (*model.Worker, error) {
	w, err := d.currentWorker(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if w != nil {
		return w, nil
	}

	workers, err := d.store.ActiveWorkers(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := d.store.AssignmentCounts(ctx)
	if err != nil {
		return nil, err
	}

	best := leastLoaded(workers, counts)
	if best == nil {
		d.log.Error("No available workers for new group", zap.Int64("chat_id", chatID))
		return nil, ErrNoCapacity
	}

	created, err := d.store.CreateAssignment(ctx, &model.GroupAssignment{ChatID: chatID, WorkerID: best.ID, Name: name})
	if err != nil {
		return nil, err
	}
	if !created {
		// Assigned concurrently
		a, err := d.store.Assignment(ctx, chatID)
		if err != nil {
			return nil, err
		}
		return d.store.Worker(ctx, a.WorkerID)
	}

	if err := d.workers.RefreshGroups(ctx, best.ID); err != nil {
		d.log.Warn("Failed to refresh worker", zap.Int64("worker_id", best.ID), zap.Error(err))
	}
	return best, nil
}

// Return the active worker holding chatID, dropping an assignment left on an
// inactive or deleted worker. A nil worker means the chat is unplaced.
func (d *Distributor) currentWorker(ctx context.Context, chatID int64) (*model.Worker, error) {
	a, err := d.store.Assignment(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	w, err := d.store.Worker(ctx, a.WorkerID)
	switch {
	case err == nil && w.IsActive:
		return w, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	d.log.Info("Releasing chat held by inactive worker",
		zap.Int64("chat_id", chatID),
		zap.Int64("worker_id", a.WorkerID),
	)
	if err := d.store.DeleteAssignment(ctx, chatID); err != nil {
		return nil, err
	}
	return nil, nil
}

// ReleaseGroups drops the assignments of the given chats that no eligible
// subscriber still wants, refreshing the workers that held them.
func (d *Distributor) ReleaseGroups(ctx context.Context, chatIDs []int64) (int, error) {
	if len(chatIDs) == 0 {
		return 0, nil
	}
	demanded, err := d.store.DemandedChats(ctx, d.now())
	if err != nil {
		return 0, err
	}
	wanted := make(map[int64]bool, len(demanded))
	for _, c := range demanded {
		wanted[c.ID] = true
	}

	released := 0
	touched := map[int64]bool{}
	for _, id := range chatIDs {
		if wanted[id] {
			continue
		}
		a, err := d.store.Assignment(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return released, err
		}
		if err := d.store.DeleteAssignment(ctx, id); err != nil {
			return released, err
		}
		touched[a.WorkerID] = true
		released++
	}

	for workerID := range touched {
		if err := d.workers.RefreshGroups(ctx, workerID); err != nil {
			d.log.Warn("Failed to refresh worker", zap.Int64("worker_id", workerID), zap.Error(err))
		}
	}
	if released > 0 {
		d.log.Info("Released unwatched groups", zap.Int("chats", released))
	}
	return released, nil
}

// Keep the first worker strictly below the best count and below its own capacity
func leastLoaded(workers []model.Worker, counts map[int64]int) *model.Worker {
	var (
		best      *model.Worker
		bestCount int
	)
	for i := range workers {
		w := &workers[i]
		n := counts[w.ID]
		if n >= w.MaxGroups {
			continue
		}
		if best == nil || n < bestCount {
			best, bestCount = w, n
		}
	}
	return best
}

// Describe one worker's load
type WorkerStats struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	IsActive    bool   `json:"is_active"`
	GroupsCount int    `json:"groups_count"`
	MaxGroups   int    `json:"max_groups"`
	LastError   string `json:"last_error,omitempty"`
}

// Describe the whole distribution
type Stats struct {
	Workers        []WorkerStats `json:"workers"`
	TotalWorkers   int           `json:"total_workers"`
	ActiveWorkers  int           `json:"active_workers"`
	AssignedGroups int           `json:"assigned_groups"`
	TotalCapacity  int           `json:"total_capacity"`
}

// GetStats reports per-worker load and totals
func (d *Distributor) GetStats(ctx context.Context) (Stats, error) {
	workers, err := d.store.Workers(ctx)
	if err != nil {
		return Stats{}, err
	}
	counts, err := d.store.AssignmentCounts(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Workers: make([]WorkerStats, 0, len(workers)), TotalWorkers: len(workers)}
	for _, w := range workers {
		n := counts[w.ID]
		stats.Workers = append(stats.Workers, WorkerStats{
			ID:          w.ID,
			Name:        w.Name,
			IsActive:    w.IsActive,
			GroupsCount: n,
			MaxGroups:   w.MaxGroups,
			LastError:   w.LastError,
		})
		stats.AssignedGroups += n
		if w.IsActive {
			stats.ActiveWorkers++
			stats.TotalCapacity += w.MaxGroups
		}
	}
	return stats, nil
}
