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

package monitor

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/distributor"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/storage"
)

// CreateWorker registers an operator account
func (m *Monitor) CreateWorker(ctx context.Context, w *model.Worker) error {
	if w.Name == "" {
		return errors.New("worker name is required")
	}
	w.IsActive = w.Session != ""
	if err := m.store.CreateWorker(ctx, w); err != nil {
		return err
	}
	m.log.Info("Worker created", zap.Int64("worker_id", w.ID), zap.String("name", w.Name))
	return nil
}

// StartWorker opens the worker's connection. A failure deactivates the
// worker, records the reason and moves its chats to the remaining workers.
func (m *Monitor) StartWorker(ctx context.Context, id int64) error {
	err := m.startWorker(ctx, id)
	if err == nil || errors.Is(err, ErrNoSession) || errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if rerr := m.redistribute(ctx); rerr != nil {
		m.log.Error("Failed to rebalance after worker failure", zap.Int64("worker_id", id), zap.Error(rerr))
	}
	return err
}

func (m *Monitor) startWorker(ctx context.Context, id int64) error {
	w, err := m.store.Worker(ctx, id)
	if err != nil {
		return err
	}
	if w.Session == "" {
		return ErrNoSession
	}

	log := m.log.With(zap.Int64("worker_id", w.ID), zap.String("worker", w.Name))
	if _, err := m.workers.StartClient(ctx, w.ID, w.Session); err != nil {
		log.Error("Failed to start worker", zap.Error(err))
		if rerr := m.store.RecordWorkerFailure(ctx, w.ID, err.Error()); rerr != nil {
			log.Error("Failed to record worker failure", zap.Error(rerr))
		}
		return err
	}
	if !w.IsActive {
		active := true
		if _, err := m.store.UpdateWorker(ctx, w.ID, model.WorkerUpdate{IsActive: &active}); err != nil {
			return err
		}
	}
	log.Info("Worker started")
	return m.store.MarkWorkerStarted(ctx, w.ID, m.now())
}

// StopWorker closes the worker's connection, leaving its assignments
func (m *Monitor) StopWorker(ctx context.Context, id int64) error {
	return m.workers.StopClient(ctx, id)
}

// UpdateWorker applies u, restarting or stopping the connection as the new
// state requires, and rebalances when capacity or activity changed.
func (m *Monitor) UpdateWorker(ctx context.Context, id int64, u model.WorkerUpdate) (*model.Worker, error) {
	w, err := m.store.UpdateWorker(ctx, id, u)
	if err != nil {
		return nil, err
	}

	restart := u.Session != nil || (u.IsActive != nil && !*u.IsActive)
	if restart && m.workers.IsRunning(w.ID) {
		if err := m.workers.StopClient(ctx, w.ID); err != nil {
			return w, err
		}
	}
	if w.IsActive && w.Session != "" && !m.workers.IsRunning(w.ID) {
		if err := m.StartWorker(ctx, w.ID); err != nil {
			return w, err
		}
	}

	if u.IsActive != nil || u.MaxGroups != nil {
		if err := m.redistribute(ctx); err != nil {
			return w, err
		}
	}
	return m.store.Worker(ctx, w.ID)
}

// DeleteWorker stops and removes a worker, then moves its chats elsewhere
func (m *Monitor) DeleteWorker(ctx context.Context, id int64) error {
	if err := m.workers.StopClient(ctx, id); err != nil {
		return err
	}
	if err := m.store.DeleteWorker(ctx, id); err != nil {
		return err
	}
	m.log.Info("Worker deleted", zap.Int64("worker_id", id))
	return m.redistribute(ctx)
}

// Rebalance, tolerating a pool with no active worker
func (m *Monitor) redistribute(ctx context.Context) error {
	if m.dist == nil {
		return nil
	}
	if _, err := m.dist.RedistributeGroups(ctx); err != nil && !errors.Is(err, distributor.ErrNoCapacity) {
		return err
	}
	return nil
}
