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

package pool

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/telegram"
)

// Define the live connection a pool manages
type Conn interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	RefreshWatchTargets(ctx context.Context) error
	Reply(ctx context.Context, chatID int64, messageID int, text string) error
	State() telegram.State
}

// Build a stopped connection for one owner
type Factory func(ownerID int64, credential string) Conn

// Receive the live connection count
type Gauge interface {
	Set(float64)
}

// Pool is a keyed registry of live connections, one per owner
type Pool struct {
	name    string
	factory Factory
	log     *zap.Logger
	gauge   Gauge

	// lifecycle serializes starts and stops; mu guards clients only so
	// lookups never wait on a handshake.
	lifecycle sync.Mutex
	mu        sync.RWMutex
	clients   map[int64]Conn
}

// Create an empty pool
func New(name string, factory Factory, log *zap.Logger, gauge Gauge) *Pool {
	return &Pool{
		name:    name,
		factory: factory,
		log:     log.Named(name),
		gauge:   gauge,
		clients: make(map[int64]Conn),
	}
}

// StartClient starts a connection for ownerID unless one is already running.
// A failed start leaves nothing registered so the next call retries cleanly.
func (p *Pool) StartClient(ctx context.Context, ownerID int64, credential string) (bool, error) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if c, ok := p.Get(ownerID); ok {
		if c.State() == telegram.StateRunning {
			return true, nil
		}
		// Lost connection, drop it and start over
		p.remove(ownerID)
		_ = c.Stop(ctx)
	}

	c := p.factory(ownerID, credential)
	if err := c.Start(ctx); err != nil {
		p.log.Warn("Failed to start client", zap.Int64("owner_id", ownerID), zap.Error(err))
		return false, err
	}

	p.mu.Lock()
	p.clients[ownerID] = c
	n := len(p.clients)
	p.updateGauge()
	p.mu.Unlock()

	p.log.Info("Client started", zap.Int64("owner_id", ownerID), zap.Int("clients", n))
	return true, nil
}

// StopClient stops and removes the owner's connection. Absent owners are a no-op.
func (p *Pool) StopClient(ctx context.Context, ownerID int64) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	c, ok := p.remove(ownerID)
	if !ok {
		return nil
	}
	if err := c.Stop(ctx); err != nil {
		return err
	}
	p.log.Info("Client stopped", zap.Int64("owner_id", ownerID))
	return nil
}

// StopAll drains the pool
func (p *Pool) StopAll(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[int64]Conn)
	p.updateGauge()
	p.mu.Unlock()

	var (
		mu   sync.Mutex
		errs error
		wg   sync.WaitGroup
	)
	for id, c := range clients {
		wg.Go(func() {
			if err := c.Stop(ctx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				p.log.Warn("Failed to stop client", zap.Int64("owner_id", id), zap.Error(err))
			}
		})
	}
	wg.Wait()
	return errs
}

// IsRunning reports whether ownerID has a live connection
func (p *Pool) IsRunning(ownerID int64) bool {
	c, ok := p.Get(ownerID)
	return ok && c.State() == telegram.StateRunning
}

// Get returns the registered connection of ownerID
func (p *Pool) Get(ownerID int64) (Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[ownerID]
	return c, ok
}

// RefreshGroups reloads the watch-list of ownerID's connection if it has one
func (p *Pool) RefreshGroups(ctx context.Context, ownerID int64) error {
	c, ok := p.Get(ownerID)
	if !ok {
		return nil
	}
	return c.RefreshWatchTargets(ctx)
}

// RefreshAll reloads every registered watch-list
func (p *Pool) RefreshAll(ctx context.Context) error {
	var errs error
	for _, id := range p.Owners() {
		errs = multierr.Append(errs, p.RefreshGroups(ctx, id))
	}
	return errs
}

// Owners lists registered owners in ascending order
func (p *Pool) Owners() []int64 {
	p.mu.RLock()
	ids := make([]int64, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// Unregister ownerID, returning the connection it had
func (p *Pool) remove(ownerID int64) (Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients[ownerID]
	if ok {
		delete(p.clients, ownerID)
		p.updateGauge()
	}
	return c, ok
}

// Call with p.mu held for writing
func (p *Pool) updateGauge() {
	if p.gauge != nil {
		p.gauge.Set(float64(len(p.clients)))
	}
}
