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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/telegram"
)

// Mock connection recording lifecycle calls
type MockConn struct {
	mu       sync.Mutex
	state    telegram.State
	startErr error
	stopErr  error
	starts   int
	stops    int
	refresh  int
	replies  []string
}

func (m *MockConn) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return m.startErr
	}
	m.state = telegram.StateRunning
	return nil
}

func (m *MockConn) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.state = telegram.StateStopped
	return m.stopErr
}

func (m *MockConn) RefreshWatchTargets(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh++
	return nil
}

func (m *MockConn) Reply(ctx context.Context, chatID int64, messageID int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, text)
	return nil
}

func (m *MockConn) State() telegram.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

type mockGauge struct {
	mu    sync.Mutex
	value float64
}

func (g *mockGauge) Set(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// Factory handing out fresh mocks and remembering them
type factory struct {
	mu       sync.Mutex
	made     []*MockConn
	startErr error
}

func (f *factory) build(ownerID int64, credential string) Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &MockConn{startErr: f.startErr}
	f.made = append(f.made, c)
	return c
}

func (f *factory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.made)
}

func TestStartClient_Idempotent(t *testing.T) {
	f := &factory{}
	gauge := &mockGauge{}
	p := New("users", f.build, zap.NewNop(), gauge)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := p.StartClient(ctx, 1, "session")
		if err != nil || !ok {
			t.Fatalf("start %d: ok=%v err=%v", i, ok, err)
		}
	}
	if f.count() != 1 {
		t.Errorf("expected one live connection, factory built %d", f.count())
	}
	if !p.IsRunning(1) || p.Count() != 1 || gauge.value != 1 {
		t.Errorf("unexpected pool state: running=%v count=%d gauge=%v", p.IsRunning(1), p.Count(), gauge.value)
	}
}

func TestStartClient_Concurrent(t *testing.T) {
	f := &factory{}
	p := New("users", f.build, zap.NewNop(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Go(func() {
			if ok, err := p.StartClient(context.Background(), 1, "session"); !ok || err != nil {
				t.Errorf("start failed: %v", err)
			}
		})
	}
	wg.Wait()

	if f.count() != 1 {
		t.Errorf("concurrent starts built %d connections", f.count())
	}
}

func TestStartClient_Failure(t *testing.T) {
	f := &factory{startErr: telegram.ErrUnauthorized}
	p := New("users", f.build, zap.NewNop(), nil)
	ctx := context.Background()

	ok, err := p.StartClient(ctx, 1, "bad")
	if ok || !errors.Is(err, telegram.ErrUnauthorized) {
		t.Fatalf("expected auth failure, got ok=%v err=%v", ok, err)
	}
	if p.IsRunning(1) || p.Count() != 0 {
		t.Error("failed connection must not be registered")
	}

	f.mu.Lock()
	f.startErr = nil
	f.mu.Unlock()
	if ok, err := p.StartClient(ctx, 1, "good"); !ok || err != nil {
		t.Errorf("retry after failure: ok=%v err=%v", ok, err)
	}
}

func TestStartClient_ReplacesLostConnection(t *testing.T) {
	f := &factory{}
	p := New("workers", f.build, zap.NewNop(), nil)
	ctx := context.Background()

	_, _ = p.StartClient(ctx, 1, "s")
	lost := f.made[0]
	lost.mu.Lock()
	lost.state = telegram.StateStopped
	lost.mu.Unlock()

	if p.IsRunning(1) {
		t.Fatal("lost connection must not report running")
	}
	if ok, _ := p.StartClient(ctx, 1, "s"); !ok {
		t.Fatal("expected restart")
	}
	if f.count() != 2 || !p.IsRunning(1) {
		t.Errorf("expected a fresh connection, built %d", f.count())
	}
}

func TestStopClient(t *testing.T) {
	f := &factory{}
	p := New("users", f.build, zap.NewNop(), nil)
	ctx := context.Background()

	if err := p.StopClient(ctx, 1); err != nil {
		t.Errorf("stop on absent owner: %v", err)
	}

	_, _ = p.StartClient(ctx, 1, "s")
	if err := p.StopClient(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.StopClient(ctx, 1); err != nil {
		t.Errorf("second stop: %v", err)
	}
	if p.IsRunning(1) || f.made[0].stops != 1 {
		t.Errorf("expected exactly one stop, got %d", f.made[0].stops)
	}
}

func TestStopAll(t *testing.T) {
	f := &factory{}
	p := New("workers", f.build, zap.NewNop(), nil)
	ctx := context.Background()

	for _, id := range []int64{3, 1, 2} {
		_, _ = p.StartClient(ctx, id, "s")
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, p.Owners()); diff != "" {
		t.Errorf("owners mismatch (-want +got):\n%s", diff)
	}

	f.made[1].stopErr = errors.New("boom")
	err := p.StopAll(ctx)
	if err == nil {
		t.Error("expected combined stop error")
	}
	if p.Count() != 0 {
		t.Errorf("pool not drained: %d", p.Count())
	}
	for i, c := range f.made {
		if c.stops != 1 {
			t.Errorf("connection %d stopped %d times", i, c.stops)
		}
	}
}

func TestRefresh(t *testing.T) {
	f := &factory{}
	p := New("workers", f.build, zap.NewNop(), nil)
	ctx := context.Background()

	if err := p.RefreshGroups(ctx, 9); err != nil {
		t.Errorf("refresh of absent owner: %v", err)
	}

	_, _ = p.StartClient(ctx, 1, "s")
	_, _ = p.StartClient(ctx, 2, "s")
	if err := p.RefreshGroups(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.RefreshAll(ctx); err != nil {
		t.Fatal(err)
	}
	if f.made[0].refresh != 2 || f.made[1].refresh != 1 {
		t.Errorf("unexpected refresh counts %d %d", f.made[0].refresh, f.made[1].refresh)
	}
}

// Connection whose Start waits until released
type gatedConn struct {
	MockConn
	started chan struct{}
	release chan struct{}
}

func (g *gatedConn) Start(ctx context.Context) error {
	close(g.started)
	<-g.release
	return g.MockConn.Start(ctx)
}

func TestLookupDuringSlowStart(t *testing.T) {
	slow := &gatedConn{started: make(chan struct{}), release: make(chan struct{})}
	fast := &MockConn{}
	p := New("users", func(ownerID int64, credential string) Conn {
		if ownerID == 2 {
			return slow
		}
		return fast
	}, zap.NewNop(), nil)
	ctx := context.Background()

	if _, err := p.StartClient(ctx, 1, "s"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.StartClient(ctx, 2, "s")
		done <- err
	}()
	<-slow.started

	lookups := make(chan struct{})
	go func() {
		defer close(lookups)
		if !p.IsRunning(1) {
			t.Error("running client not reported during another start")
		}
		if err := p.RefreshGroups(ctx, 1); err != nil {
			t.Errorf("refresh: %v", err)
		}
		if _, ok := p.Get(2); ok {
			t.Error("starting client registered before its handshake finished")
		}
	}()

	select {
	case <-lookups:
	case <-time.After(2 * time.Second):
		t.Fatal("lookups blocked by a pending start")
	}

	close(slow.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if !p.IsRunning(2) {
		t.Error("slow client not registered after start")
	}
}
