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
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/distributor"
	"github.com/h3nc4/OrderScout/internal/httpapi"
	"github.com/h3nc4/OrderScout/internal/storage"
	"github.com/h3nc4/OrderScout/internal/telegram"
)

func TestRootCommand(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	if diff := cmp.Diff([]string{"login", "redistribute", "serve"}, names); diff != "" {
		t.Errorf("subcommands mismatch (-want +got):\n%s", diff)
	}
	if root.RunE == nil {
		t.Error("root command should serve by default")
	}
}

func TestLoginRequiresTarget(t *testing.T) {
	for _, args := range [][]string{
		{"login"},
		{"login", "--worker", "w1", "--subscriber", "42"},
	} {
		root := newRootCommand()
		root.SetArgs(args)
		root.SetOut(&bytes.Buffer{})
		if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "exactly one") {
			t.Errorf("%v: err = %v", args, err)
		}
	}
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveSession_Worker(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	var out bytes.Buffer

	f := loginFlags{worker: "pool-1", maxGroups: 20, phone: "+7000"}
	res := &telegram.LoginResult{Credential: "cred", UserID: 9, Username: "pooler"}
	if err := saveSession(ctx, s, config.Default(), f, res, &out); err != nil {
		t.Fatal(err)
	}

	workers, err := s.Workers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(workers) != 1 {
		t.Fatalf("got %d workers", len(workers))
	}
	w := workers[0]
	if w.Name != "pool-1" || w.Session != "cred" || w.MaxGroups != 20 || !w.IsActive {
		t.Errorf("worker = %+v", w)
	}
	if !strings.Contains(out.String(), "pool-1") {
		t.Errorf("output = %q", out.String())
	}
}

func TestSaveSession_Subscriber(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	f := loginFlags{subscriber: 42}
	res := &telegram.LoginResult{Credential: "cred", UserID: 42, Username: "owner"}
	if err := saveSession(ctx, s, config.Default(), f, res, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	sub, err := s.SubscriberByTelegramID(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Session != "cred" {
		t.Errorf("session = %q", sub.Session)
	}

	// Logging in with a different account is refused
	res.UserID = 7
	if err := saveSession(ctx, s, config.Default(), f, res, &bytes.Buffer{}); err == nil {
		t.Error("expected mismatch error")
	}
}

type mockDistribution struct{ calls int }

func (m *mockDistribution) GetStats(ctx context.Context) (distributor.Stats, error) {
	return distributor.Stats{}, nil
}

func (m *mockDistribution) RedistributeGroups(ctx context.Context) (distributor.Result, error) {
	m.calls++
	return distributor.Result{Chats: 4, Workers: 2}, nil
}

func TestRequestRedistribute(t *testing.T) {
	dist := &mockDistribution{}
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Deps{Distribution: dist, AdminToken: "secret"}, zap.NewNop()))
	defer srv.Close()
	ctx := context.Background()

	res, err := requestRedistribute(ctx, srv.Client(), srv.URL+"/", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(distributor.Result{Chats: 4, Workers: 2}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	t.Setenv("ADMIN_TOKEN", "")
	if _, err := requestRedistribute(ctx, srv.Client(), srv.URL, "wrong"); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v", err)
	}
	if dist.calls != 1 {
		t.Errorf("calls = %d", dist.calls)
	}

	if _, err := requestRedistribute(ctx, &http.Client{}, "http://127.0.0.1:1", "secret"); err == nil {
		t.Error("expected connection error")
	}
}
