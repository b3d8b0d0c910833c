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

package scout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/notifier"
	"github.com/h3nc4/OrderScout/internal/storage"
)

type MockNotifier struct {
	mu         sync.Mutex
	Alerts     []notifier.Alert
	NotifyChan chan notifier.Alert
	Err        error
}

func (m *MockNotifier) Send(ctx context.Context, recipientID int64, text string) error {
	return m.SendAlert(ctx, notifier.Alert{RecipientID: recipientID, Text: text})
}

func (m *MockNotifier) SendAlert(ctx context.Context, alert notifier.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, alert)
	if m.NotifyChan != nil {
		m.NotifyChan <- alert
	}
	return m.Err
}

func (m *MockNotifier) Sent() []notifier.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Return copy
	return append([]notifier.Alert(nil), m.Alerts...)
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Create a paid, monitoring subscriber watching chatID with the given filters
func addSubscriber(t *testing.T, s *storage.Store, telegramID, chatID int64, response string, keywords []string, cities map[string][]string) *model.Subscriber {
	t.Helper()
	ctx := context.Background()
	sub, err := s.EnsureSubscriber(ctx, telegramID, "user", "")
	if err != nil {
		t.Fatal(err)
	}
	if response != "" {
		if err := s.SetResponseText(ctx, sub.ID, response); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.ExtendSubscription(ctx, sub.ID, 30, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SyncWatchTargets(ctx, sub.ID, []model.Chat{{ID: chatID, Name: "Заказы"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetWatchTargetEnabled(ctx, sub.ID, chatID, true); err != nil {
		t.Fatal(err)
	}
	for _, k := range keywords {
		if _, err := s.AddKeyword(ctx, sub.ID, k); err != nil {
			t.Fatal(err)
		}
	}
	for name, variations := range cities {
		if _, err := s.AddCity(ctx, sub.ID, name, variations); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetMonitoring(ctx, sub.ID, true); err != nil {
		t.Fatal(err)
	}
	return sub
}

func newScout(mode config.Mode, store Store, n notifier.Notifier) *Scout {
	cfg := config.Default()
	cfg.Mode = mode
	cfg.Monitoring.DispatchShards = 2
	cfg.Monitoring.NotifyConcurrency = 2
	return New(cfg, store, n, zap.NewNop(), nil)
}

// Process synchronously and wait for in-flight notifications
func (s *Scout) processAndWait(ctx context.Context, msg model.Message) {
	s.process(ctx, msg)
	s.inflight.Wait()
}

func TestScout_PerSubscriberFilters(t *testing.T) {
	const chatID = -1001234567890
	store := newStore(t)
	taxi := addSubscriber(t, store, 100, chatID, "", []string{"такси"}, nil)
	moscow := addSubscriber(t, store, 200, chatID, "", []string{"такси"}, map[string][]string{"Москва": {"москва", "мск"}})
	addSubscriber(t, store, 300, chatID, "", []string{"доставка"}, nil)

	n := &MockNotifier{}
	s := newScout(config.ModeShared, store, n)

	tests := []struct {
		name       string
		text       string
		recipients []int64
	}{
		{"keyword only", "Нужно такси до вокзала", []int64{taxi.TelegramID}},
		{"keyword and city", "Такси из мск в аэропорт", []int64{taxi.TelegramID, moscow.TelegramID}},
		{"no keyword", "Продам диван", nil},
		{"substring is not a word", "таксист свободен", nil},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(n.Sent())
			s.processAndWait(context.Background(), model.Message{
				SourceKind: model.SourceWorker,
				SourceID:   1,
				ChatID:     chatID,
				ChatTitle:  "Заказы",
				ID:         i + 1,
				Text:       tt.text,
			})
			sent := n.Sent()[before:]
			got := map[int64]bool{}
			for _, a := range sent {
				got[a.RecipientID] = true
			}
			if len(sent) != len(tt.recipients) {
				t.Fatalf("sent %d alerts, want %d", len(sent), len(tt.recipients))
			}
			for _, id := range tt.recipients {
				if !got[id] {
					t.Errorf("recipient %d got no alert", id)
				}
			}
		})
	}
}

func TestScout_AlertContent(t *testing.T) {
	const chatID = -1001234567890
	store := newStore(t)
	addSubscriber(t, store, 100, chatID, "Готов, пишите", []string{"такси"}, map[string][]string{"Казань": nil})

	n := &MockNotifier{}
	s := newScout(config.ModeShared, store, n)
	s.processAndWait(context.Background(), model.Message{
		SourceKind: model.SourceWorker,
		ChatID:     chatID,
		ChatTitle:  "Заказы",
		ID:         42,
		Text:       "Такси Казань вечером",
	})

	sent := n.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d alerts, want 1", len(sent))
	}
	a := sent[0]
	if a.Link != "https://t.me/c/1234567890/42" {
		t.Errorf("Link = %q", a.Link)
	}
	if a.OrderID == 0 {
		t.Error("expected order attached to alert")
	}
	for _, want := range []string{"Заказы", "такси", "Казань"} {
		if !strings.Contains(a.Text, want) {
			t.Errorf("alert text %q missing %q", a.Text, want)
		}
	}

	order, err := store.Order(context.Background(), a.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if order.ChatID != chatID || order.MessageID != 42 {
		t.Errorf("order = %+v", order)
	}
}

func TestScout_DuplicateDelivery(t *testing.T) {
	const chatID = -1001234567890
	store := newStore(t)
	addSubscriber(t, store, 100, chatID, "", []string{"такси"}, nil)

	n := &MockNotifier{}
	s := newScout(config.ModeShared, store, n)
	msg := model.Message{SourceKind: model.SourceWorker, ChatID: chatID, ID: 7, Text: "такси срочно"}

	// Two workers observing the same chat deliver the same message twice
	s.processAndWait(context.Background(), msg)
	msg.SourceID = 2
	s.processAndWait(context.Background(), msg)

	if got := len(n.Sent()); got != 1 {
		t.Errorf("sent %d alerts, want 1", got)
	}
}

func TestScout_UserModeOwnerOnly(t *testing.T) {
	const chatID = -1001234567890
	store := newStore(t)
	owner := addSubscriber(t, store, 100, chatID, "", []string{"такси"}, nil)
	other := addSubscriber(t, store, 200, chatID, "", []string{"такси"}, nil)

	n := &MockNotifier{}
	s := newScout(config.ModeUser, store, n)
	s.processAndWait(context.Background(), model.Message{
		SourceKind: model.SourceSubscriber,
		SourceID:   owner.ID,
		ChatID:     chatID,
		ID:         1,
		Text:       "такси",
	})

	sent := n.Sent()
	if len(sent) != 1 || sent[0].RecipientID != owner.TelegramID {
		t.Fatalf("alerts = %+v, want only owner", sent)
	}

	// A connection whose owner no longer watches the chat produces nothing
	if err := store.SetWatchTargetEnabled(context.Background(), other.ID, chatID, false); err != nil {
		t.Fatal(err)
	}
	s.processAndWait(context.Background(), model.Message{
		SourceKind: model.SourceSubscriber,
		SourceID:   other.ID,
		ChatID:     chatID,
		ID:         2,
		Text:       "такси",
	})
	if got := len(n.Sent()); got != 1 {
		t.Errorf("sent %d alerts, want 1", got)
	}
}

func TestScout_Blacklisted(t *testing.T) {
	const chatID = -1001234567890
	store := newStore(t)
	addSubscriber(t, store, 100, chatID, "", []string{"такси"}, nil)
	if err := store.BlacklistChat(context.Background(), chatID, "spam", "ads"); err != nil {
		t.Fatal(err)
	}

	n := &MockNotifier{}
	s := newScout(config.ModeShared, store, n)
	s.processAndWait(context.Background(), model.Message{SourceKind: model.SourceWorker, ChatID: chatID, ID: 1, Text: "такси"})

	if got := len(n.Sent()); got != 0 {
		t.Errorf("sent %d alerts, want 0", got)
	}
}

func TestScout_NotificationFailureKeepsDelivery(t *testing.T) {
	const chatID = -1001234567890
	store := newStore(t)
	addSubscriber(t, store, 100, chatID, "", []string{"такси"}, nil)

	n := &MockNotifier{Err: errors.New("bot api down")}
	s := newScout(config.ModeShared, store, n)
	msg := model.Message{SourceKind: model.SourceWorker, ChatID: chatID, ID: 1, Text: "такси"}

	s.processAndWait(context.Background(), msg)
	s.processAndWait(context.Background(), msg)

	// No retry: the delivery was recorded before the send failed
	if got := len(n.Sent()); got != 1 {
		t.Errorf("attempted %d sends, want 1", got)
	}
}

func TestScout_Start(t *testing.T) {
	const chatID = -1001234567890
	store := newStore(t)
	addSubscriber(t, store, 100, chatID, "", []string{"такси"}, nil)

	n := &MockNotifier{NotifyChan: make(chan notifier.Alert, 10)}
	s := newScout(config.ModeShared, store, n)

	ctx, cancel := context.WithCancel(context.Background())
	input := make(chan model.Message, 4)
	done := make(chan struct{})
	go func() {
		s.Start(ctx, input)
		close(done)
	}()

	input <- model.Message{SourceKind: model.SourceWorker, ChatID: chatID, ID: 1, Text: "такси"}
	input <- model.Message{SourceKind: model.SourceWorker, ChatID: chatID, ID: 2, Text: "ничего"}

	select {
	case a := <-n.NotifyChan:
		if a.RecipientID != 100 {
			t.Errorf("RecipientID = %d", a.RecipientID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for alert")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestShardOf(t *testing.T) {
	tests := []struct {
		chatID int64
		n      int
		want   int
	}{
		{-1001234567890, 4, 2},
		{1001234567890, 4, 2},
		{-5, 1, 0},
		{-7, 3, 1},
	}
	for _, tt := range tests {
		if got := shardOf(tt.chatID, tt.n); got != tt.want {
			t.Errorf("shardOf(%d, %d) = %d, want %d", tt.chatID, tt.n, got, tt.want)
		}
	}
}
