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

package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/distributor"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/monitor"
	"github.com/h3nc4/OrderScout/internal/notifier"
	"github.com/h3nc4/OrderScout/internal/responder"
	"github.com/h3nc4/OrderScout/internal/storage"
)

// --- mocks ---

type mockAPI struct {
	mu       sync.Mutex
	sent     []string
	requests []tgbotapi.Chattable
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, msg.Text)
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockAPI) callbackTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.requests {
		if cb, ok := r.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

type mockController struct {
	mu        sync.Mutex
	enableErr error
	enableRes monitor.EnableResult
	bulk      monitor.BulkResult
	calls     []string
}

func (m *mockController) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockController) EnableMonitoring(ctx context.Context, subscriberID int64) (monitor.EnableResult, error) {
	m.record("enable")
	return m.enableRes, m.enableErr
}

func (m *mockController) DisableMonitoring(ctx context.Context, subscriberID int64) error {
	m.record("disable")
	return nil
}

func (m *mockController) SyncGroups(ctx context.Context, subscriberID int64) (storage.SyncResult, error) {
	m.record("sync")
	return storage.SyncResult{Added: 3}, nil
}

func (m *mockController) SetGroupEnabled(ctx context.Context, subscriberID, chatID int64, enabled bool) error {
	m.record("toggle")
	return nil
}

func (m *mockController) BulkEnable(ctx context.Context, subscriberID int64, input string) (monitor.BulkResult, error) {
	m.record("bulk:" + input)
	return m.bulk, nil
}

func (m *mockController) AddKeyword(ctx context.Context, subscriberID int64, word string) (bool, error) {
	m.record("keyword_add")
	return true, nil
}

func (m *mockController) RemoveKeyword(ctx context.Context, subscriberID int64, word string) (bool, error) {
	m.record("keyword_del")
	return false, nil
}

func (m *mockController) AddCity(ctx context.Context, subscriberID int64, name string) (string, bool, error) {
	m.record("city_add")
	return "Москва", true, nil
}

func (m *mockController) RemoveCity(ctx context.Context, subscriberID int64, name string) (bool, error) {
	m.record("city_del")
	return true, nil
}

type mockResponder struct {
	err   error
	calls int
}

func (m *mockResponder) Respond(ctx context.Context, orderID, telegramID int64) error {
	m.calls++
	return m.err
}

type mockStats struct{}

func (mockStats) GetStats(ctx context.Context) (distributor.Stats, error) {
	return distributor.Stats{
		TotalWorkers:   1,
		ActiveWorkers:  1,
		AssignedGroups: 2,
		TotalCapacity:  50,
		Workers:        []distributor.WorkerStats{{ID: 1, Name: "w1", IsActive: true, GroupsCount: 2, MaxGroups: 50}},
	}, nil
}

// --- helpers ---

func newTestBot(t *testing.T) (*Bot, *mockAPI, *mockController, *mockResponder, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	api := &mockAPI{}
	ctrl := &mockController{}
	resp := &mockResponder{}
	cfg := config.Default()
	cfg.AdminIDs = []int64{1}
	b := New(api, cfg, Deps{Store: store, Monitor: ctrl, Responder: resp, Stats: mockStats{}}, zap.NewNop())
	return b, api, ctrl, resp, store
}

func command(userID int64, text string) tgbotapi.Update {
	cmd, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: "driver"},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

// --- tests ---

func TestHandleStartCreatesSubscriber(t *testing.T) {
	b, api, _, _, store := newTestBot(t)
	b.handleUpdate(context.Background(), command(100, "/start"))

	requireContains(t, api.lastText(), "OrderScout")
	sub, err := store.SubscriberByTelegramID(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("Я", sub.ResponseText); diff != "" {
		t.Errorf("response text (-want +got):\n%s", diff)
	}
}

func TestHandleCommands(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantCall string
		wantText string
	}{
		{"monitor on", "/monitor_on", "enable", "Мониторинг включен"},
		{"monitor off", "/monitor_off", "disable", "Мониторинг выключен"},
		{"sync", "/groups_sync", "sync", "новых 3"},
		{"bulk", "/groups_enable Такси, Доставка", "bulk:Такси, Доставка", "Ничего не найдено"},
		{"bulk usage", "/groups_enable", "", "Использование"},
		{"group on", "/group_on -1001234", "toggle", "Группа включена"},
		{"group bad id", "/group_on abc", "", "Использование"},
		{"keyword add", "/keyword_add Такси", "keyword_add", "«такси» добавлено"},
		{"keyword del missing", "/keyword_del трансфер", "keyword_del", "не найдено"},
		{"city add", "/city_add мск", "city_add", "«Москва» добавлен"},
		{"city del", "/city_del мск", "city_del", "удален"},
		{"unknown", "/nope", "", "Неизвестная команда"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, ctrl, _, _ := newTestBot(t)
			b.handleUpdate(context.Background(), command(100, tt.text))

			requireContains(t, api.lastText(), tt.wantText)
			var want []string
			if tt.wantCall != "" {
				want = []string{tt.wantCall}
			}
			if diff := cmp.Diff(want, ctrl.calls); diff != "" {
				t.Errorf("calls (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleMonitorOnErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{monitor.ErrNoSession, "Выполните вход"},
		{monitor.ErrNoSubscription, "/pay"},
		{monitor.ErrNoKeywords, "/keyword_add"},
		{monitor.ErrNoGroups, "/groups_enable"},
		{errors.New("boom"), "ошибка"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			b, api, ctrl, _, _ := newTestBot(t)
			ctrl.enableErr = tt.err
			b.handleUpdate(context.Background(), command(100, "/monitor_on"))
			requireContains(t, api.lastText(), tt.want)
		})
	}
}

func TestHandleMonitorOnUnassigned(t *testing.T) {
	b, api, ctrl, _, _ := newTestBot(t)
	ctrl.enableRes = monitor.EnableResult{Unassigned: []int64{-1, -2}}
	b.handleUpdate(context.Background(), command(100, "/monitor_on"))
	requireContains(t, api.lastText(), "свободного наблюдателя: 2")
}

func TestHandleResponse(t *testing.T) {
	b, api, _, _, store := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(100, "/response Свободен, еду"))
	requireContains(t, api.lastText(), "сохранен")

	sub, _ := store.SubscriberByTelegramID(ctx, 100)
	if diff := cmp.Diff("Свободен, еду", sub.ResponseText); diff != "" {
		t.Errorf("response text (-want +got):\n%s", diff)
	}

	b.handleUpdate(ctx, command(100, "/response"))
	requireContains(t, api.lastText(), "Свободен, еду")
}

func TestHandleStatusAndGroups(t *testing.T) {
	b, api, _, _, store := newTestBot(t)
	ctx := context.Background()
	sub, _ := store.EnsureSubscriber(ctx, 100, "driver", "Я")
	if _, err := store.SyncWatchTargets(ctx, sub.ID, []model.Chat{{ID: -1001, Name: "Такси"}, {ID: -1002, Name: "Доставка"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetWatchTargetEnabled(ctx, sub.ID, -1001, true); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddKeyword(ctx, sub.ID, "заказ"); err != nil {
		t.Fatal(err)
	}

	b.handleUpdate(ctx, command(100, "/status"))
	status := api.lastText()
	requireContains(t, status, "Подписка не активна")
	requireContains(t, status, "Группы: 1 из 2")
	requireContains(t, status, "заказ")

	b.handleUpdate(ctx, command(100, "/groups"))
	groups := api.lastText()
	requireContains(t, groups, "✅ Такси (-1001)")
	requireContains(t, groups, "⬜ Доставка (-1002)")
}

func TestHandlePayUnavailable(t *testing.T) {
	b, api, _, _, _ := newTestBot(t)
	b.handleUpdate(context.Background(), command(100, "/pay"))
	requireContains(t, api.lastText(), "недоступна")
}

func TestBannedSubscriber(t *testing.T) {
	b, api, ctrl, _, store := newTestBot(t)
	ctx := context.Background()
	sub, _ := store.EnsureSubscriber(ctx, 100, "driver", "Я")
	if err := store.SetBanned(ctx, sub.ID, true); err != nil {
		t.Fatal(err)
	}

	b.handleUpdate(ctx, command(100, "/monitor_on"))
	requireContains(t, api.lastText(), "заблокирован")
	if len(ctrl.calls) != 0 {
		t.Errorf("calls = %v", ctrl.calls)
	}
}

func TestAdminCommands(t *testing.T) {
	b, api, _, _, store := newTestBot(t)
	ctx := context.Background()
	if _, err := store.EnsureSubscriber(ctx, 100, "driver", "Я"); err != nil {
		t.Fatal(err)
	}

	b.handleUpdate(ctx, command(1, "/ban 100"))
	requireContains(t, api.lastText(), "заблокирован")
	sub, _ := store.SubscriberByTelegramID(ctx, 100)
	if !sub.IsBanned {
		t.Error("subscriber not banned")
	}

	b.handleUpdate(ctx, command(1, "/blacklist -1009 реклама"))
	requireContains(t, api.lastText(), "черный список")
	if blocked, _ := store.IsBlacklisted(ctx, -1009); !blocked {
		t.Error("chat not blacklisted")
	}

	b.handleUpdate(ctx, command(1, "/stats"))
	requireContains(t, api.lastText(), "w1: 2/50")

	// Non-admins fall through to subscriber commands
	b.handleUpdate(ctx, command(100, "/stats"))
	requireContains(t, api.lastText(), "заблокирован")
}

func TestIgnoresGroupMessages(t *testing.T) {
	b, api, _, _, _ := newTestBot(t)
	u := command(100, "/start")
	u.Message.Chat = &tgbotapi.Chat{ID: -100, Type: "supergroup"}
	b.handleUpdate(context.Background(), u)
	if got := api.lastText(); got != "" {
		t.Errorf("replied in group: %q", got)
	}
}

func TestHandleCallback(t *testing.T) {
	respond := notifier.RespondPrefix + "42"
	open := "https://t.me/c/1/2"
	alert := &tgbotapi.Message{
		MessageID: 9,
		Chat:      &tgbotapi.Chat{ID: 100},
		ReplyMarkup: &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{{
			{Text: "respond", CallbackData: &respond},
			{Text: "open", URL: &open},
		}}},
	}

	tests := []struct {
		name     string
		data     string
		err      error
		wantAck  string
		wantCall int
		wantEdit bool
	}{
		{"sent", respond, nil, "Отклик отправлен", 1, true},
		{"already", respond, responder.ErrAlreadyResponded, "уже откликнулись", 1, false},
		{"not owner", respond, responder.ErrNotOwner, "не найден", 1, false},
		{"unknown data", "other:1", nil, "", 0, false},
		{"bad id", notifier.RespondPrefix + "x", nil, "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, _, resp, _ := newTestBot(t)
			resp.err = tt.err
			b.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
				ID:      "cb",
				From:    &tgbotapi.User{ID: 100},
				Message: alert,
				Data:    tt.data,
			}})

			acks := api.callbackTexts()
			if len(acks) != 1 || !strings.Contains(acks[0], tt.wantAck) || (tt.wantAck == "" && acks[0] != "") {
				t.Errorf("acks = %v, want one containing %q", acks, tt.wantAck)
			}
			if resp.calls != tt.wantCall {
				t.Errorf("respond calls = %d, want %d", resp.calls, tt.wantCall)
			}

			var edit *tgbotapi.EditMessageReplyMarkupConfig
			api.mu.Lock()
			for _, r := range api.requests {
				if e, ok := r.(tgbotapi.EditMessageReplyMarkupConfig); ok {
					edit = &e
				}
			}
			api.mu.Unlock()
			if (edit != nil) != tt.wantEdit {
				t.Fatalf("edit sent = %v, want %v", edit != nil, tt.wantEdit)
			}
			if edit != nil {
				rows := edit.ReplyMarkup.InlineKeyboard
				if len(rows) != 1 || len(rows[0]) != 1 || rows[0][0].Text != "open" {
					t.Errorf("remaining buttons = %+v", rows)
				}
			}
		})
	}
}

func TestFormatStatusActive(t *testing.T) {
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	sub := &model.Subscriber{
		SubscriptionEnd:   &end,
		MonitoringEnabled: true,
		Cities:            []model.City{{Name: "Казань"}},
		LastError:         "flood wait",
	}
	got := FormatStatus(sub, nil, end.Add(-time.Hour))
	requireContains(t, got, "Подписка до 01.05.2026")
	requireContains(t, got, "Мониторинг: включен")
	requireContains(t, got, "Города: Казань")
	requireContains(t, got, "flood wait")
}

func TestParseChatID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"-1001234", -1001234, false},
		{" 42 ", 42, false},
		{"", 0, true},
		{"0", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseChatID(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseChatID(%q) = %d, %v", tt.in, got, err)
		}
	}
}
