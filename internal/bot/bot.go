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

// Package bot runs the Bot API update loop: subscriber commands, operator
// commands and the respond button on order alerts.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/distributor"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/monitor"
	"github.com/h3nc4/OrderScout/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Store is the persistence the bot reads directly
type Store interface {
	EnsureSubscriber(ctx context.Context, telegramID int64, username, responseText string) (*model.Subscriber, error)
	SubscriberByTelegramID(ctx context.Context, telegramID int64) (*model.Subscriber, error)
	WatchTargets(ctx context.Context, subscriberID int64) ([]model.WatchTarget, error)
	SetResponseText(ctx context.Context, id int64, text string) error
	SetBanned(ctx context.Context, id int64, banned bool) error
	BlacklistChat(ctx context.Context, chatID int64, name, reason string) error
	UnblacklistChat(ctx context.Context, chatID int64) error
}

// Controller changes monitoring state
type Controller interface {
	EnableMonitoring(ctx context.Context, subscriberID int64) (monitor.EnableResult, error)
	DisableMonitoring(ctx context.Context, subscriberID int64) error
	SyncGroups(ctx context.Context, subscriberID int64) (storage.SyncResult, error)
	SetGroupEnabled(ctx context.Context, subscriberID, chatID int64, enabled bool) error
	BulkEnable(ctx context.Context, subscriberID int64, input string) (monitor.BulkResult, error)
	AddKeyword(ctx context.Context, subscriberID int64, word string) (bool, error)
	RemoveKeyword(ctx context.Context, subscriberID int64, word string) (bool, error)
	AddCity(ctx context.Context, subscriberID int64, name string) (string, bool, error)
	RemoveCity(ctx context.Context, subscriberID int64, name string) (bool, error)
}

// Responder answers an order on the subscriber's behalf
type Responder interface {
	Respond(ctx context.Context, orderID, telegramID int64) error
}

// Checkout creates a subscription payment
type Checkout interface {
	Checkout(ctx context.Context, subscriberID int64) (*model.Payment, error)
}

// StatsSource reports the worker distribution
type StatsSource interface {
	GetStats(ctx context.Context) (distributor.Stats, error)
}

// Deps are the collaborators behind the commands. Payments and Stats may be nil.
type Deps struct {
	Store     Store
	Monitor   Controller
	Responder Responder
	Payments  Checkout
	Stats     StatsSource
}

// Bot handles subscriber and operator commands
type Bot struct {
	api  telegramAPI
	cfg  *config.Config
	deps Deps
	log  *zap.Logger
}

// New creates a Bot over an authorized Bot API client
func New(api telegramAPI, cfg *config.Config, deps Deps, log *zap.Logger) *Bot {
	return &Bot{
		api:  api,
		cfg:  cfg,
		deps: deps,
		log:  log.Named("bot"),
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("Bot is listening for updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil || !msg.Chat.IsPrivate() || !msg.IsCommand() {
		return
	}
	b.handleCommand(ctx, msg)
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("Failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("Command received", zap.String("cmd", cmd), zap.Int64("user_id", msg.From.ID))

	if b.cfg.IsAdmin(msg.From.ID) && b.handleAdminCommand(ctx, chatID, cmd, args) {
		return
	}

	sub, err := b.deps.Store.EnsureSubscriber(ctx, msg.From.ID, msg.From.UserName, b.cfg.ResponseText)
	if err != nil {
		b.log.Error("Failed to load subscriber", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		b.reply(chatID, msgInternalError)
		return
	}
	if sub.IsBanned {
		b.reply(chatID, msgBanned)
		return
	}

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "status":
		b.handleStatus(ctx, chatID, sub)
	case "monitor_on":
		b.handleMonitorOn(ctx, chatID, sub)
	case "monitor_off":
		b.handleMonitorOff(ctx, chatID, sub)
	case "groups_sync":
		b.handleGroupsSync(ctx, chatID, sub)
	case "groups":
		b.handleGroups(ctx, chatID, sub)
	case "groups_enable":
		b.handleGroupsEnable(ctx, chatID, sub, args)
	case "group_on":
		b.handleGroupToggle(ctx, chatID, sub, args, true)
	case "group_off":
		b.handleGroupToggle(ctx, chatID, sub, args, false)
	case "keyword_add":
		b.handleKeywordAdd(ctx, chatID, sub, args)
	case "keyword_del":
		b.handleKeywordDel(ctx, chatID, sub, args)
	case "city_add":
		b.handleCityAdd(ctx, chatID, sub, args)
	case "city_del":
		b.handleCityDel(ctx, chatID, sub, args)
	case "response":
		b.handleResponse(ctx, chatID, sub, args)
	case "pay":
		b.handlePay(ctx, chatID, sub)
	default:
		b.reply(chatID, "Неизвестная команда. Список команд: /help")
	}
}
