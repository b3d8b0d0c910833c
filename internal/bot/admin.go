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
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Handle operator commands, reporting whether cmd was one
func (b *Bot) handleAdminCommand(ctx context.Context, chatID int64, cmd, args string) bool {
	switch cmd {
	case "ban":
		b.handleBan(ctx, chatID, args, true)
	case "unban":
		b.handleBan(ctx, chatID, args, false)
	case "blacklist":
		b.handleBlacklist(ctx, chatID, args)
	case "unblacklist":
		b.handleUnblacklist(ctx, chatID, args)
	case "stats":
		b.handleStats(ctx, chatID)
	default:
		return false
	}
	return true
}

func (b *Bot) handleBan(ctx context.Context, chatID int64, args string, banned bool) {
	telegramID, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.reply(chatID, "Использование: /ban <telegram_id> или /unban <telegram_id>")
		return
	}
	sub, err := b.deps.Store.SubscriberByTelegramID(ctx, telegramID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Пользователь %d не найден.", telegramID))
		return
	}
	if banned {
		if err := b.deps.Monitor.DisableMonitoring(ctx, sub.ID); err != nil {
			b.log.Warn("Failed to stop monitoring of banned subscriber", zap.Int64("subscriber_id", sub.ID), zap.Error(err))
		}
	}
	if err := b.deps.Store.SetBanned(ctx, sub.ID, banned); err != nil {
		b.log.Error("Failed to update ban", zap.Int64("subscriber_id", sub.ID), zap.Error(err))
		b.reply(chatID, msgInternalError)
		return
	}
	if banned {
		b.reply(chatID, fmt.Sprintf("Пользователь %d заблокирован.", telegramID))
	} else {
		b.reply(chatID, fmt.Sprintf("Пользователь %d разблокирован.", telegramID))
	}
}

func (b *Bot) handleBlacklist(ctx context.Context, chatID int64, args string) {
	idArg, reason, _ := strings.Cut(args, " ")
	id, err := ParseChatID(idArg)
	if err != nil {
		b.reply(chatID, "Использование: /blacklist <chat_id> [причина]")
		return
	}
	if err := b.deps.Store.BlacklistChat(ctx, id, "", strings.TrimSpace(reason)); err != nil {
		b.log.Error("Failed to blacklist chat", zap.Int64("chat_id", id), zap.Error(err))
		b.reply(chatID, msgInternalError)
		return
	}
	b.reply(chatID, fmt.Sprintf("Чат %d добавлен в черный список.", id))
}

func (b *Bot) handleUnblacklist(ctx context.Context, chatID int64, args string) {
	id, err := ParseChatID(args)
	if err != nil {
		b.reply(chatID, "Использование: /unblacklist <chat_id>")
		return
	}
	if err := b.deps.Store.UnblacklistChat(ctx, id); err != nil {
		b.log.Error("Failed to unblacklist chat", zap.Int64("chat_id", id), zap.Error(err))
		b.reply(chatID, msgInternalError)
		return
	}
	b.reply(chatID, fmt.Sprintf("Чат %d удален из черного списка.", id))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	if b.deps.Stats == nil {
		b.reply(chatID, "Статистика доступна только в общем режиме.")
		return
	}
	stats, err := b.deps.Stats.GetStats(ctx)
	if err != nil {
		b.log.Error("Failed to load stats", zap.Error(err))
		b.reply(chatID, msgInternalError)
		return
	}
	b.reply(chatID, FormatStats(stats))
}
