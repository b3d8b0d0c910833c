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
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/notifier"
	"github.com/h3nc4/OrderScout/internal/responder"
	"github.com/h3nc4/OrderScout/internal/storage"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	log := b.log.With(zap.Int64("user_id", cb.From.ID), zap.String("data", cb.Data))

	idStr, ok := strings.CutPrefix(cb.Data, notifier.RespondPrefix)
	if !ok {
		b.ack(cb.ID, "", log)
		return
	}
	orderID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		b.ack(cb.ID, "", log)
		return
	}

	log.Info("Respond requested", zap.Int64("order_id", orderID))
	err = b.deps.Responder.Respond(ctx, orderID, cb.From.ID)
	b.ack(cb.ID, respondResult(err), log)
	if err != nil {
		return
	}

	if cb.Message != nil {
		b.markResponded(cb.Message, log)
	}
}

// Answer the callback so the client stops its spinner
func (b *Bot) ack(id, text string, log *zap.Logger) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		log.Error("Failed to answer callback", zap.Error(err))
	}
}

// Drop the respond button from an answered alert, keeping the rest
func (b *Bot) markResponded(msg *tgbotapi.Message, log *zap.Logger) {
	var rows [][]tgbotapi.InlineKeyboardButton
	if msg.ReplyMarkup != nil {
		for _, row := range msg.ReplyMarkup.InlineKeyboard {
			var kept []tgbotapi.InlineKeyboardButton
			for _, btn := range row {
				if btn.CallbackData != nil && strings.HasPrefix(*btn.CallbackData, notifier.RespondPrefix) {
					continue
				}
				kept = append(kept, btn)
			}
			if len(kept) > 0 {
				rows = append(rows, kept)
			}
		}
	}
	markup := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
	if rows == nil {
		markup.InlineKeyboard = [][]tgbotapi.InlineKeyboardButton{}
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(msg.Chat.ID, msg.MessageID, markup)
	if _, err := b.api.Request(edit); err != nil {
		log.Warn("Failed to update alert buttons", zap.Error(err))
	}
}

func respondResult(err error) string {
	switch {
	case err == nil:
		return "✅ Отклик отправлен"
	case errors.Is(err, responder.ErrAlreadyResponded):
		return "Вы уже откликнулись на этот заказ"
	case errors.Is(err, responder.ErrNotOwner), errors.Is(err, storage.ErrNotFound):
		return "Заказ не найден"
	case errors.Is(err, responder.ErrNoSender):
		return "Нет подключения для отправки отклика"
	default:
		return "Не удалось отправить отклик, попробуйте еще раз"
	}
}
