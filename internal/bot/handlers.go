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
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/monitor"
)

const (
	msgInternalError = "Произошла ошибка, попробуйте позже."
	msgBanned        = "Доступ заблокирован."
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Добро пожаловать в OrderScout!

Бот следит за вашими группами и присылает заказы по ключевым словам и городам.

Быстрый старт:
1. /groups_sync — загрузить список групп
2. /groups_enable <названия> — выбрать группы
3. /keyword_add <слово> — добавить ключевое слово
4. /monitor_on — включить мониторинг

Полный список команд: /help`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Мониторинг:
/status — состояние подписки и мониторинга
/monitor_on — включить мониторинг
/monitor_off — выключить мониторинг

Группы:
/groups_sync — обновить список групп
/groups — показать группы
/groups_enable <названия через запятую> — включить группы по названию
/group_on <id> — включить группу
/group_off <id> — выключить группу

Фильтры:
/keyword_add <слово> — добавить ключевое слово
/keyword_del <слово> — удалить ключевое слово
/city_add <город> — добавить город
/city_del <город> — удалить город

/response <текст> — текст отклика
/pay — оплатить подписку`)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64, sub *model.Subscriber) {
	targets, err := b.deps.Store.WatchTargets(ctx, sub.ID)
	if err != nil {
		b.log.Error("Failed to list watch targets", zap.Int64("subscriber_id", sub.ID), zap.Error(err))
		b.reply(chatID, msgInternalError)
		return
	}
	b.reply(chatID, FormatStatus(sub, targets, time.Now()))
}

func (b *Bot) handleMonitorOn(ctx context.Context, chatID int64, sub *model.Subscriber) {
	res, err := b.deps.Monitor.EnableMonitoring(ctx, sub.ID)
	if err != nil {
		b.reply(chatID, controlError(err))
		return
	}
	text := "✅ Мониторинг включен."
	if n := len(res.Unassigned); n > 0 {
		text += fmt.Sprintf("\n⚠️ Групп без свободного наблюдателя: %d. Они будут подключены позже.", n)
	}
	b.reply(chatID, text)
}

func (b *Bot) handleMonitorOff(ctx context.Context, chatID int64, sub *model.Subscriber) {
	if err := b.deps.Monitor.DisableMonitoring(ctx, sub.ID); err != nil {
		b.reply(chatID, controlError(err))
		return
	}
	b.reply(chatID, "⏸ Мониторинг выключен.")
}

func (b *Bot) handleGroupsSync(ctx context.Context, chatID int64, sub *model.Subscriber) {
	res, err := b.deps.Monitor.SyncGroups(ctx, sub.ID)
	if err != nil {
		b.reply(chatID, controlError(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Группы обновлены: новых %d, переименовано %d, удалено %d.\nСписок: /groups",
		res.Added, res.Renamed, res.Removed))
}

func (b *Bot) handleGroups(ctx context.Context, chatID int64, sub *model.Subscriber) {
	targets, err := b.deps.Store.WatchTargets(ctx, sub.ID)
	if err != nil {
		b.log.Error("Failed to list watch targets", zap.Int64("subscriber_id", sub.ID), zap.Error(err))
		b.reply(chatID, msgInternalError)
		return
	}
	b.reply(chatID, FormatGroups(targets))
}

func (b *Bot) handleGroupsEnable(ctx context.Context, chatID int64, sub *model.Subscriber, args string) {
	if args == "" {
		b.reply(chatID, "Использование: /groups_enable <название>, <название>")
		return
	}
	res, err := b.deps.Monitor.BulkEnable(ctx, sub.ID, args)
	if err != nil {
		b.reply(chatID, controlError(err))
		return
	}
	b.reply(chatID, FormatBulkResult(res))
}

func (b *Bot) handleGroupToggle(ctx context.Context, chatID int64, sub *model.Subscriber, args string, enabled bool) {
	id, err := ParseChatID(args)
	if err != nil {
		b.reply(chatID, "Использование: /group_on <id> или /group_off <id>")
		return
	}
	if err := b.deps.Monitor.SetGroupEnabled(ctx, sub.ID, id, enabled); err != nil {
		b.reply(chatID, controlError(err))
		return
	}
	if enabled {
		b.reply(chatID, "Группа включена.")
	} else {
		b.reply(chatID, "Группа выключена.")
	}
}

func (b *Bot) handleKeywordAdd(ctx context.Context, chatID int64, sub *model.Subscriber, args string) {
	if args == "" {
		b.reply(chatID, "Использование: /keyword_add <слово>")
		return
	}
	added, err := b.deps.Monitor.AddKeyword(ctx, sub.ID, args)
	switch {
	case err != nil:
		b.reply(chatID, controlError(err))
	case !added:
		b.reply(chatID, fmt.Sprintf("Ключевое слово «%s» уже добавлено.", args))
	default:
		b.reply(chatID, fmt.Sprintf("Ключевое слово «%s» добавлено.", strings.ToLower(args)))
	}
}

func (b *Bot) handleKeywordDel(ctx context.Context, chatID int64, sub *model.Subscriber, args string) {
	if args == "" {
		b.reply(chatID, "Использование: /keyword_del <слово>")
		return
	}
	removed, err := b.deps.Monitor.RemoveKeyword(ctx, sub.ID, args)
	switch {
	case err != nil:
		b.reply(chatID, controlError(err))
	case !removed:
		b.reply(chatID, fmt.Sprintf("Ключевое слово «%s» не найдено.", args))
	default:
		b.reply(chatID, fmt.Sprintf("Ключевое слово «%s» удалено.", args))
	}
}

func (b *Bot) handleCityAdd(ctx context.Context, chatID int64, sub *model.Subscriber, args string) {
	if args == "" {
		b.reply(chatID, "Использование: /city_add <город>")
		return
	}
	name, added, err := b.deps.Monitor.AddCity(ctx, sub.ID, args)
	switch {
	case err != nil:
		b.reply(chatID, controlError(err))
	case !added:
		b.reply(chatID, fmt.Sprintf("Город «%s» уже добавлен.", name))
	default:
		b.reply(chatID, fmt.Sprintf("Город «%s» добавлен.", name))
	}
}

func (b *Bot) handleCityDel(ctx context.Context, chatID int64, sub *model.Subscriber, args string) {
	if args == "" {
		b.reply(chatID, "Использование: /city_del <город>")
		return
	}
	removed, err := b.deps.Monitor.RemoveCity(ctx, sub.ID, args)
	switch {
	case err != nil:
		b.reply(chatID, controlError(err))
	case !removed:
		b.reply(chatID, fmt.Sprintf("Город «%s» не найден.", args))
	default:
		b.reply(chatID, fmt.Sprintf("Город «%s» удален.", args))
	}
}

func (b *Bot) handleResponse(ctx context.Context, chatID int64, sub *model.Subscriber, args string) {
	if args == "" {
		b.reply(chatID, fmt.Sprintf("Текущий текст отклика: %s\nИзменить: /response <текст>", responseText(sub, b.cfg.ResponseText)))
		return
	}
	if err := b.deps.Store.SetResponseText(ctx, sub.ID, args); err != nil {
		b.log.Error("Failed to set response text", zap.Int64("subscriber_id", sub.ID), zap.Error(err))
		b.reply(chatID, msgInternalError)
		return
	}
	b.reply(chatID, "Текст отклика сохранен.")
}

func (b *Bot) handlePay(ctx context.Context, chatID int64, sub *model.Subscriber) {
	if b.deps.Payments == nil {
		b.reply(chatID, "Оплата сейчас недоступна, обратитесь к администратору.")
		return
	}
	p, err := b.deps.Payments.Checkout(ctx, sub.ID)
	if err != nil {
		b.log.Error("Failed to create payment", zap.Int64("subscriber_id", sub.ID), zap.Error(err))
		b.reply(chatID, "Не удалось создать счет, попробуйте позже.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Подписка на %d дн. за %s ₽\nОплатить: %s", p.Days, p.Amount, p.URL))
}

func responseText(sub *model.Subscriber, fallback string) string {
	if sub.ResponseText != "" {
		return sub.ResponseText
	}
	return fallback
}

// Translate a control error into a user-facing message
func controlError(err error) string {
	switch {
	case errors.Is(err, monitor.ErrNoSession):
		return "🔑 Сессия Telegram не авторизована или истекла. Выполните вход заново."
	case errors.Is(err, monitor.ErrNoSubscription):
		return "💳 Подписка не активна. Оформить: /pay"
	case errors.Is(err, monitor.ErrBanned):
		return msgBanned
	case errors.Is(err, monitor.ErrNoKeywords):
		return "Добавьте хотя бы одно ключевое слово: /keyword_add"
	case errors.Is(err, monitor.ErrNoGroups):
		return "Включите хотя бы одну группу: /groups_enable"
	default:
		return msgInternalError
	}
}
