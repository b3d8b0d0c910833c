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

package notifier

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/metrics"
)

// ErrBlocked is returned when the recipient blocked the bot or never started it
var ErrBlocked = errors.New("recipient blocked the bot")

// Callback data prefix of the respond button
const RespondPrefix = "respond:"

// Define interface for sending alerts
type Notifier interface {
	Send(ctx context.Context, recipientID int64, text string) error
	SendAlert(ctx context.Context, alert Alert) error
}

// Alert is an order notification with its action buttons
type Alert struct {
	RecipientID int64
	Text        string
	// Adds a respond button when non-zero
	OrderID int64
	// Adds an open-message button when set
	Link string
}

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Send messages using the Telegram Bot API
type TelegramNotifier struct {
	api        botAPI
	limiter    *rate.Limiter
	log        *zap.Logger
	metrics    metrics.Recorder
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// Create new TelegramNotifier
func New(api botAPI, rules config.NotifyRules, log *zap.Logger, rec metrics.Recorder) *TelegramNotifier {
	if rec == nil {
		rec = metrics.Nop{}
	}
	limit := rate.Inf
	if rules.RatePerSecond > 0 {
		limit = rate.Limit(rules.RatePerSecond)
	}
	burst := rules.Burst
	if burst <= 0 {
		burst = 1
	}
	return &TelegramNotifier{
		api:        api,
		limiter:    rate.NewLimiter(limit, burst),
		log:        log.Named("notifier"),
		metrics:    rec,
		maxRetries: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			return b
		},
	}
}

// Post an HTML text message to a recipient
func (t *TelegramNotifier) Send(ctx context.Context, recipientID int64, text string) error {
	msg := tgbotapi.NewMessage(recipientID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return t.deliver(ctx, recipientID, msg)
}

// Post an order notification with its buttons
func (t *TelegramNotifier) SendAlert(ctx context.Context, alert Alert) error {
	msg := tgbotapi.NewMessage(alert.RecipientID, alert.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	var row []tgbotapi.InlineKeyboardButton
	if alert.OrderID > 0 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✉️ Откликнуться", RespondPrefix+strconv.FormatInt(alert.OrderID, 10)))
	}
	if alert.Link != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL("🔗 Открыть", alert.Link))
	}
	if len(row) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}
	return t.deliver(ctx, alert.RecipientID, msg)
}

// Send with throttling, retrying only when the Bot API asks to slow down
func (t *TelegramNotifier) deliver(ctx context.Context, recipientID int64, c tgbotapi.Chattable) error {
	attempt := 0
	op := func() error {
		attempt++
		if err := t.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		_, err := t.api.Send(c)
		if err == nil {
			return nil
		}

		var apiErr *tgbotapi.Error
		if !errors.As(err, &apiErr) {
			return backoff.Permanent(err)
		}
		switch apiErr.Code {
		case 429:
			wait := time.Duration(apiErr.RetryAfter) * time.Second
			t.log.Warn("Rate limited by Bot API",
				zap.Int64("recipient_id", recipientID),
				zap.Duration("retry_after", wait),
				zap.Int("attempt", attempt),
			)
			select {
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			case <-time.After(wait):
			}
			return err
		case 403:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrBlocked, apiErr.Message))
		default:
			return backoff.Permanent(err)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(t.newBackOff(), t.maxRetries), ctx)
	err := backoff.Retry(op, b)
	t.metrics.RecordNotification(err)
	if err != nil {
		return errors.Wrapf(err, "notify %d", recipientID)
	}
	t.log.Debug("Notification sent", zap.Int64("recipient_id", recipientID))
	return nil
}
