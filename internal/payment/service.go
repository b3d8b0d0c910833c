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

package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/notifier"
)

// Pending payments older than this are no longer polled
const pollWindow = 24 * time.Hour

// ErrUnknownProvider is returned for webhooks of a provider that is not active
var ErrUnknownProvider = errors.New("unknown payment provider")

// Store is the persistence the payment service needs
type Store interface {
	Subscriber(ctx context.Context, id int64) (*model.Subscriber, error)
	CreatePayment(ctx context.Context, p *model.Payment) error
	SetPaymentExternalID(ctx context.Context, id int64, externalID, url string) error
	PaymentByExternalID(ctx context.Context, provider, externalID string) (*model.Payment, error)
	PendingPayments(ctx context.Context, since time.Time) ([]model.Payment, error)
	ConfirmPayment(ctx context.Context, id int64, now time.Time) (bool, time.Time, error)
	FailPayment(ctx context.Context, id int64) error
}

// Service creates subscription charges and settles them
type Service struct {
	gateway   Gateway
	store     Store
	notifier  notifier.Notifier
	rules     config.SubscriptionRules
	returnURL string
	log       *zap.Logger
	now       func() time.Time
}

func NewService(gw Gateway, store Store, n notifier.Notifier, cfg *config.Config, log *zap.Logger) *Service {
	return &Service{
		gateway:   gw,
		store:     store,
		notifier:  n,
		rules:     cfg.Subscription,
		returnURL: cfg.Payments.ReturnURL,
		log:       log.Named("payment").With(zap.String("provider", gw.Name())),
		now:       time.Now,
	}
}

// Checkout creates a pending payment and its gateway invoice
func (s *Service) Checkout(ctx context.Context, subscriberID int64) (*model.Payment, error) {
	sub, err := s.store.Subscriber(ctx, subscriberID)
	if err != nil {
		return nil, errors.Wrap(err, "load subscriber")
	}

	// The placeholder keeps (provider, external_id) unique until the gateway answers
	p := &model.Payment{
		SubscriberID: sub.ID,
		Provider:     s.gateway.Name(),
		ExternalID:   "local-" + uuid.NewString(),
		Amount:       s.rules.Price.StringFixed(2),
		Days:         s.rules.Days,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	inv, err := s.gateway.CreatePayment(ctx, s.rules.Price, Meta{
		PaymentID:    p.ID,
		SubscriberID: sub.ID,
		TelegramID:   sub.TelegramID,
		Description:  fmt.Sprintf("Подписка на %d дн.", s.rules.Days),
		ReturnURL:    s.returnURL,
	})
	if err != nil {
		if ferr := s.store.FailPayment(context.WithoutCancel(ctx), p.ID); ferr != nil {
			s.log.Warn("Failed to mark payment failed", zap.Int64("payment_id", p.ID), zap.Error(ferr))
		}
		return nil, errors.Wrap(err, "create invoice")
	}

	if err := s.store.SetPaymentExternalID(ctx, p.ID, inv.ExternalID, inv.URL); err != nil {
		return nil, err
	}
	p.ExternalID = inv.ExternalID
	p.URL = inv.URL

	s.log.Info("Payment created",
		zap.Int64("payment_id", p.ID),
		zap.Int64("subscriber_id", sub.ID),
		zap.String("external_id", inv.ExternalID),
	)
	return p, nil
}

// PollPending asks the gateway about every recent pending payment
func (s *Service) PollPending(ctx context.Context) error {
	pending, err := s.store.PendingPayments(ctx, s.now().Add(-pollWindow))
	if err != nil {
		return err
	}

	var errs error
	for _, p := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		status, err := s.gateway.CheckPayment(ctx, p.ExternalID)
		if errors.Is(err, ErrUnsupported) {
			return nil
		}
		if err != nil {
			s.log.Debug("Payment check failed", zap.Int64("payment_id", p.ID), zap.Error(err))
			continue
		}
		errs = multierr.Append(errs, s.settle(ctx, &p, status))
	}
	return errs
}

// HandleWebhook verifies a gateway callback and settles the payment it names.
// It returns the body to acknowledge the callback with.
func (s *Service) HandleWebhook(ctx context.Context, provider string, r *http.Request) (string, error) {
	if provider != s.gateway.Name() {
		return "", ErrUnknownProvider
	}
	n, err := s.gateway.VerifyWebhook(r)
	if err != nil {
		return "", err
	}

	p, err := s.store.PaymentByExternalID(ctx, provider, n.ExternalID)
	if err != nil {
		return "", errors.Wrapf(err, "payment %s", n.ExternalID)
	}
	if err := s.settle(ctx, p, n.Status); err != nil {
		return "", err
	}
	return n.Ack, nil
}

func (s *Service) settle(ctx context.Context, p *model.Payment, status Status) error {
	log := s.log.With(zap.Int64("payment_id", p.ID), zap.Int64("subscriber_id", p.SubscriberID))

	switch status {
	case StatusConfirmed:
		confirmed, end, err := s.store.ConfirmPayment(ctx, p.ID, s.now())
		if err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
		log.Info("Payment confirmed", zap.Time("subscription_end", end))
		s.notify(ctx, p.SubscriberID, fmt.Sprintf("✅ Оплата получена. Подписка активна до %s.", end.Format("02.01.2006")))
	case StatusFailed:
		if err := s.store.FailPayment(ctx, p.ID); err != nil {
			return err
		}
		log.Info("Payment failed")
		s.notify(ctx, p.SubscriberID, "❌ Платеж не прошел. Попробуйте снова: /pay")
	}
	return nil
}

func (s *Service) notify(ctx context.Context, subscriberID int64, text string) {
	sub, err := s.store.Subscriber(ctx, subscriberID)
	if err != nil {
		s.log.Warn("Failed to load subscriber for payment notice", zap.Int64("subscriber_id", subscriberID), zap.Error(err))
		return
	}
	if err := s.notifier.Send(ctx, sub.TelegramID, text); err != nil {
		s.log.Warn("Failed to send payment notice", zap.Int64("subscriber_id", subscriberID), zap.Error(err))
	}
}
