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

package storage

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"gorm.io/gorm"

	"github.com/h3nc4/OrderScout/internal/model"
)

func (s *Store) CreatePayment(ctx context.Context, p *model.Payment) error {
	if p.Status == "" {
		p.Status = model.PaymentPending
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return errors.Wrap(err, "create payment")
	}
	return nil
}

func (s *Store) Payment(ctx context.Context, id int64) (*model.Payment, error) {
	var p model.Payment
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) PaymentByExternalID(ctx context.Context, provider, externalID string) (*model.Payment, error) {
	var p model.Payment
	err := s.db.WithContext(ctx).Where("provider = ? AND external_id = ?", provider, externalID).First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// SetPaymentExternalID attaches the gateway's identifier after creation
func (s *Store) SetPaymentExternalID(ctx context.Context, id int64, externalID, url string) error {
	err := s.db.WithContext(ctx).Model(&model.Payment{}).Where("id = ?", id).
		Updates(map[string]any{"external_id": externalID, "url": url}).Error
	if err != nil {
		return errors.Wrap(err, "set payment external id")
	}
	return nil
}

// PendingPayments lists pending payments created after since
func (s *Store) PendingPayments(ctx context.Context, since time.Time) ([]model.Payment, error) {
	var out []model.Payment
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at >= ?", model.PaymentPending, since.UTC()).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "list pending payments")
	}
	return out, nil
}

// ConfirmPayment moves a pending payment to confirmed and extends the
// subscription. It reports false when the payment was not pending.
func (s *Store) ConfirmPayment(ctx context.Context, id int64, now time.Time) (bool, time.Time, error) {
	var (
		confirmed bool
		end       time.Time
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p model.Payment
		if err := tx.First(&p, id).Error; err != nil {
			return notFound(err)
		}

		res := tx.Model(&model.Payment{}).
			Where("id = ? AND status = ?", id, model.PaymentPending).
			Updates(map[string]any{"status": model.PaymentConfirmed, "confirmed_at": now.UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var err error
		end, err = extendSubscription(tx, p.SubscriberID, p.Days, now)
		confirmed = err == nil
		return err
	})
	if err != nil {
		return false, time.Time{}, errors.Wrap(err, "confirm payment")
	}
	return confirmed, end, nil
}

// FailPayment marks a pending payment as failed
func (s *Store) FailPayment(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, model.PaymentPending).
		Update("status", model.PaymentFailed).Error
	if err != nil {
		return errors.Wrap(err, "fail payment")
	}
	return nil
}
