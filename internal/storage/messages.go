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
	"gorm.io/gorm/clause"

	"github.com/h3nc4/OrderScout/internal/model"
)

// SaveObservedMessage stores m once per (chat, message, scope) and returns the stored row
func (s *Store) SaveObservedMessage(ctx context.Context, m *model.ObservedMessage) (*model.ObservedMessage, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	m.Scope = model.ObservedScope(m.SourceKind, m.SourceID, m.ChatID)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "chat_id"}, {Name: "message_id"}, {Name: "scope"}}, DoNothing: true}).
		Create(m)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "save observed message")
	}
	if res.RowsAffected > 0 {
		return m, nil
	}

	var stored model.ObservedMessage
	err := s.db.WithContext(ctx).
		Where("chat_id = ? AND message_id = ? AND scope = ?", m.ChatID, m.MessageID, m.Scope).
		First(&stored).Error
	if err != nil {
		return nil, errors.Wrap(notFound(err), "load observed message")
	}
	return &stored, nil
}

// CreateDelivery records a match, reporting false when the pair was already delivered
func (s *Store) CreateDelivery(ctx context.Context, d *model.Delivery) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "observed_message_id"}, {Name: "subscriber_id"}}, DoNothing: true}).
		Create(d)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "create delivery")
	}
	return res.RowsAffected > 0, nil
}

// CreateOrder stores o once per (subscriber, chat, message). When it already
// exists o is filled from the stored row and false is returned.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "subscriber_id"}, {Name: "chat_id"}, {Name: "message_id"}}, DoNothing: true}).
		Create(o)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "create order")
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	err := s.db.WithContext(ctx).
		Where("subscriber_id = ? AND chat_id = ? AND message_id = ?", o.SubscriberID, o.ChatID, o.MessageID).
		First(o).Error
	if err != nil {
		return false, errors.Wrap(notFound(err), "load order")
	}
	return false, nil
}

func (s *Store) Order(ctx context.Context, id int64) (*model.Order, error) {
	var o model.Order
	if err := s.db.WithContext(ctx).First(&o, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

// ClaimOrder flips responded from false to true, reporting whether this call won
func (s *Store) ClaimOrder(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND responded = ?", id, false).
		Updates(map[string]any{"responded": true, "responded_at": now.UTC()})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "claim order")
	}
	return res.RowsAffected == 1, nil
}

// ReleaseOrder undoes a claim whose reply could not be sent
func (s *Store) ReleaseOrder(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{"responded": false, "responded_at": nil}).Error
	if err != nil {
		return errors.Wrap(err, "release order")
	}
	return nil
}

// PurgeResult counts rows removed by a retention sweep
type PurgeResult struct {
	Messages   int64
	Deliveries int64
}

// PurgeBefore deletes observed messages older than cutoff together with their deliveries
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (PurgeResult, error) {
	var res PurgeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old := tx.Model(&model.ObservedMessage{}).Select("id").Where("created_at < ?", cutoff.UTC())

		d := tx.Where("observed_message_id IN (?)", old).Delete(&model.Delivery{})
		if d.Error != nil {
			return d.Error
		}
		res.Deliveries = d.RowsAffected

		m := tx.Where("created_at < ?", cutoff.UTC()).Delete(&model.ObservedMessage{})
		if m.Error != nil {
			return m.Error
		}
		res.Messages = m.RowsAffected
		return nil
	})
	if err != nil {
		return PurgeResult{}, errors.Wrap(err, "purge observed messages")
	}
	return res, nil
}
