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
	"strings"
	"time"

	"github.com/go-faster/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/h3nc4/OrderScout/internal/model"
)

// EnsureSubscriber returns the subscriber for a Telegram account, creating it on first contact
func (s *Store) EnsureSubscriber(ctx context.Context, telegramID int64, username, responseText string) (*model.Subscriber, error) {
	var sub model.Subscriber
	err := s.db.WithContext(ctx).
		Where(model.Subscriber{TelegramID: telegramID}).
		Attrs(model.Subscriber{Username: username, ResponseText: responseText}).
		FirstOrCreate(&sub).Error
	if err != nil {
		return nil, errors.Wrap(err, "ensure subscriber")
	}

	if username != "" && sub.Username != username {
		if err := s.updateSubscriber(ctx, sub.ID, map[string]any{"username": username}); err != nil {
			return nil, err
		}
	}
	return s.Subscriber(ctx, sub.ID)
}

// Subscriber loads one subscriber with filters in stored order
func (s *Store) Subscriber(ctx context.Context, id int64) (*model.Subscriber, error) {
	var sub model.Subscriber
	err := withFilters(s.db.WithContext(ctx)).First(&sub, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// SubscriberByTelegramID loads one subscriber by account ID
func (s *Store) SubscriberByTelegramID(ctx context.Context, telegramID int64) (*model.Subscriber, error) {
	var sub model.Subscriber
	err := withFilters(s.db.WithContext(ctx)).Where("telegram_id = ?", telegramID).First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *Store) SetSession(ctx context.Context, id int64, session string) error {
	return s.updateSubscriber(ctx, id, map[string]any{"session": session, "last_error": ""})
}

func (s *Store) SetMonitoring(ctx context.Context, id int64, enabled bool) error {
	return s.updateSubscriber(ctx, id, map[string]any{"monitoring_enabled": enabled})
}

func (s *Store) SetResponseText(ctx context.Context, id int64, text string) error {
	return s.updateSubscriber(ctx, id, map[string]any{"response_text": text})
}

// SetBanned bans or unbans a subscriber. Banning also stops monitoring.
func (s *Store) SetBanned(ctx context.Context, id int64, banned bool) error {
	fields := map[string]any{"is_banned": banned}
	if banned {
		fields["monitoring_enabled"] = false
	}
	return s.updateSubscriber(ctx, id, fields)
}

// SetSubscriberError records the last connection failure for the owner
func (s *Store) SetSubscriberError(ctx context.Context, id int64, msg string) error {
	return s.updateSubscriber(ctx, id, map[string]any{"last_error": msg})
}

// ExpireSession clears an invalid credential and stops monitoring
func (s *Store) ExpireSession(ctx context.Context, id int64, msg string) error {
	return s.updateSubscriber(ctx, id, map[string]any{
		"session":            "",
		"monitoring_enabled": false,
		"last_error":         msg,
	})
}

// ExtendSubscription adds days to the current end when it is still in the future, or to now otherwise
func (s *Store) ExtendSubscription(ctx context.Context, id int64, days int, now time.Time) (time.Time, error) {
	var end time.Time
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		end, err = extendSubscription(tx, id, days, now)
		return err
	})
	return end, err
}

func extendSubscription(tx *gorm.DB, id int64, days int, now time.Time) (time.Time, error) {
	var sub model.Subscriber
	if err := tx.First(&sub, id).Error; err != nil {
		return time.Time{}, notFound(err)
	}

	start := now.UTC()
	if sub.SubscriptionEnd != nil && sub.SubscriptionEnd.After(start) {
		start = sub.SubscriptionEnd.UTC()
	}
	end := start.AddDate(0, 0, days)

	err := tx.Model(&model.Subscriber{}).Where("id = ?", id).Updates(map[string]any{
		"subscription_end": end,
		"is_active":        true,
		"reminder_sent_at": nil,
	}).Error
	if err != nil {
		return time.Time{}, errors.Wrap(err, "extend subscription")
	}
	return end, nil
}

// MonitoringSubscribers lists subscribers left monitoring by a previous run that can still do so
func (s *Store) MonitoringSubscribers(ctx context.Context, now time.Time) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	err := s.db.WithContext(ctx).
		Where("monitoring_enabled = ? AND is_banned = ?", true, false).
		Where("subscription_end > ?", now.UTC()).
		Where("session <> ''").
		Order("id").
		Find(&subs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list monitoring subscribers")
	}
	return subs, nil
}

// InterestedSubscribers lists eligible subscribers with chatID among their enabled targets
func (s *Store) InterestedSubscribers(ctx context.Context, chatID int64, now time.Time) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	err := withFilters(s.db.WithContext(ctx)).
		Joins("JOIN watch_targets ON watch_targets.subscriber_id = subscribers.id").
		Where("watch_targets.chat_id = ? AND watch_targets.enabled = ?", chatID, true).
		Where("subscribers.monitoring_enabled = ? AND subscribers.is_banned = ?", true, false).
		Where("subscribers.subscription_end > ?", now.UTC()).
		Order("subscribers.id").
		Find(&subs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list interested subscribers")
	}
	return subs, nil
}

// EligibleSubscriber returns the subscriber only when it is eligible and watches chatID
func (s *Store) EligibleSubscriber(ctx context.Context, id, chatID int64, now time.Time) (*model.Subscriber, error) {
	var sub model.Subscriber
	err := withFilters(s.db.WithContext(ctx)).
		Joins("JOIN watch_targets ON watch_targets.subscriber_id = subscribers.id").
		Where("subscribers.id = ?", id).
		Where("watch_targets.chat_id = ? AND watch_targets.enabled = ?", chatID, true).
		Where("subscribers.monitoring_enabled = ? AND subscribers.is_banned = ?", true, false).
		Where("subscribers.subscription_end > ?", now.UTC()).
		First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// ExpiringSubscribers lists paid subscribers ending within the window that were not reminded in the last day
func (s *Store) ExpiringSubscribers(ctx context.Context, now time.Time, within time.Duration) ([]model.Subscriber, error) {
	now = now.UTC()
	var subs []model.Subscriber
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND is_banned = ?", true, false).
		Where("subscription_end > ? AND subscription_end <= ?", now, now.Add(within)).
		Where("(reminder_sent_at IS NULL OR reminder_sent_at <= ?)", now.Add(-24*time.Hour)).
		Order("id").
		Find(&subs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list expiring subscribers")
	}
	return subs, nil
}

func (s *Store) MarkReminderSent(ctx context.Context, id int64, now time.Time) error {
	return s.updateSubscriber(ctx, id, map[string]any{"reminder_sent_at": now.UTC()})
}

// ExpiredSubscribers lists subscribers still marked active past their end
func (s *Store) ExpiredSubscribers(ctx context.Context, now time.Time) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("(subscription_end IS NULL OR subscription_end <= ?)", now.UTC()).
		Order("id").
		Find(&subs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list expired subscribers")
	}
	return subs, nil
}

// DeactivateSubscriber ends monitoring and clears the session of an expired subscriber
func (s *Store) DeactivateSubscriber(ctx context.Context, id int64) error {
	return s.updateSubscriber(ctx, id, map[string]any{
		"is_active":          false,
		"monitoring_enabled": false,
		"session":            "",
	})
}

// AddKeyword stores a lowercased keyword. It reports false when it already existed.
func (s *Store) AddKeyword(ctx context.Context, subscriberID int64, word string) (bool, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return false, errors.New("empty keyword")
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Keyword{SubscriberID: subscriberID, Word: word})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "add keyword")
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) RemoveKeyword(ctx context.Context, subscriberID int64, word string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("subscriber_id = ? AND word = ?", subscriberID, strings.ToLower(strings.TrimSpace(word))).
		Delete(&model.Keyword{})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "remove keyword")
	}
	return res.RowsAffected > 0, nil
}

// AddCity stores a city filter with its precomputed variations
func (s *Store) AddCity(ctx context.Context, subscriberID int64, name string, variations []string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, errors.New("empty city name")
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.City{SubscriberID: subscriberID, Name: name, Variations: variations})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "add city")
	}
	return res.RowsAffected > 0, nil
}

// RemoveCity deletes a city filter by name, ignoring case
func (s *Store) RemoveCity(ctx context.Context, subscriberID int64, name string) (bool, error) {
	var cities []model.City
	if err := s.db.WithContext(ctx).Where("subscriber_id = ?", subscriberID).Find(&cities).Error; err != nil {
		return false, errors.Wrap(err, "list cities")
	}

	name = strings.TrimSpace(name)
	for _, c := range cities {
		if strings.EqualFold(c.Name, name) {
			if err := s.db.WithContext(ctx).Delete(&model.City{}, c.ID).Error; err != nil {
				return false, errors.Wrap(err, "remove city")
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) updateSubscriber(ctx context.Context, id int64, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&model.Subscriber{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update subscriber")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func withFilters(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Keywords", func(db *gorm.DB) *gorm.DB { return db.Order("keywords.id") }).
		Preload("Cities", func(db *gorm.DB) *gorm.DB { return db.Order("cities.id") })
}
