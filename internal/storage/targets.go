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

// SyncResult summarizes a watch-target sync
type SyncResult struct {
	Added   int
	Renamed int
	Removed int
}

// SyncWatchTargets merges the subscriber's current chat memberships into its
// watch targets. New chats start disabled. When two chats share a display name
// the supergroup-shaped ID survives and inherits the enabled flag.
func (s *Store) SyncWatchTargets(ctx context.Context, subscriberID int64, chats []model.Chat) (SyncResult, error) {
	var res SyncResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []model.WatchTarget
		if err := tx.Where("subscriber_id = ?", subscriberID).Find(&existing).Error; err != nil {
			return err
		}
		byChat := make(map[int64]model.WatchTarget, len(existing))
		for _, t := range existing {
			byChat[t.ChatID] = t
		}

		for _, c := range dedupChats(chats) {
			t, ok := byChat[c.ID]
			switch {
			case !ok:
				if err := tx.Create(&model.WatchTarget{SubscriberID: subscriberID, ChatID: c.ID, Name: c.Name}).Error; err != nil {
					return err
				}
				res.Added++
			case t.Name != c.Name:
				if err := tx.Model(&model.WatchTarget{}).Where("id = ?", t.ID).Update("name", c.Name).Error; err != nil {
					return err
				}
				res.Renamed++
			}
		}

		removed, err := collapseDuplicateNames(tx, subscriberID)
		res.Removed = removed
		return err
	})
	if err != nil {
		return SyncResult{}, errors.Wrap(err, "sync watch targets")
	}
	return res, nil
}

// Keep one chat per display name, preferring the supergroup ID
func dedupChats(chats []model.Chat) []model.Chat {
	index := make(map[string]int, len(chats))
	out := make([]model.Chat, 0, len(chats))
	seenID := make(map[int64]bool, len(chats))
	for _, c := range chats {
		if seenID[c.ID] {
			continue
		}
		seenID[c.ID] = true

		i, dup := index[c.Name]
		if !dup {
			index[c.Name] = len(out)
			out = append(out, c)
			continue
		}
		if model.IsSupergroupID(c.ID) && !model.IsSupergroupID(out[i].ID) {
			out[i] = c
		}
	}
	return out
}

func collapseDuplicateNames(tx *gorm.DB, subscriberID int64) (int, error) {
	var targets []model.WatchTarget
	if err := tx.Where("subscriber_id = ?", subscriberID).Order("id").Find(&targets).Error; err != nil {
		return 0, err
	}

	groups := make(map[string][]model.WatchTarget)
	var names []string
	for _, t := range targets {
		if _, ok := groups[t.Name]; !ok {
			names = append(names, t.Name)
		}
		groups[t.Name] = append(groups[t.Name], t)
	}

	removed := 0
	for _, name := range names {
		group := groups[name]
		if len(group) < 2 {
			continue
		}

		survivor := group[0]
		enabled := false
		for _, t := range group {
			enabled = enabled || t.Enabled
			if model.IsSupergroupID(t.ChatID) && !model.IsSupergroupID(survivor.ChatID) {
				survivor = t
			}
		}

		for _, t := range group {
			if t.ID == survivor.ID {
				continue
			}
			if err := tx.Delete(&model.WatchTarget{}, t.ID).Error; err != nil {
				return removed, err
			}
			removed++
		}
		if enabled && !survivor.Enabled {
			if err := tx.Model(&model.WatchTarget{}).Where("id = ?", survivor.ID).Update("enabled", true).Error; err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

// WatchTargets lists a subscriber's targets ordered by name
func (s *Store) WatchTargets(ctx context.Context, subscriberID int64) ([]model.WatchTarget, error) {
	var targets []model.WatchTarget
	err := s.db.WithContext(ctx).Where("subscriber_id = ?", subscriberID).Order("name, id").Find(&targets).Error
	if err != nil {
		return nil, errors.Wrap(err, "list watch targets")
	}
	return targets, nil
}

// EnabledChatIDs returns the authoritative watch-list of a subscriber's own connection
func (s *Store) EnabledChatIDs(ctx context.Context, subscriberID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&model.WatchTarget{}).
		Where("subscriber_id = ? AND enabled = ?", subscriberID, true).
		Order("chat_id").
		Pluck("chat_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "list enabled chats")
	}
	return ids, nil
}

// SetWatchTargetEnabled toggles one target
func (s *Store) SetWatchTargetEnabled(ctx context.Context, subscriberID, chatID int64, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&model.WatchTarget{}).
		Where("subscriber_id = ? AND chat_id = ?", subscriberID, chatID).
		Update("enabled", enabled)
	if res.Error != nil {
		return errors.Wrap(res.Error, "toggle watch target")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DemandedChats returns every chat some eligible subscriber wants watched,
// excluding blacklisted chats, ordered by chat ID.
func (s *Store) DemandedChats(ctx context.Context, now time.Time) ([]model.Chat, error) {
	var chats []model.Chat
	err := s.db.WithContext(ctx).Model(&model.WatchTarget{}).
		Select("watch_targets.chat_id AS id, MIN(watch_targets.name) AS name").
		Joins("JOIN subscribers ON subscribers.id = watch_targets.subscriber_id").
		Where("watch_targets.enabled = ?", true).
		Where("subscribers.monitoring_enabled = ? AND subscribers.is_banned = ?", true, false).
		Where("subscribers.subscription_end > ?", now.UTC()).
		Where("watch_targets.chat_id NOT IN (?)", s.db.Model(&model.BlacklistedChat{}).Select("chat_id")).
		Group("watch_targets.chat_id").
		Order("watch_targets.chat_id").
		Scan(&chats).Error
	if err != nil {
		return nil, errors.Wrap(err, "list demanded chats")
	}
	return chats, nil
}
