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

	"github.com/go-faster/errors"
	"gorm.io/gorm/clause"

	"github.com/h3nc4/OrderScout/internal/model"
)

// BlacklistChat excludes a chat from dispatch and distribution
func (s *Store) BlacklistChat(ctx context.Context, chatID int64, name, reason string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.BlacklistedChat{ChatID: chatID, Name: name, Reason: reason}).Error
	if err != nil {
		return errors.Wrap(err, "blacklist chat")
	}
	return nil
}

func (s *Store) UnblacklistChat(ctx context.Context, chatID int64) error {
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&model.BlacklistedChat{}).Error
	if err != nil {
		return errors.Wrap(err, "unblacklist chat")
	}
	return nil
}

func (s *Store) IsBlacklisted(ctx context.Context, chatID int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.BlacklistedChat{}).Where("chat_id = ?", chatID).Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "check blacklist")
	}
	return n > 0, nil
}

func (s *Store) BlacklistedChats(ctx context.Context) ([]model.BlacklistedChat, error) {
	var out []model.BlacklistedChat
	err := s.db.WithContext(ctx).Order("chat_id").Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "list blacklist")
	}
	return out, nil
}
