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

package monitor

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/fuzzy"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/storage"
	"github.com/h3nc4/OrderScout/internal/telegram"
)

// Names scoring at least this are enabled without asking
const confidentScore = 0.6

// SyncGroups merges the subscriber's current group memberships into its watch targets
func (m *Monitor) SyncGroups(ctx context.Context, subscriberID int64) (storage.SyncResult, error) {
	sub, err := m.store.Subscriber(ctx, subscriberID)
	if err != nil {
		return storage.SyncResult{}, err
	}
	chats, err := m.listGroups(ctx, sub)
	if err != nil {
		return storage.SyncResult{}, err
	}

	res, err := m.store.SyncWatchTargets(ctx, sub.ID, chats)
	if err != nil {
		return res, err
	}
	m.log.Info("Synced groups",
		zap.Int64("subscriber_id", sub.ID),
		zap.Int("groups", len(chats)),
		zap.Int("added", res.Added),
		zap.Int("renamed", res.Renamed),
		zap.Int("removed", res.Removed),
	)
	if res.Removed > 0 {
		return res, m.targetsChanged(ctx, sub.ID)
	}
	return res, nil
}

// List memberships through the running connection, or a short-lived one
func (m *Monitor) listGroups(ctx context.Context, sub *model.Subscriber) ([]model.Chat, error) {
	if m.mode == config.ModeUser && m.users != nil {
		if c, ok := m.users.Get(sub.ID); ok && c.State() == telegram.StateRunning {
			if l, ok := c.(groupLister); ok {
				return l.ListGroups(ctx)
			}
		}
	}

	if sub.Session == "" || m.clients == nil {
		return nil, ErrNoSession
	}
	var chats []model.Chat
	err := m.clients(sub.Session).Run(ctx, func(ctx context.Context, api *tg.Client) error {
		var err error
		chats, err = telegram.ListGroups(ctx, api)
		return err
	})
	if telegram.IsAuthError(err) {
		if xerr := m.store.ExpireSession(ctx, sub.ID, err.Error()); xerr != nil {
			m.log.Error("Failed to expire session", zap.Int64("subscriber_id", sub.ID), zap.Error(xerr))
		}
		return nil, ErrNoSession
	}
	return chats, err
}

// SetGroupEnabled toggles one watch target
func (m *Monitor) SetGroupEnabled(ctx context.Context, subscriberID, chatID int64, enabled bool) error {
	if err := m.store.SetWatchTargetEnabled(ctx, subscriberID, chatID, enabled); err != nil {
		return err
	}
	if err := m.targetsChanged(ctx, subscriberID); err != nil {
		return err
	}
	if !enabled && m.mode == config.ModeShared {
		return m.release(ctx, chatID)
	}
	return nil
}

// Suggestion is a moderate-confidence match left for the user to confirm
type Suggestion struct {
	Query  string
	Target model.WatchTarget
	Score  float64
}

// BulkResult reports the outcome of each requested name
type BulkResult struct {
	Enabled   []model.WatchTarget
	Suggested []Suggestion
	NotFound  []string
}

// BulkEnable enables groups named in free text, one name per comma or line.
// A case-insensitive substring match or a fuzzy score of at least 0.6 enables
// the group; weaker matches above the threshold are only suggested.
func (m *Monitor) BulkEnable(ctx context.Context, subscriberID int64, input string) (BulkResult, error) {
	var res BulkResult
	targets, err := m.store.WatchTargets(ctx, subscriberID)
	if err != nil {
		return res, err
	}

	enabled := map[int64]bool{}
	for _, query := range splitNames(input) {
		t, score, ok := m.resolve(query, targets)
		switch {
		case !ok:
			res.NotFound = append(res.NotFound, query)
		case score < confidentScore:
			res.Suggested = append(res.Suggested, Suggestion{Query: query, Target: t, Score: score})
		case !enabled[t.ChatID]:
			enabled[t.ChatID] = true
			if err := m.store.SetWatchTargetEnabled(ctx, subscriberID, t.ChatID, true); err != nil {
				return res, errors.Wrapf(err, "enable %q", t.Name)
			}
			t.Enabled = true
			res.Enabled = append(res.Enabled, t)
		}
	}

	if len(res.Enabled) > 0 {
		return res, m.targetsChanged(ctx, subscriberID)
	}
	return res, nil
}

// Find the target a query names: substring first, then fuzzy score
func (m *Monitor) resolve(query string, targets []model.WatchTarget) (model.WatchTarget, float64, bool) {
	q := fuzzy.Normalize(query)
	for _, t := range targets {
		if strings.Contains(fuzzy.Normalize(t.Name), q) {
			return t, 1, true
		}
	}
	return fuzzy.FindBestMatch(query, targets, func(t model.WatchTarget) string { return t.Name }, m.threshold)
}

func splitNames(input string) []string {
	parts := strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == '\n' || r == ';' })
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
