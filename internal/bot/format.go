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
	"fmt"
	"strings"
	"time"

	"github.com/h3nc4/OrderScout/internal/distributor"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/monitor"
)

// Groups shown by /groups before the list is cut
const groupListLimit = 50

// FormatStatus summarizes a subscriber's subscription, filters and groups
func FormatStatus(sub *model.Subscriber, targets []model.WatchTarget, now time.Time) string {
	var b strings.Builder
	if sub.HasActiveSubscription(now) {
		fmt.Fprintf(&b, "💳 Подписка до %s\n", sub.SubscriptionEnd.Format("02.01.2006"))
	} else {
		b.WriteString("💳 Подписка не активна (/pay)\n")
	}
	if sub.MonitoringEnabled {
		b.WriteString("📡 Мониторинг: включен\n")
	} else {
		b.WriteString("📡 Мониторинг: выключен\n")
	}

	enabled := 0
	for _, t := range targets {
		if t.Enabled {
			enabled++
		}
	}
	fmt.Fprintf(&b, "👥 Группы: %d из %d\n", enabled, len(targets))

	words := sub.KeywordList()
	if len(words) == 0 {
		b.WriteString("🔤 Ключевые слова: нет\n")
	} else {
		fmt.Fprintf(&b, "🔤 Ключевые слова: %s\n", strings.Join(words, ", "))
	}
	if len(sub.Cities) == 0 {
		b.WriteString("🏙 Города: любые\n")
	} else {
		names := make([]string, 0, len(sub.Cities))
		for _, c := range sub.Cities {
			names = append(names, c.Name)
		}
		fmt.Fprintf(&b, "🏙 Города: %s\n", strings.Join(names, ", "))
	}
	if sub.LastError != "" {
		fmt.Fprintf(&b, "⚠️ Последняя ошибка: %s\n", sub.LastError)
	}
	return b.String()
}

// FormatGroups lists watch targets with their enabled state
func FormatGroups(targets []model.WatchTarget) string {
	if len(targets) == 0 {
		return "Групп пока нет. Загрузите их командой /groups_sync"
	}
	var b strings.Builder
	b.WriteString("Ваши группы:\n")
	for i, t := range targets {
		if i == groupListLimit {
			fmt.Fprintf(&b, "\n…и еще %d", len(targets)-groupListLimit)
			break
		}
		mark := "⬜"
		if t.Enabled {
			mark = "✅"
		}
		fmt.Fprintf(&b, "\n%s %s (%d)", mark, t.Name, t.ChatID)
	}
	return b.String()
}

// FormatBulkResult reports the outcome of /groups_enable
func FormatBulkResult(res monitor.BulkResult) string {
	var b strings.Builder
	if len(res.Enabled) > 0 {
		b.WriteString("✅ Включены:\n")
		for _, t := range res.Enabled {
			fmt.Fprintf(&b, "• %s\n", t.Name)
		}
	}
	if len(res.Suggested) > 0 {
		b.WriteString("\n❓ Возможно, вы имели в виду:\n")
		for _, s := range res.Suggested {
			fmt.Fprintf(&b, "• «%s» → %s (/group_on %d)\n", s.Query, s.Target.Name, s.Target.ChatID)
		}
	}
	if len(res.NotFound) > 0 {
		b.WriteString("\n❌ Не найдены:\n")
		for _, q := range res.NotFound {
			fmt.Fprintf(&b, "• %s\n", q)
		}
	}
	if b.Len() == 0 {
		return "Ничего не найдено."
	}
	return strings.TrimSpace(b.String())
}

// FormatStats renders the worker distribution for operators
func FormatStats(s distributor.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Наблюдатели: %d (активных %d)\n", s.TotalWorkers, s.ActiveWorkers)
	fmt.Fprintf(&b, "Группы: %d из %d\n", s.AssignedGroups, s.TotalCapacity)
	for _, w := range s.Workers {
		state := "🟢"
		if !w.IsActive {
			state = "🔴"
		}
		fmt.Fprintf(&b, "\n%s #%d %s: %d/%d", state, w.ID, w.Name, w.GroupsCount, w.MaxGroups)
		if w.LastError != "" {
			fmt.Fprintf(&b, "\n   ⚠️ %s", w.LastError)
		}
	}
	return b.String()
}
