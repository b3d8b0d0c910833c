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

package matcher

import (
	"fmt"
	"html"
	"strings"
)

// TextLimit is the number of characters of message text kept in a notification
const TextLimit = 500

// FormatNotification renders an order notification in Bot API HTML
func FormatNotification(groupName string, r Result, text, link string) string {
	var b strings.Builder
	b.WriteString("🔔 <b>Новый заказ!</b>\n\n")
	fmt.Fprintf(&b, "📍 Группа: %s\n", html.EscapeString(groupName))
	if r.Keyword != "" {
		fmt.Fprintf(&b, "🔤 Ключевое слово: %s\n", html.EscapeString(r.Keyword))
	}
	if r.City != "" {
		fmt.Fprintf(&b, "🏙 Город: %s\n", html.EscapeString(r.City))
	}
	if link != "" {
		fmt.Fprintf(&b, "🔗 <a href=\"%s\">Открыть сообщение</a>\n", html.EscapeString(link))
	}
	b.WriteString("\n📝 <b>Текст сообщения:</b>\n")
	b.WriteString(html.EscapeString(Truncate(text, TextLimit)))
	return b.String()
}

// Truncate cuts s to max characters and appends "..." when anything was cut
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}
