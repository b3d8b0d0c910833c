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

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/h3nc4/OrderScout/internal/variation"
)

var title = cases.Title(language.Russian)

func (m *Monitor) AddKeyword(ctx context.Context, subscriberID int64, word string) (bool, error) {
	return m.store.AddKeyword(ctx, subscriberID, word)
}

func (m *Monitor) RemoveKeyword(ctx context.Context, subscriberID int64, word string) (bool, error) {
	return m.store.RemoveKeyword(ctx, subscriberID, word)
}

// AddCity stores a city filter under its canonical name with precomputed variations
func (m *Monitor) AddCity(ctx context.Context, subscriberID int64, name string) (string, bool, error) {
	display := name
	if canonical, ok := variation.Canonical(name); ok {
		display = title.String(canonical)
	}
	added, err := m.store.AddCity(ctx, subscriberID, display, variation.City(name))
	return display, added, err
}

func (m *Monitor) RemoveCity(ctx context.Context, subscriberID int64, name string) (bool, error) {
	if canonical, ok := variation.Canonical(name); ok {
		name = canonical
	}
	return m.store.RemoveCity(ctx, subscriberID, name)
}
