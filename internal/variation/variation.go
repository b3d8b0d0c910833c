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

// Package variation expands keywords and city names into the literal forms
// treated as equivalent when matching message text.
package variation

import (
	"slices"
	"strings"
)

const vowels = "аеёиоуыэюя"

// Bounds on phrase combinations: forms taken per word for two- and three-word phrases
const (
	pairForms   = 3
	tripleForms = 2
)

// City returns the variation set for a city name. Known cities resolve through
// the curated alias table (by canonical name or any alias) including their
// satellite localities; unknown names fall back to Word.
func City(name string) []string {
	key := normalize(name)
	if key == "" {
		return nil
	}

	if entry, ok := cities[key]; ok {
		return entry.expand()
	}
	for _, entry := range cities {
		if slices.Contains(entry.aliases, key) {
			return entry.expand()
		}
	}
	return Word(name)
}

// Canonical returns the canonical table name for a known city or alias
func Canonical(name string) (string, bool) {
	key := normalize(name)
	if _, ok := cities[key]; ok {
		return key, true
	}
	for canonical, entry := range cities {
		if slices.Contains(entry.aliases, key) {
			return canonical, true
		}
	}
	return "", false
}

// Word returns the original term plus rule-based case-ending candidates.
// Phrases of two or three words get a bounded product of per-word forms.
func Word(term string) []string {
	term = normalize(term)
	if term == "" {
		return nil
	}

	set := map[string]struct{}{term: {}}
	words := strings.Fields(term)
	switch {
	case len(words) == 1:
		for _, v := range inflect(term) {
			set[v] = struct{}{}
		}
	case len(words) <= 3:
		for _, v := range phrase(words) {
			set[v] = struct{}{}
		}
	}
	return sorted(set)
}

func (e cityEntry) expand() []string {
	set := make(map[string]struct{}, len(e.aliases)+len(e.suburbs))
	for _, a := range e.aliases {
		set[a] = struct{}{}
	}
	for _, s := range e.suburbs {
		set[strings.ToLower(s)] = struct{}{}
	}
	return sorted(set)
}

func phrase(words []string) []string {
	limit := pairForms
	if len(words) == 3 {
		limit = tripleForms
	}

	forms := make([][]string, len(words))
	for i, w := range words {
		forms[i] = leading(w, inflect(w), limit)
	}

	combos := []string{""}
	for _, fs := range forms {
		next := make([]string, 0, len(combos)*len(fs))
		for _, prefix := range combos {
			for _, f := range fs {
				if prefix == "" {
					next = append(next, f)
				} else {
					next = append(next, prefix+" "+f)
				}
			}
		}
		combos = next
	}
	return combos
}

// Pick the word itself followed by the first limit-1 other forms
func leading(word string, forms []string, limit int) []string {
	out := []string{word}
	for _, f := range forms {
		if len(out) == limit {
			break
		}
		if f != word {
			out = append(out, f)
		}
	}
	return out
}

func inflect(word string) []string {
	r := []rune(word)
	if len(r) < 3 {
		return []string{word}
	}

	set := map[string]struct{}{word: {}}
	add := func(base string, endings ...string) {
		for _, e := range endings {
			set[base+e] = struct{}{}
		}
	}

	last := r[len(r)-1]
	stem1 := string(r[:len(r)-1])

	switch {
	case last == 'а':
		add(stem1, "а", "ы", "е", "у", "ой", "ою", "ам", "ами", "ах")
	case last == 'я':
		add(stem1, "я", "и", "е", "ю", "ей", "ям", "ями", "ях")
	case strings.ContainsRune("кгхжшщчц", last):
		add(word, "а", "у", "ом", "е", "и", "ов", "ам", "ами", "ах")
	case !strings.ContainsRune(vowels, last) && last != 'ь' && last != 'й':
		add(word, "а", "у", "ом", "е", "ы", "ов", "ам", "ами", "ах")
	}

	switch last {
	case 'ь':
		add(stem1, "ь", "я", "ю", "ем", "ём", "е", "и", "ей", "ям", "ями", "ях")
	case 'й':
		add(stem1, "й", "я", "ю", "ем", "е", "и", "ев", "ям", "ями", "ях")
	case 'о':
		add(stem1, "о", "а", "у", "ом", "е")
	case 'е':
		if len(r) > 3 {
			add(stem1, "е", "я", "ю", "ем", "и")
		}
	}

	if strings.HasSuffix(word, "ть") {
		add(string(r[:len(r)-2]), "ть", "ю", "у", "ешь", "ёшь", "ет", "ёт", "ем", "ём", "ете", "ёте", "ют", "ут", "л", "ла", "ло", "ли", "й", "йте")
	}
	if strings.HasSuffix(word, "ый") || strings.HasSuffix(word, "ий") || strings.HasSuffix(word, "ой") {
		add(string(r[:len(r)-2]), "ый", "ий", "ой", "ая", "яя", "ое", "ее", "ые", "ие", "ого", "его", "ому", "ему", "ым", "им", "ом", "ем", "ую", "юю")
	}

	return sorted(set)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
