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

// Package matcher decides whether a chat message is an order for a subscriber.
package matcher

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// City is a canonical city name with the literal forms that identify it
type City struct {
	Name       string
	Variations []string
}

// Result of checking one message against one subscriber's filters
type Result struct {
	Match   bool
	Keyword string
	City    string
}

// Encapsulate a compiled keyword
type keywordRule struct {
	original string
	needle   string
}

// Encapsulate a compiled city filter
type cityRule struct {
	name       string
	variations []string
}

// Matcher holds one subscriber's compiled filters
type Matcher struct {
	keywords []keywordRule
	cities   []cityRule
}

// New compiles keyword and city filters, keeping their order
func New(keywords []string, cities []City) *Matcher {
	m := &Matcher{}
	for _, k := range keywords {
		needle := fold(k)
		if needle == "" {
			continue
		}
		m.keywords = append(m.keywords, keywordRule{original: k, needle: needle})
	}
	for _, c := range cities {
		rule := cityRule{name: c.Name}
		for _, v := range c.Variations {
			if v = strings.ToLower(v); v != "" {
				rule.variations = append(rule.variations, v)
			}
		}
		if len(rule.variations) == 0 {
			if v := strings.ToLower(strings.TrimSpace(c.Name)); v != "" {
				rule.variations = append(rule.variations, v)
			}
		}
		if len(rule.variations) > 0 {
			m.cities = append(m.cities, rule)
		}
	}
	return m
}

// Check runs the compiled filters over text
func (m *Matcher) Check(text string) Result {
	if len(m.keywords) == 0 || text == "" {
		return Result{}
	}

	folded := fold(text)
	keyword := ""
	for _, k := range m.keywords {
		if containsWord(folded, k.needle) {
			keyword = k.original
			break
		}
	}
	if keyword == "" {
		return Result{}
	}

	if len(m.cities) == 0 {
		return Result{Match: true, Keyword: keyword}
	}

	lowered := strings.ToLower(text)
	for _, c := range m.cities {
		for _, v := range c.variations {
			if strings.Contains(lowered, v) {
				return Result{Match: true, Keyword: keyword, City: c.name}
			}
		}
	}
	return Result{}
}

// Check is a one-shot convenience over New(...).Check
func Check(text string, keywords []string, cities []City) Result {
	return New(keywords, cities).Check(text)
}

// Lower-case and collapse whitespace runs so phrases match across line breaks
func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Report an occurrence of needle not glued to a neighbouring letter or digit
func containsWord(text, needle string) bool {
	for offset := 0; offset <= len(text)-len(needle); {
		idx := strings.Index(text[offset:], needle)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(needle)

		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}

		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	if unicode.IsDigit(r) {
		return true
	}
	return unicode.IsLetter(r) && (unicode.In(r, unicode.Latin, unicode.Cyrillic))
}
