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

// Package fuzzy scores free-text group name queries against known group names.
package fuzzy

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultThreshold is the minimum score accepted as a match
const DefaultThreshold = 0.4

// DefaultLimit caps FindMatches results
const DefaultLimit = 5

var lower = cases.Lower(language.Russian)

// Match is one scored candidate
type Match[T any] struct {
	Item  T
	Score float64
}

// Normalize lower-cases, collapses whitespace and folds ё to е
func Normalize(s string) string {
	s = lower.String(s)
	s = strings.ReplaceAll(s, "ё", "е")
	return strings.Join(strings.Fields(s), " ")
}

// Score rates how well query describes name in [0, 1]
func Score(query, name string) float64 {
	q, n := Normalize(query), Normalize(name)
	if q == "" || n == "" {
		return 0
	}

	if strings.Contains(n, q) {
		return 0.9 + float64(len([]rune(q)))/float64(len([]rune(n)))*0.1
	}

	queryWords := strings.Fields(q)
	nameWords := strings.Fields(n)
	matching := 0
	for _, w := range queryWords {
		for _, nw := range nameWords {
			if strings.Contains(nw, w) || strings.Contains(w, nw) {
				matching++
				break
			}
		}
	}
	if matching > 0 {
		overlap := float64(matching) / float64(len(queryWords))
		return overlap*0.6 + Ratio(q, n)*0.4
	}

	return Ratio(q, n)
}

// FindBestMatch returns the highest-scoring candidate when its score reaches threshold
func FindBestMatch[T any](query string, candidates []T, nameOf func(T) string, threshold float64) (T, float64, bool) {
	var best T
	bestScore := 0.0
	found := false
	for _, c := range candidates {
		score := Score(query, nameOf(c))
		if score > bestScore {
			best, bestScore, found = c, score, true
		}
	}
	if !found || bestScore < threshold {
		var zero T
		return zero, 0, false
	}
	return best, bestScore, true
}

// FindMatches returns up to limit candidates scoring at least threshold, best first
func FindMatches[T any](query string, candidates []T, nameOf func(T) string, threshold float64, limit int) []Match[T] {
	var out []Match[T]
	for _, c := range candidates {
		if score := Score(query, nameOf(c)); score >= threshold {
			out = append(out, Match[T]{Item: c, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
