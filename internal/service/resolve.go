package service

import (
	"sort"
	"strings"

	"ananke/internal/model"
)

// index — актуальная запись для каждой пары (description, identity).
type index map[model.Pair]model.Entry

// buildIndex picks the authoritative entry of every pair in one pass.
func buildIndex(entries []model.Entry) index {
	idx := make(index)
	for _, e := range entries {
		p := e.Pair()
		if cur, ok := idx[p]; !ok || e.Newer(cur) {
			idx[p] = e
		}
	}
	return idx
}

func matchesQuery(description, query string) bool {
	return strings.Contains(strings.ToLower(description), strings.ToLower(query))
}

func matchesIdentity(e model.Entry, identity *string) bool {
	return identity == nil || e.IdentityOrEmpty() == strings.TrimSpace(*identity)
}

// resolve возвращает актуальные записи, чьё описание содержит query
// (без учёта регистра) и чья идентичность совпадает с фильтром.
// Пары, удалённые надгробием, исключаются. Порядок — по времени создания
// актуальной записи, затем по id.
func resolve(entries []model.Entry, query string, identity *string) []model.Entry {
	var matched []model.Entry
	for _, e := range entries {
		if matchesQuery(e.Description, query) && matchesIdentity(e, identity) {
			matched = append(matched, e)
		}
	}
	var res []model.Entry
	for _, e := range buildIndex(matched) {
		if !e.IsTombstone() {
			res = append(res, e)
		}
	}
	sortEntries(res)
	return res
}

// matchPairs is resolve without dropping removed pairs.
func matchPairs(entries []model.Entry, query string, identity *string) []model.Pair {
	seen := make(map[model.Pair]bool)
	var pairs []model.Pair
	for _, e := range entries {
		if !matchesQuery(e.Description, query) || !matchesIdentity(e, identity) {
			continue
		}
		if p := e.Pair(); !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Description != pairs[j].Description {
			return pairs[i].Description < pairs[j].Description
		}
		return pairs[i].Identity < pairs[j].Identity
	})
	return pairs
}

// sortEntries orders oldest first; equal timestamps fall back to id.
func sortEntries(entries []model.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[j].Newer(entries[i])
	})
}

func findByID(entries []model.Entry, id string) (model.Entry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return model.Entry{}, false
}

func pairsOf(entries []model.Entry) []model.Pair {
	res := make([]model.Pair, 0, len(entries))
	for _, e := range entries {
		res = append(res, e.Pair())
	}
	return res
}
