// Package relevance decides whether a process's concluded subsidies satisfy
// a user's configured relevant items.
//
// Matching is deliberately fuzzy: the portal labels the same checklist item
// inconsistently ("Prova Pericial" vs "Laudo de Prova Pericial Médica"), so
// after normalization a relevant item is satisfied when it contains, or is
// contained by, any concluded item. This trades precision for recall.
package relevance

import (
	"strings"

	"github.com/MDR-Advocacia/OneSid/internal/textnorm"
)

// Concluded statuses accepted by the portal, compared case-insensitively.
// Everything else, including the empty string, means not concluded.
var concludedStatuses = map[string]bool{
	"concluído": true,
	"concluido": true,
}

// IsConcluded reports whether a subsidy status string means "done".
func IsConcluded(status string) bool {
	return concludedStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// ConcludedItems returns the item names from a snapshot whose status is
// concluded. Order follows the snapshot.
func ConcludedItems(items []Item) []string {
	var out []string
	for _, it := range items {
		if IsConcluded(it.Status) {
			out = append(out, it.Name)
		}
	}
	return out
}

// Item is one subsidy row as observed in a scrape snapshot.
type Item struct {
	Name   string
	Status string
}

// AllRelevantSatisfied reports whether every relevant item finds at least
// one concluded item that matches it under normalized bidirectional
// substring containment. An empty relevant set is never satisfied: a user
// with nothing configured must not be flagged on every snapshot.
func AllRelevantSatisfied(relevant, concluded []string) bool {
	if len(relevant) == 0 {
		return false
	}

	normConcluded := make([]string, 0, len(concluded))
	for _, c := range concluded {
		if n := textnorm.Normalize(c); n != "" {
			normConcluded = append(normConcluded, n)
		}
	}

	for _, r := range relevant {
		nr := textnorm.Normalize(r)
		if !anyContains(nr, normConcluded) {
			return false
		}
	}
	return true
}

func anyContains(relevant string, concluded []string) bool {
	for _, c := range concluded {
		if strings.Contains(c, relevant) || strings.Contains(relevant, c) {
			return true
		}
	}
	return false
}
