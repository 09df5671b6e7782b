package domain

import "sort"

// Merge reconciles freshly normalized notifications with the previously
// known collection. Items whose ID already exists keep their previous entry
// verbatim — read-state and text stay stable even when the feed rewords a
// known incident. New IDs are appended; when one batch carries duplicate new
// IDs the last one wins. The result is sorted by CreatedAt descending with
// ties broken by ID, and neither input slice is mutated.
//
// Merge is idempotent: applying the same batch twice changes nothing after
// the first application.
func Merge(previous, incoming []Notification) []Notification {
	seen := make(map[string]struct{}, len(previous))
	merged := make([]Notification, 0, len(previous)+len(incoming))

	for _, n := range previous {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		merged = append(merged, n)
	}

	fresh := make(map[string]int, len(incoming))
	for _, n := range incoming {
		if _, known := seen[n.ID]; known {
			continue
		}
		if i, dup := fresh[n.ID]; dup {
			merged[i] = n
			continue
		}
		merged = append(merged, n)
		fresh[n.ID] = len(merged) - 1
	}

	SortByCreatedAt(merged)
	return merged
}

// SortByCreatedAt orders notifications newest-first, breaking timestamp
// ties by ID so views always see the same deterministic order.
func SortByCreatedAt(items []Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
