package intent

import "encoding/json"

const (
	defaultBudgetChars = 12000
	maxBudgetChars      = 50000
	minBudgetChars      = 1000
)

// resolveBudget reads max_chars from the request, clamped to
// [minBudgetChars, maxBudgetChars], defaulting to defaultBudgetChars.
func resolveBudget(raw map[string]any) int {
	n := defaultBudgetChars
	if v, ok := raw["max_chars"].(float64); ok {
		n = int(v)
	}
	if n < minBudgetChars {
		n = minBudgetChars
	}
	if n > maxBudgetChars {
		n = maxBudgetChars
	}
	return n
}

func jsonSize(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}

// shrinkOrder lists keys of a result map in the order they should be
// dropped when the payload exceeds budget. Earlier entries are the least
// essential (dropped first).
var shrinkOrder = []string{
	"timeline",
	"recent_events",
	"subtree",
	"steps",
	"tasks",
	"plans",
	"blocked_items",
	"stale_items",
	"suggestions",
	"description",
	"context",
}

// fitToBudget drops shrinkOrder keys from result, in order, until its
// JSON encoding fits budget or nothing more can be dropped. It reports
// whether anything was dropped.
func fitToBudget(result map[string]any, budget int) (map[string]any, bool) {
	if jsonSize(result) <= budget {
		return result, false
	}
	shrunk := false
	for _, key := range shrinkOrder {
		if _, ok := result[key]; !ok {
			continue
		}
		delete(result, key)
		result["_truncated"] = true
		shrunk = true
		if jsonSize(result) <= budget {
			break
		}
	}
	return result, shrunk
}
