package series

import (
	"sort"

	"github.com/ohlc-tools/history-repair/internal/model"
)

// Dedupe collapses candles sharing an OpenTime. Among colliding rows the
// later entry in original order wins, since later rows come from fresher
// re-fetches. Relative order of surviving rows is preserved.
func Dedupe(s model.Series) (model.Series, int) {
	if len(s) < 2 {
		return s, 0
	}

	lastIdx := make(map[int64]int, len(s))
	for i, c := range s {
		lastIdx[c.OpenTime] = i
	}
	if len(lastIdx) == len(s) {
		return s, 0
	}

	out := make(model.Series, 0, len(lastIdx))
	for i, c := range s {
		if lastIdx[c.OpenTime] == i {
			out = append(out, c)
		}
	}
	return out, len(s) - len(out)
}

// SortAscending stable-sorts by OpenTime.
func SortAscending(s model.Series) model.Series {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].OpenTime < s[j].OpenTime
	})
	return s
}

// Merge folds a fetched patch into the base series. Patch rows win over
// base rows with the same OpenTime. Applying the same patch twice is a no-op.
func Merge(base, patch model.Series) (model.Series, int) {
	if len(patch) == 0 {
		return base, 0
	}
	merged := make(model.Series, 0, len(base)+len(patch))
	merged = append(merged, base...)
	merged = append(merged, patch...)
	merged, _ = Dedupe(merged)
	SortAscending(merged)
	return merged, len(merged) - len(base)
}
