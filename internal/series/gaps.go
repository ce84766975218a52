package series

import "github.com/ohlc-tools/history-repair/internal/model"

// DetectGaps scans a sorted, deduplicated series and reports every pair of
// adjacent candles separated by more than one interval. Gap bounds are the
// open times of the candles around the hole, in ascending order.
func DetectGaps(s model.Series, intervalMS int64) []model.Gap {
	if len(s) < 2 || intervalMS <= 0 {
		return nil
	}
	var gaps []model.Gap
	for i := 0; i+1 < len(s); i++ {
		if s[i+1].OpenTime-s[i].OpenTime > intervalMS {
			gaps = append(gaps, model.Gap{StartMS: s[i].OpenTime, EndMS: s[i+1].OpenTime})
		}
	}
	return gaps
}
