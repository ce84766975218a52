package series

import (
	"fmt"

	"github.com/ohlc-tools/history-repair/internal/model"
)

// Validate checks the OHLC invariants of every row and returns one message
// per violating row. Rows are never mutated or dropped here: the caller
// persists them as-is and demotes the unit status instead.
func Validate(s model.Series, nowMS int64) []string {
	var violations []string
	for _, c := range s {
		if msg := checkCandle(c, nowMS); msg != "" {
			violations = append(violations, fmt.Sprintf("candle %d: %s", c.OpenTime, msg))
		}
	}
	return violations
}

func checkCandle(c model.Candle, nowMS int64) string {
	switch {
	case c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0:
		return "non-positive OHLC value"
	case c.High < c.Low:
		return fmt.Sprintf("high %g below low %g", c.High, c.Low)
	case c.High < c.Open || c.High < c.Close:
		return fmt.Sprintf("high %g below open/close", c.High)
	case c.Low > c.Open || c.Low > c.Close:
		return fmt.Sprintf("low %g above open/close", c.Low)
	case c.Volume < 0:
		return fmt.Sprintf("negative volume %g", c.Volume)
	case c.OpenTime > nowMS:
		return "open time in the future"
	}
	return ""
}
