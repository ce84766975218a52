package timeframe

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

var _intervals = map[string]int64{
	"1m":  time.Minute.Milliseconds(),
	"5m":  (5 * time.Minute).Milliseconds(),
	"15m": (15 * time.Minute).Milliseconds(),
	"1h":  time.Hour.Milliseconds(),
	"4h":  (4 * time.Hour).Milliseconds(),
	"1d":  (24 * time.Hour).Milliseconds(),
}

func IntervalMillis(tf string) (int64, error) {
	interval, ok := _intervals[tf]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, tf)
	}
	return interval, nil
}

// ExpectedBars returns how many bars the window should hold, floor division.
// Used for reporting only, never to reject data.
func ExpectedBars(tf string, windowStart, windowEnd int64) (int64, error) {
	interval, err := IntervalMillis(tf)
	if err != nil {
		return 0, err
	}
	if windowEnd <= windowStart {
		return 0, nil
	}
	return (windowEnd - windowStart) / interval, nil
}

func Supported(tf string) bool {
	_, ok := _intervals[tf]
	return ok
}
