package model

type Candle struct {
	OpenTime  int64   `json:"open_time"` // unix ms, UTC
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time,omitempty"`
}

// Series is the candle history of one (symbol, timeframe) unit,
// unique and strictly ascending by OpenTime once repaired.
type Series []Candle

// Gap is the open interval between two consecutive stored candles whose
// separation exceeds one timeframe interval. StartMS and EndMS are the
// open times of the candles bounding the hole.
type Gap struct {
	StartMS int64 `json:"start_ms"`
	EndMS   int64 `json:"end_ms"`
}
