package model

type UnitStatus string

const (
	UnitProcessing UnitStatus = "processing"
	UnitCompleted  UnitStatus = "completed"
	UnitWarning    UnitStatus = "warning"
	UnitError      UnitStatus = "error"
)

// Demote lowers the status, never raises it. completed < warning < error.
func (s UnitStatus) Demote(to UnitStatus) UnitStatus {
	if s == UnitError || to == UnitError {
		return UnitError
	}
	if s == UnitWarning || to == UnitWarning {
		return UnitWarning
	}
	return to
}

type UnitStats struct {
	Symbol        string     `json:"symbol"`
	Timeframe     string     `json:"timeframe"`
	RowsBefore    int        `json:"rows_before"`
	RowsAfter     int        `json:"rows_after"`
	NewRows       int        `json:"new_rows"`
	DupRemoved    int        `json:"dup_removed"`
	GapsFixed     int        `json:"gaps_fixed"`
	Retries       int        `json:"retries"`
	RateLimitHits int        `json:"rate_limit_hits"`
	APIErrors     int        `json:"api_errors"`
	FilesWritten  int        `json:"files_written"`
	Status        UnitStatus `json:"status"`
	Errors        []string   `json:"errors,omitempty"`
}
