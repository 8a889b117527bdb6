package model

import "time"

// QualityReport is the normalizer's per-bulletin accounting.
type QualityReport struct {
	RowsIn        int      `json:"rows_in"`
	RowsOut       int      `json:"rows_out"`
	Warnings      []string `json:"warnings,omitempty"`
	Errors        []string `json:"errors,omitempty"`
	DateParseRate float64  `json:"date_parse_rate"`
}

// RunFailure records one bulletin that did not make it into the store.
type RunFailure struct {
	Year    int    `json:"year"`
	Month   int    `json:"month"`
	URL     string `json:"url"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
	Retries int    `json:"retries,omitempty"`
}

// RunReport summarizes one collector run. Every run produces one, including
// cancelled runs, which return the partial counts accumulated so far.
// Quarantined bulletins are listed individually so the quality-gate reason
// survives into the report.
type RunReport struct {
	RunID       string       `json:"run_id"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Attempted   int          `json:"attempted"`
	Fetched     int          `json:"fetched"`
	Parsed      int          `json:"parsed"`
	Stored      int          `json:"stored"`
	Skipped     int          `json:"skipped"`
	Quarantined []RunFailure `json:"quarantined,omitempty"`
	Failed      []RunFailure `json:"failed,omitempty"`
	Cancelled   bool         `json:"cancelled,omitempty"`
}

// HasFailures reports whether any bulletin failed or was quarantined.
func (r *RunReport) HasFailures() bool {
	return len(r.Failed) > 0 || len(r.Quarantined) > 0
}
