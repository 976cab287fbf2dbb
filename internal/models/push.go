package models

// PushRecord marks that a report of a given type was dispatched on a given
// calendar day. One record per (date, report type); the gate checks for its
// existence before allowing another dispatch.
type PushRecord struct {
	Date       string `json:"date"` // YYYY-MM-DD in the configured timezone
	ReportType string `json:"report_type"`
	PushedAt   string `json:"pushed_at"` // RFC3339
}

// Report types recorded by the push gate.
const (
	ReportCurrent     = "current"
	ReportDaily       = "daily"
	ReportIncremental = "incremental"
)
