package models

// ParseRequest is the body of POST /api/query/parse.
type ParseRequest struct {
	Query  string `json:"query" validate:"required,max=500"`
	Market string `json:"market" validate:"omitempty,oneof=DAM GDAM RTM dam gdam rtm"`
}

// ParseResponse lists the resolved specs.
type ParseResponse struct {
	Query  string      `json:"query"`
	Source string      `json:"source"`
	Count  int         `json:"count"`
	Specs  []QuerySpec `json:"specs"`
}

// ReportRequest is the body of POST /api/query/report and of async jobs.
type ReportRequest struct {
	ID     string `json:"id,omitempty"`
	Query  string `json:"query" validate:"required,max=500"`
	Format string `json:"format" default:"markdown" validate:"oneof=markdown html json"`
}

// ReportResponse carries the rendered report.
type ReportResponse struct {
	ID       string  `json:"id,omitempty"`
	Format   string  `json:"format"`
	Body     string  `json:"body,omitempty"`
	Report   *Report `json:"report,omitempty"`
	Error    string  `json:"error,omitempty"`
	Duration int64   `json:"duration_ms"`
}

// QueryEvent is published once per answered question.
type QueryEvent struct {
	ID         string `json:"id"`
	Query      string `json:"query"`
	Source     string `json:"source"`
	Outcome    string `json:"outcome"`
	SpecCount  int    `json:"spec_count"`
	DurationMS int64  `json:"duration_ms"`
	At         int64  `json:"at"`
}
