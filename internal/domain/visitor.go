package domain

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for Redis keys, the API and the CLI
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned for malformed or out-of-range date input
var ErrInvalidDate = errors.New("invalid date")

// ParseDate parses a YYYY-MM-DD string into a civil date (midnight UTC)
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidDate, s)
	}
	return d, nil
}

// CivilDate returns the calendar date of t in loc, as midnight UTC.
// Dates are compared and stepped as UTC midnights so DST never shifts them.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate formats a civil date as YYYY-MM-DD
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// VisitorStatsRecord is the durable, reconciled snapshot of one calendar date
type VisitorStatsRecord struct {
	ID                 int64     `json:"id" db:"id"`
	Date               time.Time `json:"date" db:"date"`
	VisitorCount       int64     `json:"visitor_count" db:"visitor_count"`
	UniqueVisitorCount int64     `json:"unique_visitor_count" db:"unique_visitor_count"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// DailyCounts are the live fast-store figures for one calendar date
type DailyCounts struct {
	Date   time.Time
	Hits   int64 // raw hit counter
	Unique int64 // unique visitor set cardinality
	// Present is false when neither key exists, i.e. nothing was recorded
	// or the keys already expired
	Present bool
}

// VisitRequest carries the request metadata used for counting
type VisitRequest struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	Path      string `json:"path"`
}

// StatsSummary is the response of the current stats endpoint
type StatsSummary struct {
	Today       int64  `json:"today"`
	TodayUnique int64  `json:"today_unique"`
	Total       int64  `json:"total"` // all-time unique visitors
	Date        string `json:"date"`
	// TotalHits is the raw ever-incrementing hit counter, never reconciled
	TotalHits int64 `json:"total_hits"`
}

// StatsSource tells which store a historical figure came from
type StatsSource string

const (
	SourceDurable StatsSource = "durable" // reconciled row
	SourceCounter StatsSource = "counter" // unreconciled past date read from Redis
	SourceLive    StatsSource = "live"    // today, still being written
)

// HistoricalStats holds the figures for one date and where they came from
type HistoricalStats struct {
	Date               string      `json:"date"`
	VisitorCount       int64       `json:"visitor_count"`
	UniqueVisitorCount int64       `json:"unique_visitor_count"`
	Source             StatsSource `json:"source"`
}

// SyncAction describes what reconciliation did to the durable row
type SyncAction string

const (
	SyncActionCreated SyncAction = "created"
	SyncActionUpdated SyncAction = "updated"
	SyncActionKept    SyncAction = "kept" // keys expired, existing row left as is
)

// SyncResult is the outcome of reconciling one date
type SyncResult struct {
	Date               string     `json:"date"`
	Success            bool       `json:"success"`
	VisitorCount       int64      `json:"visitor_count"`
	UniqueVisitorCount int64      `json:"unique_visitor_count"`
	Action             SyncAction `json:"action,omitempty"`
	Error              string     `json:"error,omitempty"`
	Message            string     `json:"message"`
}

// SyncReport aggregates the results of a reconciliation batch
type SyncReport struct {
	Requested int          `json:"requested"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []SyncResult `json:"results"`
}
