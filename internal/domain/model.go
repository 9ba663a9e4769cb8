package domain

import "time"

// User represents an event attendee stored in PostgreSQL.
type User struct {
	ID        int64
	Email     string
	Name      string
	Phone     string
	BadgeCode *string // nil when no badge has been assigned, never the empty string
	UpdatedAt time.Time
}

// Activity is a catalog entry keyed by its name. The category is fixed at
// first creation; later scans that mention a different category do not
// overwrite it.
type Activity struct {
	Name     string
	Category string
}

// Scan records one user checking into one activity at a point in time.
type Scan struct {
	ID           int64
	UserID       int64
	ActivityName string
	ScannedAt    time.Time
}

// ScanDetail is a scan joined with its activity's category, used for the
// nested scan history in user views.
type ScanDetail struct {
	ActivityName     string
	ScannedAt        time.Time
	ActivityCategory string
}

// UserDetail is a user together with their derived scan history.
type UserDetail struct {
	User
	Scans []ScanDetail
}

// ActivityFrequency is one row of the per-activity scan count aggregate.
type ActivityFrequency struct {
	ActivityName     string
	ActivityCategory string
	Frequency        int64
}

// FrequencyFilter bounds the scan aggregate. Category filters rows before
// grouping; MinFrequency and MaxFrequency apply to the grouped counts, so
// activities with zero scans still appear when the bounds admit zero.
type FrequencyFilter struct {
	MinFrequency int64
	MaxFrequency *int64
	Category     string
}

// ImportUser is one bulk-import record, already parsed and validated.
type ImportUser struct {
	Email     string
	Name      string
	Phone     string
	BadgeCode *string
	Scans     []ImportScan
}

// ImportScan is one scan entry under a bulk-import record.
type ImportScan struct {
	ActivityName     string
	ActivityCategory string
	ScannedAt        time.Time
}

// RowCounts reports table sizes, used by the importer's skip-if-nonempty guard.
type RowCounts struct {
	Users      int64
	Activities int64
	Scans      int64
}
