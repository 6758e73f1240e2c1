// Package cdrstore persists finalized CDRs for the admin query API. Two
// backends exist: an embedded SQLite database for standalone deployments
// and PostgreSQL for installations with an external database. Both store
// the queryable columns alongside the full delimited line, so an export
// reproduces the sink format exactly.
package cdrstore

import (
	"context"
	"time"

	"github.com/openlcs/gmlc/internal/cdr"
)

// StoredRecord is the queryable projection of a persisted CDR.
type StoredRecord struct {
	ID         string     `json:"id"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	DurationMS int64      `json:"duration_ms"`
	Status     string     `json:"status"`
	Class      string     `json:"class"`
	Flow       string     `json:"flow"`
	Kind       string     `json:"kind"`
	MSISDN     string     `json:"msisdn"`
	IMSI       string     `json:"imsi,omitempty"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	Line       string     `json:"-"`
}

// Filter narrows a List query. Zero values match everything.
type Filter struct {
	Status string
	Class  string
	Flow   string
	MSISDN string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Store is the persistence interface shared by both backends.
type Store interface {
	Insert(ctx context.Context, rec *cdr.Record) error
	GetByID(ctx context.Context, id string) (*StoredRecord, error)
	List(ctx context.Context, filter Filter) ([]StoredRecord, int, error)
	CountByClass(ctx context.Context) (map[string]int64, error)
	Close() error
}

// projection extracts the stored columns from a finalized record.
func projection(rec *cdr.Record) StoredRecord {
	return StoredRecord{
		ID:         rec.ID,
		StartTime:  rec.StartTime.UTC(),
		EndTime:    rec.EndTime.UTC(),
		DurationMS: rec.Duration.Milliseconds(),
		Status:     string(rec.Status),
		Class:      string(rec.Status.Class()),
		Flow:       rec.Flow,
		Kind:       rec.RequestKind,
		MSISDN:     rec.MSISDN,
		IMSI:       rec.IMSI,
		Latitude:   rec.Latitude,
		Longitude:  rec.Longitude,
		Line:       rec.Line(),
	}
}
