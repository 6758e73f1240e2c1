package cdrstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openlcs/gmlc/internal/cdr"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id, msisdn string, status cdr.RecordStatus, end time.Time) *cdr.Record {
	return &cdr.Record{
		ID:        id,
		Status:    status,
		StartTime: end.Add(-2 * time.Second),
		EndTime:   end,
		Duration:  2 * time.Second,
		Flow:      "ati",
		RequestKind: "REST",
		MSISDN:    msisdn,
	}
}

func TestOpenAndMigrate(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "gmlc.db")); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("querying journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	var count int
	err = s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='cdrs'").Scan(&count)
	if err != nil {
		t.Fatalf("checking cdrs table: %v", err)
	}
	if count != 1 {
		t.Error("cdrs table not found")
	}
}

func TestInsertAndGetByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := testRecord("rec-1", "59899077937", cdr.StatusATICGISuccess, time.Now().UTC())
	lat, lon := -34.901, -56.164
	rec.Latitude, rec.Longitude = &lat, &lon

	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	got, err := s.GetByID(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got == nil {
		t.Fatal("record not found")
	}
	if got.Status != "ATI_CGI_SUCCESS" {
		t.Errorf("status = %q", got.Status)
	}
	if got.Class != "OK" {
		t.Errorf("class = %q", got.Class)
	}
	if got.Latitude == nil || *got.Latitude != -34.901 {
		t.Error("latitude not persisted")
	}
	if got.Line != rec.Line() {
		t.Error("stored line differs from sink format")
	}

	missing, err := s.GetByID(ctx, "no-such-record")
	if err != nil {
		t.Fatalf("GetByID(missing) error: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing record")
	}
}

func TestListFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	seed := []*cdr.Record{
		testRecord("a", "59899000001", cdr.StatusATICGISuccess, base),
		testRecord("b", "59899000001", cdr.StatusTCAPDialogTimeout, base.Add(time.Minute)),
		testRecord("c", "59899000002", cdr.StatusATIUnknownSubscriber, base.Add(2*time.Minute)),
	}
	for _, rec := range seed {
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert(%s) error: %v", rec.ID, err)
		}
	}

	recs, total, err := s.List(ctx, Filter{MSISDN: "59899000001"})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 2 || len(recs) != 2 {
		t.Fatalf("msisdn filter: total = %d, len = %d", total, len(recs))
	}
	// Newest first.
	if recs[0].ID != "b" {
		t.Errorf("expected newest record first, got %q", recs[0].ID)
	}

	recs, total, err = s.List(ctx, Filter{Class: "UNKNOWN_SUBSCRIBER"})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 1 || recs[0].ID != "c" {
		t.Errorf("class filter: total = %d", total)
	}

	recs, total, err = s.List(ctx, Filter{From: base.Add(30 * time.Second)})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 2 {
		t.Errorf("from filter: total = %d", total)
	}

	_, total, err = s.List(ctx, Filter{Limit: 1})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 3 {
		t.Errorf("paged total = %d, want 3", total)
	}
}

func TestCountByClass(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, status := range []cdr.RecordStatus{
		cdr.StatusATICGISuccess,
		cdr.StatusPSLEstimateSuccess,
		cdr.StatusTCAPDialogTimeout,
	} {
		rec := testRecord(fmt.Sprintf("rec-%d", i), "59899077937", status, base.Add(time.Duration(i)*time.Second))
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert() error: %v", err)
		}
	}

	counts, err := s.CountByClass(ctx)
	if err != nil {
		t.Fatalf("CountByClass() error: %v", err)
	}
	if counts["OK"] != 2 {
		t.Errorf("OK count = %d, want 2", counts["OK"])
	}
	if counts["SYSTEM_FAILURE"] != 1 {
		t.Errorf("SYSTEM_FAILURE count = %d, want 1", counts["SYSTEM_FAILURE"])
	}
}
