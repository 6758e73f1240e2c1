package cdr

import (
	"log/slog"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTrackerInitFirstCallWins(t *testing.T) {
	tr := NewTracker(testLogger())

	tr.Init(1, 100, "598990", 145, "59899000231", 6)
	var firstID string
	tr.Apply(func(r *Record) { firstID = r.ID })
	if firstID == "" {
		t.Fatal("Init did not assign a record id")
	}

	// A second Init in the same logical request must be a no-op.
	tr.Init(2, 200, "111111", 8, "222222", 8)
	tr.Apply(func(r *Record) {
		if r.ID != firstID {
			t.Errorf("record id changed on second Init: %q -> %q", firstID, r.ID)
		}
		if *r.LocalDialogID != 1 {
			t.Errorf("LocalDialogID = %d, want 1", *r.LocalDialogID)
		}
		if r.LocalGT != "598990" {
			t.Errorf("LocalGT = %q, want 598990", r.LocalGT)
		}
	})
}

func TestTrackerFinalizeWithoutInitEmitsNothing(t *testing.T) {
	tr := NewTracker(testLogger())

	if rec, ok := tr.Finalize(StatusATISuccess); ok || rec != nil {
		t.Error("uninitialized tracker produced a record")
	}
}

func TestTrackerFinalizeIdempotent(t *testing.T) {
	tr := NewTracker(testLogger())
	tr.Init(7, 70, "598990", 145, "59899000231", 6)

	rec, ok := tr.Finalize(StatusATICGISuccess)
	if !ok {
		t.Fatal("first Finalize returned ok=false")
	}
	if rec.Status != StatusATICGISuccess {
		t.Errorf("Status = %q, want %q", rec.Status, StatusATICGISuccess)
	}
	if rec.Duration < 0 {
		t.Errorf("Duration = %v, want >= 0", rec.Duration)
	}

	if rec2, ok := tr.Finalize(StatusATIError); ok || rec2 != nil {
		t.Error("second Finalize must be a no-op")
	}
}

func TestTrackerWriteAfterFinalizeDropped(t *testing.T) {
	tr := NewTracker(testLogger())
	tr.Init(7, 70, "598990", 145, "59899000231", 6)
	rec, _ := tr.Finalize(StatusATISuccess)

	tr.Apply(func(r *Record) { r.IMSI = "748026912345678" })

	if rec.IMSI != "" {
		t.Errorf("finalized record mutated, IMSI = %q", rec.IMSI)
	}
	// The finalized snapshot must stay as emitted.
	if _, ok := tr.Finalize(StatusATIError); ok {
		t.Error("tracker accepted a second finalization")
	}
}

func TestLineStableColumnCount(t *testing.T) {
	// A record with zero subscriber data must still render every slot.
	tr := NewTracker(testLogger())
	tr.Init(3, 30, "598990", 145, "59899000231", 6)
	rec, _ := tr.Finalize(StatusTCAPDialogTimeout)

	line := rec.Line()
	slots := strings.Split(line, Delimiter)
	if len(slots) != FieldCount {
		t.Fatalf("slot count = %d, want %d", len(slots), FieldCount)
	}

	// Identity fields were never populated; their slots must be empty.
	// Slots 17..20 are msisdn, imsi, lmsi, imei.
	for i := 17; i <= 20; i++ {
		if slots[i] != "" {
			t.Errorf("slot %d = %q, want empty", i, slots[i])
		}
	}
	if slots[2] != "TCAP_DIALOG_TIMEOUT" {
		t.Errorf("status slot = %q, want TCAP_DIALOG_TIMEOUT", slots[2])
	}
}

func TestLinePopulatedFieldsAtFixedPositions(t *testing.T) {
	tr := NewTracker(testLogger())
	tr.Init(9, 90, "598990", 145, "59899000231", 6)
	tr.Apply(func(r *Record) {
		r.MSISDN = "59899077937"
		r.IMSI = "748026912345678"
		mcc, mnc, lac, ci := 748, 2, 32005, 221
		r.MCC, r.MNC, r.LAC, r.CI = &mcc, &mnc, &lac, &ci
	})
	rec, _ := tr.Finalize(StatusATICGISuccess)

	slots := strings.Split(rec.Line(), Delimiter)
	if len(slots) != FieldCount {
		t.Fatalf("slot count = %d, want %d", len(slots), FieldCount)
	}
	if slots[17] != "59899077937" {
		t.Errorf("msisdn slot = %q", slots[17])
	}
	if slots[18] != "748026912345678" {
		t.Errorf("imsi slot = %q", slots[18])
	}
	if slots[28] != "748" || slots[29] != "2" || slots[30] != "32005" || slots[31] != "221" {
		t.Errorf("cgi slots = %v", slots[28:32])
	}
}

func TestResultClassMapping(t *testing.T) {
	cases := []struct {
		status RecordStatus
		want   ResultClass
	}{
		{StatusATICGISuccess, ClassOK},
		{StatusPSLDeferredAccepted, ClassOK},
		{StatusATIUnknownSubscriber, ClassUnknownSubscriber},
		{StatusPSLAbsentSubscriber, ClassUnknownSubscriber},
		{StatusPSLUnidentifiedSubscriber, ClassUnknownSubscriber},
		{StatusATIDataMissing, ClassFormatError},
		{StatusPSLUnexpectedDataValue, ClassFormatError},
		{StatusTCAPDialogTimeout, ClassSystemFailure},
		{StatusPSLPositionMethodFailure, ClassSystemFailure},
		{StatusATIError, ClassSystemFailure},
	}
	for _, tc := range cases {
		if got := tc.status.Class(); got != tc.want {
			t.Errorf("%s.Class() = %q, want %q", tc.status, got, tc.want)
		}
	}
}
