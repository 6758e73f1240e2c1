package cdr

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker accumulates the accounting state of one logical location request.
// It is bound to the request's life, which may span two chained signalling
// dialogs. Two gates protect it: Init captures identity and addressing at
// most once, and Finalize emits at most once. After Finalize the tracker is
// dead; later setter calls are logged and dropped.
type Tracker struct {
	mu        sync.Mutex
	initiated bool
	generated bool
	rec       Record
	logger    *slog.Logger
}

// NewTracker creates an empty tracker. The logger may not be nil.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{logger: logger}
}

// Init records the fresh record id, the start time, the first dialog's
// identifiers and SCCP addressing. The first call wins; later calls are
// no-ops on these fields (the caller may still add fields via setters).
func (t *Tracker) Init(localDialog, remoteDialog uint64, localGT string, localSSN int, remoteGT string, remoteSSN int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initiated {
		return
	}
	t.initiated = true
	t.rec.ID = uuid.NewString()
	t.rec.StartTime = time.Now()
	ld := localDialog
	t.rec.LocalDialogID = &ld
	// The remote dialog id is unknown until the peer's first message.
	if remoteDialog != 0 {
		rd := remoteDialog
		t.rec.RemoteDialogID = &rd
	}
	t.rec.LocalGT = localGT
	ls := localSSN
	t.rec.LocalSSN = &ls
	t.rec.RemoteGT = remoteGT
	rs := remoteSSN
	t.rec.RemoteSSN = &rs
}

// Initiated reports whether Init has run.
func (t *Tracker) Initiated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initiated
}

// Apply runs fn against the record under the tracker lock. It is the
// single mutation path for field setters; calls after finalization are
// logged and dropped.
func (t *Tracker) Apply(fn func(*Record)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generated {
		t.logger.Warn("cdr field write after finalization dropped", "record_id", t.rec.ID)
		return
	}
	fn(&t.rec)
}

// SetSecondDialog records the dialog identifiers of the second stage of a
// chained flow.
func (t *Tracker) SetSecondDialog(localDialog, remoteDialog uint64) {
	t.Apply(func(r *Record) {
		ld := localDialog
		r.SecondLocalDialogID = &ld
		if remoteDialog != 0 {
			rd := remoteDialog
			r.SecondRemoteDialogID = &rd
		}
	})
}

// Finalize stores the outcome, computes the duration when a start time was
// recorded, and returns the finished record. The first caller wins and
// gets (record, true); later calls are logged no-ops returning (nil, false).
func (t *Tracker) Finalize(status RecordStatus) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initiated {
		t.logger.Warn("cdr finalization on uninitialized tracker ignored",
			"status", string(status),
		)
		return nil, false
	}
	if t.generated {
		t.logger.Warn("duplicate cdr finalization ignored",
			"record_id", t.rec.ID,
			"status", string(status),
		)
		return nil, false
	}
	t.generated = true
	t.rec.Status = status
	t.rec.EndTime = time.Now()
	if !t.rec.StartTime.IsZero() {
		t.rec.Duration = t.rec.EndTime.Sub(t.rec.StartTime)
	}
	rec := t.rec
	return &rec, true
}
