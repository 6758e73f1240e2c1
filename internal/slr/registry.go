// Package slr correlates deferred-location callers with the subscriber
// location reports the network delivers later, out of band of the original
// HTTP request.
package slr

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Registration is one deferred-report subscription keyed by its internal id.
type Registration struct {
	ID              int64
	ReferenceNumber int
	Parameters      map[string]string
}

// Registry maps caller-chosen LCS reference numbers to callback URLs and
// allocates registration ids for later delivery. It is the one structure
// intentionally shared across independent logical requests, so all access
// is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	urls   map[int]string          // reference number -> callback URL
	regs   map[int64]*Registration // registration id -> registration
	nextID atomic.Int64
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		urls:   make(map[int]string),
		regs:   make(map[int64]*Registration),
		logger: logger.With("component", "slr"),
	}
}

// Register stores the callback URL for a reference number and allocates a
// new registration id. The first URL registered for a reference number
// wins; re-registering the same reference number keeps the original URL
// but still produces a fresh registration id. Ids are strictly increasing.
func (r *Registry) Register(referenceNumber int, callbackURL string, parameters map[string]string) int64 {
	id := r.nextID.Add(1)

	params := make(map[string]string, len(parameters))
	for k, v := range parameters {
		params[k] = v
	}

	r.mu.Lock()
	if _, exists := r.urls[referenceNumber]; !exists {
		r.urls[referenceNumber] = callbackURL
	}
	r.regs[id] = &Registration{
		ID:              id,
		ReferenceNumber: referenceNumber,
		Parameters:      params,
	}
	r.mu.Unlock()

	r.logger.Debug("deferred report registered",
		"reference_number", referenceNumber,
		"registration_id", id,
	)
	return id
}

// Cancel removes the reference number's URL and every registration that
// references it. Cancelling an unknown reference number is a no-op.
func (r *Registry) Cancel(referenceNumber int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.urls, referenceNumber)
	for id, reg := range r.regs {
		if reg.ReferenceNumber == referenceNumber {
			delete(r.regs, id)
		}
	}
}

// Lookup resolves a registration id to its registration and callback URL.
// Either the registration or its URL may be gone after a cancellation, in
// which case ok is false.
func (r *Registry) Lookup(registrationID int64) (*Registration, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[registrationID]
	if !ok {
		return nil, "", false
	}
	url, ok := r.urls[reg.ReferenceNumber]
	if !ok {
		return nil, "", false
	}
	return reg, url, true
}

// FindByReference returns the most recent registration id for a reference
// number, used to route an incoming location report. ok is false when the
// reference number is unknown or cancelled.
func (r *Registry) FindByReference(referenceNumber int) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.urls[referenceNumber]; !exists {
		return 0, false
	}
	var best int64
	for id, reg := range r.regs {
		if reg.ReferenceNumber == referenceNumber && id > best {
			best = id
		}
	}
	return best, best != 0
}

// Size returns the number of live registrations.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}
