package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/openlcs/gmlc/internal/cdr"
	"github.com/openlcs/gmlc/internal/config"
	"github.com/openlcs/gmlc/internal/mapnet"
	"github.com/openlcs/gmlc/internal/slr"
)

// ErrClosed is returned by Locate after the engine has been shut down.
var ErrClosed = errors.New("engine closed")

// RecordSink receives every finalized CDR as a delimited line.
type RecordSink interface {
	Append(rec *cdr.Record)
}

// RecordStore persists finalized CDRs for the query API. May be nil.
type RecordStore interface {
	Insert(ctx context.Context, rec *cdr.Record) error
}

// State is the position of a logical request inside its signalling flow.
type State int

const (
	StateAwaitingATI State = iota
	StateAwaitingSRIForLCS
	StateAwaitingPSL
	StateAwaitingSRIForSM
	StateAwaitingPSI
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAwaitingATI:
		return "awaiting_ati"
	case StateAwaitingSRIForLCS:
		return "awaiting_sri_for_lcs"
	case StateAwaitingPSL:
		return "awaiting_psl"
	case StateAwaitingSRIForSM:
		return "awaiting_sri_for_sm"
	case StateAwaitingPSI:
		return "awaiting_psi"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// operation returns the MAP operation the state is waiting on.
func (s State) operation() mapnet.Operation {
	switch s {
	case StateAwaitingATI:
		return mapnet.OpATI
	case StateAwaitingSRIForLCS:
		return mapnet.OpSRIForLCS
	case StateAwaitingPSL:
		return mapnet.OpPSL
	case StateAwaitingSRIForSM:
		return mapnet.OpSRIForSM
	default:
		return mapnet.OpPSI
	}
}

// pending is the live state of one logical request. It is owned by the
// engine mutex; the result channel is buffered so resolution never blocks
// the event loop even when the HTTP caller has gone away.
type pending struct {
	req     *LocationRequest
	flow    Flow
	state   State
	tracker *cdr.Tracker
	timer   *time.Timer
	result  chan *Result

	// resolved guards the exactly-once delivery of the HTTP result. A
	// second terminal transition on the same request is detected here and
	// discarded.
	resolved bool

	// Routing data extracted from the first stage of a chained flow,
	// carried forward into the second stage's request.
	imsi string
	lmsi string
	nnn  string
	gprs bool
}

// Engine drives inbound location requests to exactly one terminal outcome
// each: it selects the flow, issues MAP operations through the Conn,
// correlates asynchronous dialog events, accumulates the CDR and resolves
// the suspended HTTP delivery.
type Engine struct {
	cfg      *config.Config
	conn     mapnet.Conn
	registry *slr.Registry
	notifier *slr.Notifier
	sink     RecordSink
	store    RecordStore
	logger   *slog.Logger

	mu      sync.Mutex
	dialogs map[mapnet.DialogID]*pending
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates the orchestration engine. sink and store may be nil.
func New(cfg *config.Config, conn mapnet.Conn, registry *slr.Registry, notifier *slr.Notifier, sink RecordSink, store RecordStore, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		conn:     conn,
		registry: registry,
		notifier: notifier,
		sink:     sink,
		store:    store,
		logger:   logger.With("component", "engine"),
		dialogs:  make(map[mapnet.DialogID]*pending),
		done:     make(chan struct{}),
	}
}

// Start launches the dialog event loop.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.run()
}

// Close stops the event loop and fails any requests still in flight.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()

	// Resolve whatever is left so no HTTP caller hangs.
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, p := range e.dialogs {
		delete(e.dialogs, id)
		e.emit(p, cdr.StatusInternalError)
		e.resolve(p, failureResult(cdr.StatusInternalError, "shutting down"))
	}
}

// ActiveDialogCount returns the number of dialogs awaiting a response.
func (e *Engine) ActiveDialogCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dialogs)
}

// Locate drives one location request to its terminal result. Validation
// failures return a FORMAT_ERROR result immediately, before any network
// I/O and without creating a CDR. All later failures produce both a CDR
// and a result.
func (e *Engine) Locate(ctx context.Context, req *LocationRequest) (*Result, error) {
	if err := Validate(req); err != nil {
		e.logger.Info("request rejected at validation",
			"msisdn", req.MSISDN,
			"error", err,
		)
		return &Result{
			Class:   cdr.ClassFormatError,
			Message: err.Error(),
			MSISDN:  req.MSISDN,
		}, nil
	}

	p := &pending{
		req:     req,
		flow:    req.SelectFlow(),
		tracker: cdr.NewTracker(e.logger),
		result:  make(chan *Result, 1),
	}

	netReq, state := e.firstRequest(p)
	p.state = state

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	id, err := e.conn.Send(ctx, netReq)
	if err != nil {
		e.mu.Unlock()
		e.logger.Error("failed to issue first operation",
			"operation", netReq.Op.String(),
			"msisdn", req.MSISDN,
			"error", err,
		)
		return failureResult(cdr.StatusInternalError, "signalling unavailable"), nil
	}
	p.tracker.Init(uint64(id), 0, netReq.Calling.GT, netReq.Calling.SSN, netReq.Called.GT, netReq.Called.SSN)
	e.captureRequestFields(p)
	e.dialogs[id] = p
	e.armTimer(id, p)
	e.mu.Unlock()

	e.logger.Debug("location request issued",
		"dialog_id", uint64(id),
		"flow", string(p.flow),
		"operation", netReq.Op.String(),
		"msisdn", req.MSISDN,
	)

	select {
	case res := <-p.result:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// firstRequest builds the opening MAP operation for the selected flow.
func (e *Engine) firstRequest(p *pending) (mapnet.Request, State) {
	req := p.req
	gmlc := mapnet.Address{GT: e.cfg.GMLCAddress, SSN: e.cfg.GMLCSSN}
	hlr := mapnet.Address{GT: e.cfg.HLRAddress, SSN: e.cfg.HLRSSN}

	switch p.flow {
	case FlowLSM:
		return mapnet.Request{
			Op:      mapnet.OpSRIForLCS,
			Calling: gmlc,
			Called:  hlr,
			SRILCS: &mapnet.SRIForLCSRequest{
				MSISDN:      req.MSISDN,
				GMLCAddress: e.cfg.GMLCAddress,
			},
		}, StateAwaitingSRIForLCS
	case FlowSM:
		if req.DirectPSI() {
			p.imsi = req.PSIIMSI
			p.nnn = req.PSINNN
			return mapnet.Request{
				Op:      mapnet.OpPSI,
				Calling: gmlc,
				Called:  mapnet.Address{GT: req.PSINNN, SSN: e.cfg.MSCSSN},
				PSI:     e.psiRequest(p),
			}, StateAwaitingPSI
		}
		return mapnet.Request{
			Op:      mapnet.OpSRIForSM,
			Calling: gmlc,
			Called:  hlr,
			SRISM: &mapnet.SRIForSMRequest{
				MSISDN:        req.MSISDN,
				ServiceCentre: e.cfg.GMLCAddress,
			},
		}, StateAwaitingSRIForSM
	default:
		return mapnet.Request{
			Op:      mapnet.OpATI,
			Calling: gmlc,
			Called:  hlr,
			ATI: &mapnet.ATIRequest{
				MSISDN:          req.MSISDN,
				RequestLocation: true,
				RequestState:    true,
				GSMSCFAddress:   e.cfg.GMLCAddress,
			},
		}, StateAwaitingATI
	}
}

func (e *Engine) psiRequest(p *pending) *mapnet.PSIRequest {
	return &mapnet.PSIRequest{
		IMSI:            p.imsi,
		LMSI:            p.lmsi,
		RequestLocation: true,
		RequestState:    true,
		RequestIMEI:     true,
		RequestMNP:      true,
	}
}

// captureRequestFields writes the request-side CDR fields available at
// issuance time. Must run with the tracker already initialized.
func (e *Engine) captureRequestFields(p *pending) {
	req := p.req
	p.tracker.Apply(func(r *cdr.Record) {
		r.Flow = string(p.flow)
		r.RequestKind = string(req.Kind)
		r.CoreNetwork = req.CoreNetwork
		r.MSISDN = req.MSISDN
		r.Priority = req.Priority
		ha, va := req.HorizontalAccuracy, req.VerticalAccuracy
		r.HorizontalAccuracy = &ha
		r.VerticalAccuracy = &va
		vc := req.VerticalCoordinateRequest
		r.VerticalCoordinateRequested = &vc
		r.ResponseTimeCategory = req.ResponseTimeCategory
		r.LocationEstimateType = req.LocationEstimateType
		st, ref := req.LCSServiceTypeID, req.LCSReferenceNumber
		r.LCSServiceTypeID = &st
		r.LCSReferenceNumber = &ref
		if req.LocationEstimateType == "activateDeferredLocation" || req.LocationEstimateType == "cancelDeferredLocation" {
			r.DeferredLocationEventType = req.DeferredLocationEventType
			r.AreaType = req.AreaType
			r.AreaID = req.AreaID
			r.OccurrenceInfo = req.OccurrenceInfo
			it, ra, ri := req.IntervalTime, req.ReportingAmount, req.ReportingInterval
			r.IntervalTime = &it
			r.ReportingAmount = &ra
			r.ReportingInterval = &ri
			r.CallbackURL = req.SLRCallbackURL
		}
	})
}

// run is the dialog event loop. All state transitions happen here or in
// the per-dialog timer callbacks, both under the engine mutex.
func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case ev, ok := <-e.conn.Events():
			if !ok {
				return
			}
			e.handle(ev)
		}
	}
}

// handle processes one dialog event. Decoding panics are caught here so a
// malformed response degrades to SYSTEM_FAILURE instead of killing the
// loop, and still finalizes the CDR when a dialog context exists.
func (e *Engine) handle(ev mapnet.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("panic handling dialog event",
				"dialog_id", uint64(ev.Dialog),
				"kind", ev.Kind.String(),
				"panic", fmt.Sprint(rec),
			)
			e.mu.Lock()
			defer e.mu.Unlock()
			if p, ok := e.dialogs[ev.Dialog]; ok {
				delete(e.dialogs, ev.Dialog)
				e.emit(p, cdr.StatusInternalError)
				e.resolve(p, failureResult(cdr.StatusInternalError, "internal error"))
			}
		}
	}()

	// Report dialogs are network-initiated and never appear in the
	// pending map; they are accounted here and go no further.
	if ev.Op == mapnet.OpSLR {
		switch ev.Kind {
		case mapnet.EventLocationReport:
			e.handleLocationReport(ev)
		case mapnet.EventUserError:
			e.handleReportError(ev)
		default:
			e.logger.Warn("unexpected report dialog event dropped",
				"dialog_id", uint64(ev.Dialog),
				"kind", ev.Kind.String(),
			)
		}
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.dialogs[ev.Dialog]
	if !ok {
		e.logger.Warn("event for unknown dialog dropped",
			"dialog_id", uint64(ev.Dialog),
			"kind", ev.Kind.String(),
		)
		return
	}

	// First contact from the peer reveals its dialog id.
	if ev.RemoteDialog != 0 {
		remote := ev.RemoteDialog
		p.tracker.Apply(func(r *cdr.Record) {
			if r.SecondLocalDialogID != nil {
				if r.SecondRemoteDialogID == nil {
					r.SecondRemoteDialogID = &remote
				}
			} else if r.RemoteDialogID == nil {
				r.RemoteDialogID = &remote
			}
		})
	}

	switch ev.Kind {
	case mapnet.EventResponse:
		e.handleResponse(ev.Dialog, p, ev)
	case mapnet.EventUserError:
		status := mapUserError(p.state.operation(), ev.UserError)
		e.logger.Info("map user error",
			"dialog_id", uint64(ev.Dialog),
			"operation", p.state.operation().String(),
			"code", ev.UserError,
			"status", string(status),
		)
		e.terminate(ev.Dialog, p, status, failureResult(status, fmt.Sprintf("MAP user error %d", ev.UserError)))
	default:
		e.handleTransportFailure(ev.Dialog, p, ev.Kind, ev.Cause)
	}
}

// handleResponse dispatches a decoded result to the state's handler. A
// response whose payload does not match the awaited operation is treated
// as a corrupted component.
func (e *Engine) handleResponse(id mapnet.DialogID, p *pending, ev mapnet.Event) {
	switch p.state {
	case StateAwaitingATI:
		if ev.ATI == nil {
			e.handleTransportFailure(id, p, mapnet.EventCorrupt, "missing ATI payload")
			return
		}
		e.handleATI(id, p, ev.ATI)
	case StateAwaitingSRIForLCS:
		if ev.SRILCS == nil {
			e.handleTransportFailure(id, p, mapnet.EventCorrupt, "missing SRIforLCS payload")
			return
		}
		e.handleSRIForLCS(id, p, ev.SRILCS)
	case StateAwaitingPSL:
		if ev.PSL == nil {
			e.handleTransportFailure(id, p, mapnet.EventCorrupt, "missing PSL payload")
			return
		}
		e.handlePSL(id, p, ev.PSL)
	case StateAwaitingSRIForSM:
		if ev.SRISM == nil {
			e.handleTransportFailure(id, p, mapnet.EventCorrupt, "missing SRIforSM payload")
			return
		}
		e.handleSRIForSM(id, p, ev.SRISM)
	case StateAwaitingPSI:
		if ev.PSI == nil {
			e.handleTransportFailure(id, p, mapnet.EventCorrupt, "missing PSI payload")
			return
		}
		e.handlePSI(id, p, ev.PSI)
	default:
		e.logger.Warn("response in terminal state dropped", "dialog_id", uint64(id))
	}
}

// handleATI finishes the ATI flow: every optional field present in the
// response goes into the CDR, and the most specific matching success
// status wins.
func (e *Engine) handleATI(id mapnet.DialogID, p *pending, resp *mapnet.ATIResponse) {
	p.tracker.Apply(func(r *cdr.Record) {
		writeCGI(r, resp.CGI)
		r.AgeOfLocation = copyInt(resp.AgeOfLocation)
		r.VLRNumber = resp.VLRNumber
		r.MSCNumber = resp.MSCNumber
		r.SubscriberState = resp.SubscriberState
		r.NotReachableReason = resp.NotReachable
		r.IMEI = resp.IMEI
		r.SAIPresent = copyBool(resp.SAIPresent)
		writeGeo(r, resp.GeoInfo)
	})

	hasState := resp.SubscriberState != ""
	var status cdr.RecordStatus
	switch {
	case resp.CGI != nil && resp.CGI.CI != nil && hasState:
		status = cdr.StatusATICGIStateSuccess
	case resp.CGI != nil && resp.CGI.CI != nil:
		status = cdr.StatusATICGISuccess
	case resp.CGI != nil && hasState:
		status = cdr.StatusATILAIStateSuccess
	case resp.CGI != nil:
		status = cdr.StatusATILAISuccess
	case resp.GeoInfo != nil && hasState:
		status = cdr.StatusATIGeoStateSuccess
	case resp.GeoInfo != nil:
		status = cdr.StatusATIGeoSuccess
	case hasState:
		status = cdr.StatusATIStateSuccess
	default:
		status = cdr.StatusATISuccess
	}

	res := e.successResult(p, status)
	e.terminate(id, p, status, res)
}

// handleSRIForLCS is the intermediate transition of the LSM flow. Usable
// routing data triggers the PSL stage on a new dialog that inherits the
// suspended HTTP context; its absence is terminal.
func (e *Engine) handleSRIForLCS(id mapnet.DialogID, p *pending, resp *mapnet.SRIForLCSResponse) {
	p.tracker.Apply(func(r *cdr.Record) {
		r.IMSI = resp.IMSI
		r.LMSI = resp.LMSI
		r.NetworkNodeNumber = resp.NetworkNodeNumber
		gprs := resp.GPRSNodeIndicator
		r.GPRSNodeIndicator = &gprs
		r.AdditionalNumber = resp.AdditionalNumber
		r.MMEName = resp.MMEName
		r.SGSNName = resp.SGSNName
	})

	if resp.NetworkNodeNumber == "" {
		e.logger.Info("sri_for_lcs returned no serving node",
			"dialog_id", uint64(id),
			"msisdn", p.req.MSISDN,
		)
		e.terminate(id, p, cdr.StatusSRILCSAbsentSubscriber,
			failureResult(cdr.StatusSRILCSAbsentSubscriber, "no serving node for subscriber"))
		return
	}

	p.imsi = resp.IMSI
	p.lmsi = resp.LMSI
	p.nnn = resp.NetworkNodeNumber
	p.gprs = resp.GPRSNodeIndicator

	req := p.req
	var ha, va *int
	if req.HorizontalAccuracy != DefaultAccuracy {
		h := req.HorizontalAccuracy
		ha = &h
	}
	if req.VerticalAccuracy != DefaultAccuracy {
		v := req.VerticalAccuracy
		va = &v
	}
	it, ra, ri := req.IntervalTime, req.ReportingAmount, req.ReportingInterval

	e.chain(id, p, StateAwaitingPSL, mapnet.Request{
		Op:      mapnet.OpPSL,
		Calling: mapnet.Address{GT: e.cfg.GMLCAddress, SSN: e.cfg.GMLCSSN},
		Called:  mapnet.Address{GT: resp.NetworkNodeNumber, SSN: e.cfg.MSCSSN},
		PSL: &mapnet.PSLRequest{
			IMSI:                      resp.IMSI,
			LMSI:                      resp.LMSI,
			MLCNumber:                 e.cfg.GMLCAddress,
			Priority:                  req.Priority,
			HorizontalAccuracy:        ha,
			VerticalAccuracy:          va,
			VerticalCoordinateRequest: req.VerticalCoordinateRequest,
			ResponseTimeCategory:      req.ResponseTimeCategory,
			LocationEstimateType:      req.LocationEstimateType,
			DeferredLocationEventType: req.DeferredLocationEventType,
			AreaType:                  req.AreaType,
			AreaID:                    req.AreaID,
			OccurrenceInfo:            req.OccurrenceInfo,
			IntervalTime:              &it,
			ReportingAmount:           &ra,
			ReportingInterval:         &ri,
			LCSReferenceNumber:        req.LCSReferenceNumber,
			LCSServiceTypeID:          req.LCSServiceTypeID,
		},
	})
}

// handlePSL finishes the LSM flow.
func (e *Engine) handlePSL(id mapnet.DialogID, p *pending, resp *mapnet.PSLResponse) {
	if resp.DeferredAccepted {
		regID := e.registry.Register(p.req.LCSReferenceNumber, p.req.SLRCallbackURL, map[string]string{
			"msisdn":          p.req.MSISDN,
			"imsi":            p.imsi,
			"referenceNumber": strconv.Itoa(p.req.LCSReferenceNumber),
			"eventType":       p.req.DeferredLocationEventType,
		})
		e.logger.Info("deferred location activated",
			"dialog_id", uint64(id),
			"reference_number", p.req.LCSReferenceNumber,
			"registration_id", regID,
		)
		status := cdr.StatusPSLDeferredAccepted
		res := e.successResult(p, status)
		res.addField("registrationId", strconv.FormatInt(regID, 10))
		e.terminate(id, p, status, res)
		return
	}

	// A completed cancellation removes the callback so later reports for
	// the reference number are no longer delivered.
	if p.req.LocationEstimateType == "cancelDeferredLocation" {
		e.registry.Cancel(p.req.LCSReferenceNumber)
		e.logger.Info("deferred location cancelled",
			"dialog_id", uint64(id),
			"reference_number", p.req.LCSReferenceNumber,
		)
	}

	p.tracker.Apply(func(r *cdr.Record) {
		writeGeo(r, resp.Estimate)
		r.AgeOfLocationEstimate = copyInt(resp.AgeOfLocationEstimate)
		r.AccuracyFulfilment = resp.AccuracyFulfilment
		r.PositioningData = resp.PositioningData
		writeCGI(r, resp.CGI)
		if v := resp.Velocity; v != nil {
			r.VelocityType = v.Type
			hs, b := v.HorizontalSpeed, v.Bearing
			r.HorizontalSpeed = &hs
			r.Bearing = &b
			r.VerticalSpeed = copyInt(v.VerticalSpeed)
			r.UncertaintyHorizontalSpeed = copyInt(v.UncertaintyHorizontalSpeed)
			r.UncertaintyVerticalSpeed = copyInt(v.UncertaintyVerticalSpeed)
		}
	})

	var status cdr.RecordStatus
	switch {
	case resp.Estimate != nil && resp.Velocity != nil && resp.CGI != nil:
		status = cdr.StatusPSLEstimateFullSuccess
	case resp.Estimate != nil && resp.Velocity != nil:
		status = cdr.StatusPSLEstimateVelocitySuccess
	case resp.Estimate != nil && resp.CGI != nil:
		status = cdr.StatusPSLEstimateCellSuccess
	case resp.Estimate != nil && resp.AgeOfLocationEstimate != nil:
		status = cdr.StatusPSLEstimateAgeSuccess
	case resp.Estimate != nil:
		status = cdr.StatusPSLEstimateSuccess
	default:
		status = cdr.StatusPSLSuccess
	}

	e.terminate(id, p, status, e.successResult(p, status))
}

// handleSRIForSM is the intermediate transition of the SM flow.
func (e *Engine) handleSRIForSM(id mapnet.DialogID, p *pending, resp *mapnet.SRIForSMResponse) {
	p.tracker.Apply(func(r *cdr.Record) {
		r.IMSI = resp.IMSI
		r.LMSI = resp.LMSI
		r.NetworkNodeNumber = resp.NetworkNodeNumber
		gprs := resp.GPRSNodeIndicator
		r.GPRSNodeIndicator = &gprs
		r.AdditionalNumber = resp.AdditionalNumber
	})

	if resp.NetworkNodeNumber == "" || resp.IMSI == "" {
		e.logger.Info("sri_for_sm returned no usable routing data",
			"dialog_id", uint64(id),
			"msisdn", p.req.MSISDN,
		)
		e.terminate(id, p, cdr.StatusSRISMAbsentSubscriber,
			failureResult(cdr.StatusSRISMAbsentSubscriber, "no routing data for subscriber"))
		return
	}

	p.imsi = resp.IMSI
	p.lmsi = resp.LMSI
	p.nnn = resp.NetworkNodeNumber
	p.gprs = resp.GPRSNodeIndicator

	e.chain(id, p, StateAwaitingPSI, mapnet.Request{
		Op:      mapnet.OpPSI,
		Calling: mapnet.Address{GT: e.cfg.GMLCAddress, SSN: e.cfg.GMLCSSN},
		Called:  mapnet.Address{GT: resp.NetworkNodeNumber, SSN: e.cfg.MSCSSN},
		PSI:     e.psiRequest(p),
	})
}

// handlePSI finishes the SM flow.
func (e *Engine) handlePSI(id mapnet.DialogID, p *pending, resp *mapnet.PSIResponse) {
	p.tracker.Apply(func(r *cdr.Record) {
		writeCGI(r, resp.CGI)
		writeGeo(r, resp.GeoInfo)
		r.AgeOfLocation = copyInt(resp.AgeOfLocation)
		r.SubscriberState = resp.SubscriberState
		r.NotReachableReason = resp.NotReachable
		r.IMEI = resp.IMEI
		r.VLRNumber = resp.VLRNumber
		r.MSCNumber = resp.MSCNumber
		r.MNPStatus = resp.MNPStatus
		r.RouteingNumber = resp.RouteingNumber
		r.MNPIMSI = resp.MNPIMSI
		r.MNPMSISDN = resp.MNPMSISDN
		r.SAIPresent = copyBool(resp.SAIPresent)
	})

	hasState := resp.SubscriberState != ""
	var status cdr.RecordStatus
	switch {
	case resp.CGI != nil && hasState:
		status = cdr.StatusPSICGIStateSuccess
	case resp.CGI != nil:
		status = cdr.StatusPSICGISuccess
	case resp.GeoInfo != nil && hasState:
		status = cdr.StatusPSIGeoStateSuccess
	case resp.GeoInfo != nil:
		status = cdr.StatusPSIGeoSuccess
	case hasState:
		status = cdr.StatusPSIStateSuccess
	case resp.IMEI != "":
		status = cdr.StatusPSIIMEISuccess
	case resp.MNPStatus != "":
		status = cdr.StatusPSIMNPSuccess
	default:
		status = cdr.StatusPSISuccess
	}

	e.terminate(id, p, status, e.successResult(p, status))
}

// chain moves a logical request onto its second dialog: the first dialog's
// key is released, the request is re-keyed under the new dialog id, and
// the suspended HTTP context follows it. A send failure is terminal.
func (e *Engine) chain(oldID mapnet.DialogID, p *pending, next State, req mapnet.Request) {
	e.release(oldID, p)

	newID, err := e.conn.Send(context.Background(), req)
	if err != nil {
		e.logger.Error("failed to issue chained operation",
			"operation", req.Op.String(),
			"msisdn", p.req.MSISDN,
			"error", err,
		)
		e.emit(p, cdr.StatusInternalError)
		e.resolve(p, failureResult(cdr.StatusInternalError, "signalling unavailable"))
		return
	}

	p.state = next
	p.tracker.SetSecondDialog(uint64(newID), 0)
	e.dialogs[newID] = p
	e.armTimer(newID, p)

	e.logger.Debug("chained operation issued",
		"dialog_id", uint64(newID),
		"operation", req.Op.String(),
		"serving_node", req.Called.GT,
	)
}

// handleTransportFailure covers timeout, abort, reject, invoke timeout and
// corrupted components. The CDR tracker is already initialized with the
// dialog identifiers, so these paths never depend on subscriber fields.
func (e *Engine) handleTransportFailure(id mapnet.DialogID, p *pending, kind mapnet.EventKind, cause string) {
	status := transportStatus(kind)
	e.logger.Warn("dialog failed",
		"dialog_id", uint64(id),
		"kind", kind.String(),
		"cause", cause,
		"status", string(status),
	)
	e.terminate(id, p, status, failureResult(status, "signalling failure"))
}

// handleLocationReport processes a network-initiated SLR: it accounts the
// report in its own CDR and, when the reference number is still
// registered, delivers it to the caller's callback URL off this path.
// handleReportError accounts a report dialog the serving node closed with
// a MAP user error instead of a report. There is nothing to deliver.
func (e *Engine) handleReportError(ev mapnet.Event) {
	status := mapUserError(mapnet.OpSLR, ev.UserError)

	var node string
	if ev.SLR != nil {
		node = ev.SLR.NodeNumber
	}
	tracker := cdr.NewTracker(e.logger)
	tracker.Init(uint64(ev.Dialog), ev.RemoteDialog, e.cfg.GMLCAddress, e.cfg.GMLCSSN, node, e.cfg.MSCSSN)
	tracker.Apply(func(r *cdr.Record) {
		r.Flow = string(FlowLSM)
		if report := ev.SLR; report != nil {
			r.MSISDN = report.MSISDN
			r.IMSI = report.IMSI
			r.NetworkNodeNumber = report.NodeNumber
			ref := report.ReferenceNumber
			r.LCSReferenceNumber = &ref
		}
	})

	e.logger.Info("location report user error",
		"dialog_id", uint64(ev.Dialog),
		"code", ev.UserError,
		"status", string(status),
	)
	if rec, ok := tracker.Finalize(status); ok {
		e.dispatchRecord(rec)
	}
}

func (e *Engine) handleLocationReport(ev mapnet.Event) {
	report := ev.SLR
	if report == nil {
		e.logger.Warn("location report event without payload dropped",
			"dialog_id", uint64(ev.Dialog),
		)
		return
	}

	tracker := cdr.NewTracker(e.logger)
	tracker.Init(uint64(ev.Dialog), ev.RemoteDialog, e.cfg.GMLCAddress, e.cfg.GMLCSSN, report.NodeNumber, e.cfg.MSCSSN)
	tracker.Apply(func(r *cdr.Record) {
		r.Flow = string(FlowLSM)
		r.MSISDN = report.MSISDN
		r.IMSI = report.IMSI
		r.NetworkNodeNumber = report.NodeNumber
		r.DeferredLocationEventType = report.EventType
		ref := report.ReferenceNumber
		r.LCSReferenceNumber = &ref
		writeGeo(r, report.Estimate)
		r.AgeOfLocation = copyInt(report.AgeOfLocation)
	})

	regID, registered := e.registry.FindByReference(report.ReferenceNumber)

	var status cdr.RecordStatus
	switch {
	case !registered:
		status = cdr.StatusSLRUnknownLCSClient
	case report.EventType == "available":
		status = cdr.StatusSLRAvailabilitySuccess
	case report.EventType == "inside" || report.EventType == "entering" || report.EventType == "leaving":
		status = cdr.StatusSLRAreaEventSuccess
	case report.EventType == "periodic":
		status = cdr.StatusSLRPeriodicEventSuccess
	case report.Estimate != nil:
		status = cdr.StatusSLREstimateSuccess
	default:
		status = cdr.StatusSLRSuccess
	}

	if rec, ok := tracker.Finalize(status); ok {
		e.dispatchRecord(rec)
	}

	if !registered {
		e.logger.Warn("location report for unregistered reference number",
			"reference_number", report.ReferenceNumber,
		)
		return
	}

	extra := map[string]string{"eventType": report.EventType}
	if est := report.Estimate; est != nil {
		extra["latitude"] = strconv.FormatFloat(est.Latitude, 'f', -1, 64)
		extra["longitude"] = strconv.FormatFloat(est.Longitude, 'f', -1, 64)
		if est.Uncertainty != nil {
			extra["uncertainty"] = strconv.FormatFloat(*est.Uncertainty, 'f', -1, 64)
		}
	}
	e.notifier.Deliver(http.MethodPost, regID, extra)

	// A one-time event consumes its registration.
	if report.EventType != "periodic" {
		e.registry.Cancel(report.ReferenceNumber)
	}
}

// terminate finalizes the CDR with the given status and resolves the
// suspended HTTP delivery, exactly once each. Must hold the engine mutex.
func (e *Engine) terminate(id mapnet.DialogID, p *pending, status cdr.RecordStatus, res *Result) {
	e.release(id, p)
	p.state = StateDone
	e.emit(p, status)
	e.resolve(p, res)
}

// release drops the dialog key and disarms its timer.
func (e *Engine) release(id mapnet.DialogID, p *pending) {
	delete(e.dialogs, id)
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// emit finalizes the tracker and hands the record to the sink and store.
// The store write happens off the dialog path.
func (e *Engine) emit(p *pending, status cdr.RecordStatus) {
	rec, ok := p.tracker.Finalize(status)
	if !ok {
		return
	}
	e.dispatchRecord(rec)
}

func (e *Engine) dispatchRecord(rec *cdr.Record) {
	if e.sink != nil {
		e.sink.Append(rec)
	}
	if e.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.store.Insert(ctx, rec); err != nil {
				e.logger.Error("cdr store insert failed",
					"record_id", rec.ID,
					"error", err,
				)
			}
		}()
	}
}

// resolve delivers the result to the waiting HTTP goroutine. A second
// terminal transition on the same request is detected and discarded.
func (e *Engine) resolve(p *pending, res *Result) {
	if p.resolved {
		e.logger.Warn("duplicate result delivery discarded",
			"msisdn", p.req.MSISDN,
			"status", string(res.Status),
		)
		return
	}
	p.resolved = true
	select {
	case p.result <- res:
	default:
	}
}

// armTimer starts the per-dialog invoke timer. Firing is equivalent in
// structure to a dialog failure event.
func (e *Engine) armTimer(id mapnet.DialogID, p *pending) {
	p.timer = time.AfterFunc(e.cfg.DialogTimeout(), func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		cur, ok := e.dialogs[id]
		if !ok || cur != p || p.state == StateDone {
			return
		}
		e.handleTransportFailure(id, p, mapnet.EventInvokeTimeout, "no answer before invoke timer expiry")
	})
}

// successResult renders the terminal state of the tracker into the
// caller-visible result. Location fields come from whatever the terminal
// operation actually delivered.
func (e *Engine) successResult(p *pending, status cdr.RecordStatus) *Result {
	res := &Result{
		Class:  status.Class(),
		Status: status,
		MSISDN: p.req.MSISDN,
	}
	res.addField("msisdn", p.req.MSISDN)
	res.addField("flow", string(p.flow))
	res.addField("status", string(status))

	p.tracker.Apply(func(r *cdr.Record) {
		if r.Latitude != nil && r.Longitude != nil {
			lat, lon := *r.Latitude, *r.Longitude
			res.Latitude = &lat
			res.Longitude = &lon
			res.addField("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
			res.addField("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
			if r.Uncertainty != nil {
				u := *r.Uncertainty
				res.Uncertainty = &u
				res.addField("uncertainty", strconv.FormatFloat(u, 'f', -1, 64))
			}
		}
		if r.MCC != nil {
			res.addField("mcc", strconv.Itoa(*r.MCC))
			res.addField("mnc", strconv.Itoa(*r.MNC))
			res.addField("lac", strconv.Itoa(*r.LAC))
		}
		if r.CI != nil {
			res.addField("cellId", strconv.Itoa(*r.CI))
		}
		if r.AgeOfLocation != nil {
			res.addField("ageOfLocationInfo", strconv.Itoa(*r.AgeOfLocation))
		}
		if r.AgeOfLocationEstimate != nil {
			res.addField("ageOfLocationEstimate", strconv.Itoa(*r.AgeOfLocationEstimate))
		}
		res.addField("subscriberState", r.SubscriberState)
		res.addField("vlrNumber", r.VLRNumber)
		res.addField("networkNodeNumber", r.NetworkNodeNumber)
		res.addField("imsi", r.IMSI)
		res.addField("imei", r.IMEI)
		res.addField("mnpStatus", r.MNPStatus)
	})

	return res
}

// failureResult builds the caller-visible result for a failed request.
func failureResult(status cdr.RecordStatus, message string) *Result {
	return &Result{
		Class:   status.Class(),
		Status:  status,
		Message: message,
	}
}

func writeCGI(r *cdr.Record, cgi *mapnet.CellGlobalID) {
	if cgi == nil {
		return
	}
	mcc, mnc, lac := cgi.MCC, cgi.MNC, cgi.LAC
	r.MCC = &mcc
	r.MNC = &mnc
	r.LAC = &lac
	r.CI = copyInt(cgi.CI)
}

func writeGeo(r *cdr.Record, geo *mapnet.GeoEstimate) {
	if geo == nil {
		return
	}
	lat, lon := geo.Latitude, geo.Longitude
	r.Latitude = &lat
	r.Longitude = &lon
	r.Uncertainty = copyFloat(geo.Uncertainty)
	r.Altitude = copyInt(geo.Altitude)
	r.Confidence = copyInt(geo.Confidence)
	r.TypeOfShape = geo.TypeOfShape
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
