package mapnet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Profile describes one simulated subscriber: the identity and location
// data the simulated HLR/VLR/SGSN answers with, plus optional failure
// behaviour for exercising error paths.
type Profile struct {
	MSISDN            string   `json:"msisdn"`
	IMSI              string   `json:"imsi"`
	LMSI              string   `json:"lmsi,omitempty"`
	IMEI              string   `json:"imei,omitempty"`
	NetworkNodeNumber string   `json:"network_node_number"`
	GPRSNode          bool     `json:"gprs_node,omitempty"`
	VLRNumber         string   `json:"vlr_number,omitempty"`
	MSCNumber         string   `json:"msc_number,omitempty"`
	MCC               int      `json:"mcc"`
	MNC               int      `json:"mnc"`
	LAC               int      `json:"lac"`
	CI                *int     `json:"ci,omitempty"`
	AgeOfLocation     *int     `json:"age_of_location,omitempty"`
	SubscriberState   string   `json:"subscriber_state,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	Uncertainty       *float64 `json:"uncertainty,omitempty"`
	MNPStatus         string   `json:"mnp_status,omitempty"`
	RouteingNumber    string   `json:"routeing_number,omitempty"`

	// Failure behaviour. UserError forces the given MAP error code on every
	// operation; Silent swallows requests so the invoke timer fires.
	UserError int  `json:"user_error,omitempty"`
	Silent    bool `json:"silent,omitempty"`
}

// LoadProfiles reads a JSON array of simulator profiles from path.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sim profiles: %w", err)
	}
	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parsing sim profiles: %w", err)
	}
	return profiles, nil
}

// Simulator is an in-process Conn implementation answering MAP operations
// from a static subscriber profile table. It stands in for the SS7 stack
// in development deployments and drives the orchestrator in tests.
type Simulator struct {
	logger   *slog.Logger
	delay    time.Duration
	events   chan Event
	nextID   atomic.Uint64
	remoteID atomic.Uint64

	mu       sync.RWMutex
	byMSISDN map[string]*Profile
	byIMSI   map[string]*Profile

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewSimulator creates a simulator answering for the given profiles.
// Operations for subscribers with no profile fail with unknownSubscriber.
func NewSimulator(profiles []Profile, logger *slog.Logger) *Simulator {
	s := &Simulator{
		logger:   logger.With("component", "mapsim"),
		delay:    5 * time.Millisecond,
		events:   make(chan Event, 64),
		byMSISDN: make(map[string]*Profile),
		byIMSI:   make(map[string]*Profile),
		done:     make(chan struct{}),
	}
	for i := range profiles {
		p := &profiles[i]
		if p.MSISDN != "" {
			s.byMSISDN[p.MSISDN] = p
		}
		if p.IMSI != "" {
			s.byIMSI[p.IMSI] = p
		}
	}
	return s
}

// Events returns the asynchronous dialog event stream.
func (s *Simulator) Events() <-chan Event {
	return s.events
}

// Send opens a new simulated dialog and schedules the peer's answer.
func (s *Simulator) Send(ctx context.Context, req Request) (DialogID, error) {
	select {
	case <-s.done:
		return 0, fmt.Errorf("simulator closed")
	default:
	}

	id := DialogID(s.nextID.Add(1))
	remote := s.remoteID.Add(1) + 50000

	s.logger.Debug("map request sent",
		"dialog_id", uint64(id),
		"operation", req.Op.String(),
		"called_gt", req.Called.GT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-time.After(s.delay):
		case <-s.done:
			return
		}
		ev, ok := s.answer(id, remote, req)
		if !ok {
			return // silent profile: no event, invoke timer will fire
		}
		select {
		case s.events <- ev:
		case <-s.done:
		}
	}()

	return id, nil
}

// Close stops event delivery. Pending answers are discarded.
func (s *Simulator) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		close(s.events)
	})
	return nil
}

// InjectReport delivers a network-initiated subscriberLocationReport, as a
// serving node would after a deferred location event triggers.
func (s *Simulator) InjectReport(report LocationReport) {
	id := DialogID(s.nextID.Add(1))
	ev := Event{
		Dialog:       id,
		RemoteDialog: s.remoteID.Add(1) + 50000,
		Op:           OpSLR,
		Kind:         EventLocationReport,
		SLR:          &report,
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Simulator) lookup(req Request) *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch req.Op {
	case OpATI:
		return s.byMSISDN[req.ATI.MSISDN]
	case OpSRIForLCS:
		return s.byMSISDN[req.SRILCS.MSISDN]
	case OpSRIForSM:
		return s.byMSISDN[req.SRISM.MSISDN]
	case OpPSL:
		return s.byIMSI[req.PSL.IMSI]
	case OpPSI:
		return s.byIMSI[req.PSI.IMSI]
	default:
		return nil
	}
}

// answer builds the peer's event for a request. The bool is false when the
// profile is silent and no answer should be delivered at all.
func (s *Simulator) answer(id DialogID, remote uint64, req Request) (Event, bool) {
	ev := Event{Dialog: id, RemoteDialog: remote, Op: req.Op}

	p := s.lookup(req)
	if p == nil {
		ev.Kind = EventUserError
		ev.UserError = ErrUnknownSubscriber
		return ev, true
	}
	if p.Silent {
		return Event{}, false
	}
	if p.UserError != 0 {
		ev.Kind = EventUserError
		ev.UserError = p.UserError
		return ev, true
	}

	ev.Kind = EventResponse
	switch req.Op {
	case OpATI:
		ev.ATI = &ATIResponse{
			CGI:             p.cgi(),
			AgeOfLocation:   p.AgeOfLocation,
			VLRNumber:       p.VLRNumber,
			MSCNumber:       p.MSCNumber,
			SubscriberState: p.SubscriberState,
			IMEI:            p.IMEI,
		}
	case OpSRIForLCS:
		ev.SRILCS = &SRIForLCSResponse{
			IMSI:              p.IMSI,
			NetworkNodeNumber: p.NetworkNodeNumber,
			LMSI:              p.LMSI,
			GPRSNodeIndicator: p.GPRSNode,
		}
	case OpPSL:
		ev.PSL = s.pslAnswer(p, req.PSL)
	case OpSRIForSM:
		ev.SRISM = &SRIForSMResponse{
			IMSI:              p.IMSI,
			NetworkNodeNumber: p.NetworkNodeNumber,
			GPRSNodeIndicator: p.GPRSNode,
			LMSI:              p.LMSI,
		}
	case OpPSI:
		ev.PSI = &PSIResponse{
			CGI:             p.cgi(),
			AgeOfLocation:   p.AgeOfLocation,
			SubscriberState: p.SubscriberState,
			IMEI:            p.IMEI,
			VLRNumber:       p.VLRNumber,
			MSCNumber:       p.MSCNumber,
			MNPStatus:       p.MNPStatus,
			RouteingNumber:  p.RouteingNumber,
			GeoInfo:         p.geo(),
		}
	}
	return ev, true
}

func (s *Simulator) pslAnswer(p *Profile, req *PSLRequest) *PSLResponse {
	if req.LocationEstimateType == "activateDeferredLocation" {
		return &PSLResponse{DeferredAccepted: true}
	}
	return &PSLResponse{
		Estimate:              p.geo(),
		AgeOfLocationEstimate: p.AgeOfLocation,
		CGI:                   p.cgi(),
	}
}

func (p *Profile) cgi() *CellGlobalID {
	if p.MCC == 0 {
		return nil
	}
	return &CellGlobalID{MCC: p.MCC, MNC: p.MNC, LAC: p.LAC, CI: p.CI}
}

func (p *Profile) geo() *GeoEstimate {
	if p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	return &GeoEstimate{
		Latitude:    *p.Latitude,
		Longitude:   *p.Longitude,
		Uncertainty: p.Uncertainty,
		TypeOfShape: "EllipsoidPointWithUncertaintyCircle",
	}
}
