// Package engine is the GMLC's location-request orchestration core. It
// selects the signalling flow for an inbound request, drives one or two
// chained MAP dialogs against the core network, accumulates the request's
// CDR, and resolves exactly one result back to the waiting HTTP caller.
package engine

import (
	"github.com/openlcs/gmlc/internal/cdr"
)

// RequestKind distinguishes the two inbound client protocols.
type RequestKind string

const (
	KindREST RequestKind = "REST"
	KindMLP  RequestKind = "MLP"
)

// Flow identifies which signalling flow answers a request.
type Flow string

const (
	// FlowATI is a single anyTimeInterrogation against the HLR.
	FlowATI Flow = "ati"
	// FlowLSM chains sendRoutingInfoForLCS and provideSubscriberLocation.
	FlowLSM Flow = "lsm"
	// FlowSM chains sendRoutingInfoForSM and provideSubscriberInfo, or
	// goes straight to provideSubscriberInfo when addressing was supplied.
	FlowSM Flow = "sm"
)

// LocationRequest is the canonical, immutable form of one inbound location
// request, produced by the REST or MLP ingress adapter. Parse-time defaults
// are already applied; Validate rejects illegal enum values before any
// network I/O.
type LocationRequest struct {
	Kind   RequestKind
	MSISDN string

	CoreNetwork string // gsm | umts
	Priority    string // normalPriority | highestPriority

	HorizontalAccuracy        int
	VerticalAccuracy          int
	VerticalCoordinateRequest bool
	ResponseTimeCategory      string // delaytolerant | lowdelay
	LocationEstimateType      string

	DeferredLocationEventType string
	AreaType                  string
	AreaID                    string
	OccurrenceInfo            string // oneTimeEvent | multipleTimeEvent
	IntervalTime              int
	ReportingAmount           int
	ReportingInterval         int

	LCSReferenceNumber int
	LCSServiceTypeID   int
	SLRCallbackURL     string

	PSIService     bool
	PSIServiceType string // psiFirst | sriFirst
	PSIIMSI        string
	PSINNN         string
}

// Parameter defaults applied by the ingress adapters for absent values.
const (
	DefaultCoreNetwork          = "gsm"
	DefaultPriority             = "normalPriority"
	DefaultAccuracy             = 999999
	DefaultResponseTimeCategory = "delaytolerant"
	DefaultLocationEstimateType = "currentOrLastKnownLocation"
	DefaultDeferredEventType    = "available"
	DefaultAreaType             = "cellGlobalId"
	DefaultAreaID               = "9999999"
	DefaultOccurrenceInfo       = "oneTimeEvent"
	DefaultLCSServiceTypeID     = 1
	DefaultSLRCallbackURL       = "http://localhost:8080"
	DefaultPSIServiceType       = "sriFirst"
)

// SelectFlow decides which signalling flow answers the request. PSI-mode
// requests take the SM flow regardless of core network; UMTS requests take
// the LSM flow; everything else is a single ATI against the HLR.
func (r *LocationRequest) SelectFlow() Flow {
	if r.PSIService {
		return FlowSM
	}
	if r.CoreNetwork == "umts" {
		return FlowLSM
	}
	return FlowATI
}

// DirectPSI reports whether the SM flow can skip sendRoutingInfoForSM
// because the caller supplied the IMSI and serving node directly.
func (r *LocationRequest) DirectPSI() bool {
	return r.PSIService && r.PSIServiceType == "psiFirst" && r.PSIIMSI != "" && r.PSINNN != ""
}

// Field is one key=value pair of a rendered result.
type Field struct {
	Key   string
	Value string
}

// Result is the terminal outcome of one logical request, rendered to the
// caller by the REST or MLP response renderer.
type Result struct {
	Class   cdr.ResultClass
	Status  cdr.RecordStatus
	Message string
	MSISDN  string

	// Location estimate for the MLP renderer. Nil when the flow produced
	// no coordinates.
	Latitude    *float64
	Longitude   *float64
	Uncertainty *float64

	// Fields is the ordered key=value summary for the REST renderer.
	Fields []Field
}

// OK reports whether the result is a success.
func (r *Result) OK() bool {
	return r.Class == cdr.ClassOK
}

func (r *Result) addField(key, value string) {
	if value == "" {
		return
	}
	r.Fields = append(r.Fields, Field{Key: key, Value: value})
}
