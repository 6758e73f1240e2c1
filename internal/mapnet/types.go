// Package mapnet defines the outbound signalling collaborator of the GMLC:
// the MAP operations it can issue, the decoded response parameters each
// operation may return, and the asynchronous dialog events delivered back
// to the orchestrator. The SS7/SCCP/TCAP wire encoding itself lives behind
// the Conn interface.
package mapnet

// DialogID identifies a local TCAP dialog.
type DialogID uint64

// Address is an SCCP address: a global title plus subsystem number.
type Address struct {
	GT  string
	SSN int
}

// Operation enumerates the MAP operations the GMLC issues or receives.
type Operation int

const (
	OpATI Operation = iota // anyTimeInterrogation
	OpSRIForLCS            // sendRoutingInfoForLCS
	OpPSL                  // provideSubscriberLocation
	OpSRIForSM             // sendRoutingInfoForSM
	OpPSI                  // provideSubscriberInfo
	OpSLR                  // subscriberLocationReport (network initiated)
)

// String returns the MAP operation name.
func (o Operation) String() string {
	switch o {
	case OpATI:
		return "anyTimeInterrogation"
	case OpSRIForLCS:
		return "sendRoutingInfoForLCS"
	case OpPSL:
		return "provideSubscriberLocation"
	case OpSRIForSM:
		return "sendRoutingInfoForSM"
	case OpPSI:
		return "provideSubscriberInfo"
	case OpSLR:
		return "subscriberLocationReport"
	default:
		return "unknown"
	}
}

// MAP user error codes returned inside error components. Only the codes
// the orchestrator maps explicitly are named; any other code falls through
// to the operation's generic error outcome.
const (
	ErrUnknownSubscriber      = 1
	ErrUnidentifiedSubscriber = 5
	ErrAbsentSubscriberSM     = 6
	ErrIllegalSubscriber      = 9
	ErrIllegalEquipment       = 12
	ErrCallBarred             = 13
	ErrFacilityNotSupported   = 21
	ErrAbsentSubscriber       = 27
	ErrSystemFailure          = 34
	ErrDataMissing            = 35
	ErrUnexpectedDataValue    = 36
	ErrATINotAllowed          = 49
	ErrUnauthorizedNetwork    = 52
	ErrUnauthorizedLCSClient  = 53
	ErrPositionMethodFailure  = 54
	ErrUnknownOrUnreachable   = 58
	ErrMMEventNotSupported    = 59
)

// Request is one outbound MAP operation on a fresh dialog. Exactly one of
// the per-operation parameter structs is set, matching Op.
type Request struct {
	Op      Operation
	Calling Address
	Called  Address

	ATI    *ATIRequest
	SRILCS *SRIForLCSRequest
	PSL    *PSLRequest
	SRISM  *SRIForSMRequest
	PSI    *PSIRequest
}

// ATIRequest asks the HLR for the subscriber's stored location and state.
type ATIRequest struct {
	MSISDN            string
	RequestLocation   bool
	RequestState      bool
	GSMSCFAddress     string
}

// SRIForLCSRequest asks the HLR for LCS routing info (serving node).
type SRIForLCSRequest struct {
	MSISDN      string
	GMLCAddress string
}

// PSLRequest asks the serving MSC/SGSN for an active location estimate.
type PSLRequest struct {
	IMSI                      string
	LMSI                      string
	MLCNumber                 string
	Priority                  string
	HorizontalAccuracy        *int
	VerticalAccuracy          *int
	VerticalCoordinateRequest bool
	ResponseTimeCategory      string
	LocationEstimateType      string
	DeferredLocationEventType string
	AreaType                  string
	AreaID                    string
	OccurrenceInfo            string
	IntervalTime              *int
	ReportingAmount           *int
	ReportingInterval         *int
	LCSReferenceNumber        int
	LCSServiceTypeID          int
}

// SRIForSMRequest asks the HLR for SM routing info (IMSI + serving node).
type SRIForSMRequest struct {
	MSISDN          string
	ServiceCentre   string
	SMRPPRI         bool
}

// PSIRequest asks the VLR/SGSN for the subscriber's stored info.
type PSIRequest struct {
	IMSI            string
	LMSI            string
	RequestLocation bool
	RequestState    bool
	RequestIMEI     bool
	RequestMNP      bool
}

// CellGlobalID is a CGI or, with LAC only, a LAI.
type CellGlobalID struct {
	MCC int
	MNC int
	LAC int
	CI  *int // nil when only a LAI was returned
}

// GeoEstimate is a decoded geographical information element.
type GeoEstimate struct {
	Latitude    float64
	Longitude   float64
	Uncertainty *float64
	Altitude    *int
	Confidence  *int
	TypeOfShape string
}

// Velocity is a decoded velocity estimate.
type Velocity struct {
	Type                       string
	HorizontalSpeed            int
	Bearing                    int
	VerticalSpeed              *int
	UncertaintyHorizontalSpeed *int
	UncertaintyVerticalSpeed   *int
}

// ATIResponse carries the decoded anyTimeInterrogation result. Every field
// is optional; nil means the element was absent from the response.
type ATIResponse struct {
	CGI             *CellGlobalID
	AgeOfLocation   *int
	VLRNumber       string
	MSCNumber       string
	GeoInfo         *GeoEstimate
	SubscriberState string
	NotReachable    string
	IMEI            string
	SAIPresent      *bool
}

// SRIForLCSResponse carries the decoded sendRoutingInfoForLCS result.
type SRIForLCSResponse struct {
	IMSI              string
	NetworkNodeNumber string
	LMSI              string
	GPRSNodeIndicator bool
	AdditionalNumber  string
	MMEName           string
	SGSNName          string
}

// PSLResponse carries the decoded provideSubscriberLocation result.
type PSLResponse struct {
	Estimate              *GeoEstimate
	AgeOfLocationEstimate *int
	AccuracyFulfilment    string
	Velocity              *Velocity
	PositioningData       string
	CGI                   *CellGlobalID
	DeferredAccepted      bool
}

// SRIForSMResponse carries the decoded sendRoutingInfoForSM result.
type SRIForSMResponse struct {
	IMSI              string
	NetworkNodeNumber string
	GPRSNodeIndicator bool
	LMSI              string
	AdditionalNumber  string
}

// PSIResponse carries the decoded provideSubscriberInfo result.
type PSIResponse struct {
	CGI             *CellGlobalID
	GeoInfo         *GeoEstimate
	AgeOfLocation   *int
	SubscriberState string
	NotReachable    string
	IMEI            string
	VLRNumber       string
	MSCNumber       string
	MNPStatus       string
	RouteingNumber  string
	MNPIMSI         string
	MNPMSISDN       string
	SAIPresent      *bool
}

// LocationReport carries a network-initiated subscriberLocationReport.
type LocationReport struct {
	ReferenceNumber int
	EventType       string // available | inside | entering | leaving | periodic
	MSISDN          string
	IMSI            string
	NodeNumber      string
	Estimate        *GeoEstimate
	AgeOfLocation   *int
}

// EventKind classifies an asynchronous dialog event.
type EventKind int

const (
	// EventResponse delivers a decoded operation result.
	EventResponse EventKind = iota
	// EventUserError delivers a MAP user error code from the peer.
	EventUserError
	// EventDialogTimeout fires when the dialog idle timer expires.
	EventDialogTimeout
	// EventProviderAbort signals a TCAP provider abort.
	EventProviderAbort
	// EventUserAbort signals a TCAP user abort from the peer.
	EventUserAbort
	// EventReject signals a rejected component.
	EventReject
	// EventInvokeTimeout fires when a sent invoke got no answer in time.
	EventInvokeTimeout
	// EventCorrupt signals an undecodable or malformed component.
	EventCorrupt
	// EventLocationReport delivers a network-initiated SLR on a new dialog.
	EventLocationReport
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventResponse:
		return "response"
	case EventUserError:
		return "user_error"
	case EventDialogTimeout:
		return "dialog_timeout"
	case EventProviderAbort:
		return "provider_abort"
	case EventUserAbort:
		return "user_abort"
	case EventReject:
		return "reject"
	case EventInvokeTimeout:
		return "invoke_timeout"
	case EventCorrupt:
		return "corrupt"
	case EventLocationReport:
		return "location_report"
	default:
		return "unknown"
	}
}

// Event is one asynchronous notification on a dialog. For EventResponse
// exactly one of the response pointers matching Op is set.
type Event struct {
	Dialog       DialogID
	RemoteDialog uint64
	Op           Operation
	Kind         EventKind
	UserError    int    // set for EventUserError
	Cause        string // diagnostic text for aborts/rejects/corruption

	ATI    *ATIResponse
	SRILCS *SRIForLCSResponse
	PSL    *PSLResponse
	SRISM  *SRIForSMResponse
	PSI    *PSIResponse
	SLR    *LocationReport
}
