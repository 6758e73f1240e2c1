package cdr

import (
	"strconv"
	"strings"
	"time"
)

// Delimiter separates the fixed-position fields of an emitted CDR line.
const Delimiter = ","

// timeLayout is the timestamp format used inside CDR lines.
const timeLayout = "2006-01-02 15:04:05.000"

// Record is the full accounting state of one logical location request.
// Every field that a network response may or may not carry is optional:
// pointer fields use nil as the absent sentinel, string fields use "".
// An absent field is emitted as an empty slot, never as a default value.
type Record struct {
	ID          string
	Status      RecordStatus
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Flow        string // ati | lsm | sm
	RequestKind string // REST | MLP
	CoreNetwork string

	// Dialog identifiers. A chained flow records the second stage's pair too.
	LocalDialogID        *uint64
	RemoteDialogID       *uint64
	SecondLocalDialogID  *uint64
	SecondRemoteDialogID *uint64

	// SCCP addressing of the first dialog.
	LocalGT   string
	LocalSSN  *int
	RemoteGT  string
	RemoteSSN *int

	// Subscriber identity.
	MSISDN string
	IMSI   string
	LMSI   string
	IMEI   string

	// Routing data revealed by SRIforLCS / SRIforSM.
	NetworkNodeNumber string
	GPRSNodeIndicator *bool
	AdditionalNumber  string
	MMEName           string
	SGSNName          string
	VLRNumber         string
	MSCNumber         string

	// Cell identity.
	MCC           *int
	MNC           *int
	LAC           *int
	CI            *int
	AgeOfLocation *int
	SAIPresent    *bool

	// Subscriber state.
	SubscriberState    string
	NotReachableReason string

	// Geographical estimate.
	Latitude             *float64
	Longitude            *float64
	Uncertainty          *float64
	Altitude             *int
	UncertaintyAltitude  *float64
	Confidence           *int
	TypeOfShape          string
	InnerRadius          *int
	UncertaintyRadius    *float64
	OffsetAngle          *int
	IncludedAngle        *int
	UncertaintySemiMajor *float64
	UncertaintySemiMinor *float64
	AngleOfMajorAxis     *int

	AgeOfLocationEstimate *int
	AccuracyFulfilment    string
	PositioningData       string

	// Velocity estimate.
	VelocityType               string
	HorizontalSpeed            *int
	Bearing                    *int
	VerticalSpeed              *int
	UncertaintyHorizontalSpeed *int
	UncertaintyVerticalSpeed   *int

	// LCS client parameters from the inbound request.
	LCSClientType      string
	LCSClientName      string
	LCSServiceTypeID   *int
	LCSReferenceNumber *int

	// QoS parameters from the inbound request.
	Priority                    string
	HorizontalAccuracy          *int
	VerticalAccuracy            *int
	VerticalCoordinateRequested *bool
	ResponseTimeCategory        string
	LocationEstimateType        string

	// Deferred / area-event parameters.
	DeferredLocationEventType string
	AreaType                  string
	AreaID                    string
	OccurrenceInfo            string
	IntervalTime              *int
	ReportingAmount           *int
	ReportingInterval         *int
	CallbackURL               string

	// PSI-specific number-portability fields.
	MNPStatus      string
	RouteingNumber string
	MNPIMSI        string
	MNPMSISDN      string
}

// FieldCount is the number of slots in every emitted CDR line. Downstream
// consumers parse by position, so this must not change between releases
// without a schema version bump.
const FieldCount = 90

// Line serializes the record into one delimited line with a fixed column
// count. Absent fields become empty slots (consecutive delimiters). Every
// access is nil-safe: a record finalized with no subscriber data at all
// still renders all FieldCount slots.
func (r *Record) Line() string {
	slots := make([]string, 0, FieldCount)

	add := func(s string) { slots = append(slots, s) }
	addTime := func(t time.Time) {
		if t.IsZero() {
			add("")
			return
		}
		add(t.UTC().Format(timeLayout))
	}
	addInt := func(p *int) {
		if p == nil {
			add("")
			return
		}
		add(strconv.Itoa(*p))
	}
	addUint64 := func(p *uint64) {
		if p == nil {
			add("")
			return
		}
		add(strconv.FormatUint(*p, 10))
	}
	addFloat := func(p *float64) {
		if p == nil {
			add("")
			return
		}
		add(strconv.FormatFloat(*p, 'f', -1, 64))
	}
	addBool := func(p *bool) {
		if p == nil {
			add("")
			return
		}
		add(strconv.FormatBool(*p))
	}

	addTime(r.EndTime)
	add(r.ID)
	add(string(r.Status))
	add(string(r.Status.Class()))
	addTime(r.StartTime)
	if r.Duration > 0 || !r.StartTime.IsZero() {
		add(strconv.FormatInt(r.Duration.Milliseconds(), 10))
	} else {
		add("")
	}
	add(r.Flow)
	add(r.RequestKind)
	add(r.CoreNetwork)

	addUint64(r.LocalDialogID)
	addUint64(r.RemoteDialogID)
	addUint64(r.SecondLocalDialogID)
	addUint64(r.SecondRemoteDialogID)

	add(r.LocalGT)
	addInt(r.LocalSSN)
	add(r.RemoteGT)
	addInt(r.RemoteSSN)

	add(r.MSISDN)
	add(r.IMSI)
	add(r.LMSI)
	add(r.IMEI)

	add(r.NetworkNodeNumber)
	addBool(r.GPRSNodeIndicator)
	add(r.AdditionalNumber)
	add(r.MMEName)
	add(r.SGSNName)
	add(r.VLRNumber)
	add(r.MSCNumber)

	addInt(r.MCC)
	addInt(r.MNC)
	addInt(r.LAC)
	addInt(r.CI)
	addInt(r.AgeOfLocation)
	addBool(r.SAIPresent)

	add(r.SubscriberState)
	add(r.NotReachableReason)

	addFloat(r.Latitude)
	addFloat(r.Longitude)
	addFloat(r.Uncertainty)
	addInt(r.Altitude)
	addFloat(r.UncertaintyAltitude)
	addInt(r.Confidence)
	add(r.TypeOfShape)
	addInt(r.InnerRadius)
	addFloat(r.UncertaintyRadius)
	addInt(r.OffsetAngle)
	addInt(r.IncludedAngle)
	addFloat(r.UncertaintySemiMajor)
	addFloat(r.UncertaintySemiMinor)
	addInt(r.AngleOfMajorAxis)

	addInt(r.AgeOfLocationEstimate)
	add(r.AccuracyFulfilment)
	add(r.PositioningData)

	add(r.VelocityType)
	addInt(r.HorizontalSpeed)
	addInt(r.Bearing)
	addInt(r.VerticalSpeed)
	addInt(r.UncertaintyHorizontalSpeed)
	addInt(r.UncertaintyVerticalSpeed)

	add(r.LCSClientType)
	add(r.LCSClientName)
	addInt(r.LCSServiceTypeID)
	addInt(r.LCSReferenceNumber)

	add(r.Priority)
	addInt(r.HorizontalAccuracy)
	addInt(r.VerticalAccuracy)
	addBool(r.VerticalCoordinateRequested)
	add(r.ResponseTimeCategory)
	add(r.LocationEstimateType)

	add(r.DeferredLocationEventType)
	add(r.AreaType)
	add(r.AreaID)
	add(r.OccurrenceInfo)
	addInt(r.IntervalTime)
	addInt(r.ReportingAmount)
	addInt(r.ReportingInterval)
	add(r.CallbackURL)

	add(r.MNPStatus)
	add(r.RouteingNumber)
	add(r.MNPIMSI)
	add(r.MNPMSISDN)

	// Reserved trailing slots keep the column count stable for
	// consumers of the legacy fixed-width schema.
	for len(slots) < FieldCount {
		add("")
	}

	return strings.Join(slots, Delimiter)
}
