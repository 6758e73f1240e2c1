package cdr

import "strings"

// RecordStatus is the accounting outcome of one logical location request.
// The set is closed: every terminal transition of a dialog maps to exactly
// one value here. Values are grouped by the MAP operation that produced
// them; the TCAP_* group covers dialog-level failures that carry no
// operation context.
type RecordStatus string

// Dialog-level transport failures. These can occur on any flow and carry
// no subscriber data.
const (
	StatusTCAPDialogTimeout     RecordStatus = "TCAP_DIALOG_TIMEOUT"
	StatusTCAPDialogRejected    RecordStatus = "TCAP_DIALOG_REJECTED"
	StatusTCAPProviderAbort     RecordStatus = "TCAP_DIALOG_PROVIDER_ABORT"
	StatusTCAPUserAbort         RecordStatus = "TCAP_DIALOG_USER_ABORT"
	StatusTCAPInvokeTimeout     RecordStatus = "TCAP_INVOKE_TIMEOUT"
	StatusTCAPCorruptMessage    RecordStatus = "TCAP_CORRUPT_MESSAGE"
	StatusInternalError         RecordStatus = "INTERNAL_ERROR"
)

// AnyTimeInterrogation outcomes.
const (
	StatusATICGISuccess      RecordStatus = "ATI_CGI_SUCCESS"
	StatusATICGIStateSuccess RecordStatus = "ATI_CGI_STATE_SUCCESS"
	StatusATILAISuccess      RecordStatus = "ATI_LAI_SUCCESS"
	StatusATILAIStateSuccess RecordStatus = "ATI_LAI_STATE_SUCCESS"
	StatusATIGeoSuccess      RecordStatus = "ATI_GEO_SUCCESS"
	StatusATIGeoStateSuccess RecordStatus = "ATI_GEO_STATE_SUCCESS"
	StatusATIStateSuccess    RecordStatus = "ATI_STATE_SUCCESS"
	StatusATISuccess         RecordStatus = "ATI_SUCCESS"

	StatusATINotAllowed           RecordStatus = "ATI_NOT_ALLOWED"
	StatusATISystemFailure        RecordStatus = "ATI_SYSTEM_FAILURE"
	StatusATIDataMissing          RecordStatus = "ATI_DATA_MISSING"
	StatusATIUnexpectedDataValue  RecordStatus = "ATI_UNEXPECTED_DATA_VALUE"
	StatusATIUnknownSubscriber    RecordStatus = "ATI_UNKNOWN_SUBSCRIBER"
	StatusATIError                RecordStatus = "ATI_ERROR"
)

// SendRoutingInfoForLCS outcomes. The routing stage never finalizes a
// record on success; a successful lookup carries the request into the
// provideSubscriberLocation stage, whose outcome is the one recorded.
const (
	StatusSRILCSSystemFailure           RecordStatus = "SRILCS_SYSTEM_FAILURE"
	StatusSRILCSDataMissing             RecordStatus = "SRILCS_DATA_MISSING"
	StatusSRILCSUnexpectedDataValue     RecordStatus = "SRILCS_UNEXPECTED_DATA_VALUE"
	StatusSRILCSUnknownSubscriber       RecordStatus = "SRILCS_UNKNOWN_SUBSCRIBER"
	StatusSRILCSAbsentSubscriber        RecordStatus = "SRILCS_ABSENT_SUBSCRIBER"
	StatusSRILCSFacilityNotSupported    RecordStatus = "SRILCS_FACILITY_NOT_SUPPORTED"
	StatusSRILCSUnauthorizedNetwork     RecordStatus = "SRILCS_UNAUTHORIZED_REQUESTING_NETWORK"
	StatusSRILCSError                   RecordStatus = "SRILCS_ERROR"
)

// ProvideSubscriberLocation outcomes.
const (
	StatusPSLEstimateSuccess         RecordStatus = "PSL_ESTIMATE_SUCCESS"
	StatusPSLEstimateAgeSuccess      RecordStatus = "PSL_ESTIMATE_AGE_SUCCESS"
	StatusPSLEstimateVelocitySuccess RecordStatus = "PSL_ESTIMATE_VELOCITY_SUCCESS"
	StatusPSLEstimateCellSuccess     RecordStatus = "PSL_ESTIMATE_CELL_SUCCESS"
	StatusPSLEstimateFullSuccess     RecordStatus = "PSL_ESTIMATE_FULL_SUCCESS"
	StatusPSLDeferredAccepted        RecordStatus = "PSL_DEFERRED_ACCEPTED"
	StatusPSLSuccess                 RecordStatus = "PSL_SUCCESS"

	StatusPSLUnauthorizedNetwork     RecordStatus = "PSL_UNAUTHORIZED_REQUESTING_NETWORK"
	StatusPSLUnauthorizedLCSClient   RecordStatus = "PSL_UNAUTHORIZED_LCS_CLIENT"
	StatusPSLPositionMethodFailure   RecordStatus = "PSL_POSITION_METHOD_FAILURE"
	StatusPSLAbsentSubscriber        RecordStatus = "PSL_ABSENT_SUBSCRIBER"
	StatusPSLFacilityNotSupported    RecordStatus = "PSL_FACILITY_NOT_SUPPORTED"
	StatusPSLIllegalSubscriber       RecordStatus = "PSL_ILLEGAL_SUBSCRIBER"
	StatusPSLIllegalEquipment        RecordStatus = "PSL_ILLEGAL_EQUIPMENT"
	StatusPSLUnidentifiedSubscriber  RecordStatus = "PSL_UNIDENTIFIED_SUBSCRIBER"
	StatusPSLSystemFailure           RecordStatus = "PSL_SYSTEM_FAILURE"
	StatusPSLDataMissing             RecordStatus = "PSL_DATA_MISSING"
	StatusPSLUnexpectedDataValue     RecordStatus = "PSL_UNEXPECTED_DATA_VALUE"
	StatusPSLUnknownSubscriber       RecordStatus = "PSL_UNKNOWN_SUBSCRIBER"
	StatusPSLError                   RecordStatus = "PSL_ERROR"
)

// SubscriberLocationReport outcomes.
const (
	StatusSLRAvailabilitySuccess  RecordStatus = "SLR_AVAILABILITY_SUCCESS"
	StatusSLRAreaEventSuccess     RecordStatus = "SLR_AREA_EVENT_SUCCESS"
	StatusSLRPeriodicEventSuccess RecordStatus = "SLR_PERIODIC_EVENT_SUCCESS"
	StatusSLREstimateSuccess      RecordStatus = "SLR_ESTIMATE_SUCCESS"
	StatusSLRSuccess              RecordStatus = "SLR_SUCCESS"

	StatusSLRUnknownLCSClient      RecordStatus = "SLR_UNKNOWN_OR_UNREACHABLE_LCS_CLIENT"
	StatusSLRMMEventNotSupported   RecordStatus = "SLR_MM_EVENT_NOT_SUPPORTED"
	StatusSLRSystemFailure         RecordStatus = "SLR_SYSTEM_FAILURE"
	StatusSLRDataMissing           RecordStatus = "SLR_DATA_MISSING"
	StatusSLRUnexpectedDataValue   RecordStatus = "SLR_UNEXPECTED_DATA_VALUE"
	StatusSLRError                 RecordStatus = "SLR_ERROR"
)

// SendRoutingInfoForSM outcomes. As with the LCS routing stage, success
// chains into provideSubscriberInfo and only failures are recorded here.
const (
	StatusSRISMUnknownSubscriber    RecordStatus = "SRISM_UNKNOWN_SUBSCRIBER"
	StatusSRISMAbsentSubscriberSM   RecordStatus = "SRISM_ABSENT_SUBSCRIBER_SM"
	StatusSRISMCallBarred           RecordStatus = "SRISM_CALL_BARRED"
	StatusSRISMFacilityNotSupported RecordStatus = "SRISM_FACILITY_NOT_SUPPORTED"
	StatusSRISMAbsentSubscriber     RecordStatus = "SRISM_ABSENT_SUBSCRIBER"
	StatusSRISMSystemFailure        RecordStatus = "SRISM_SYSTEM_FAILURE"
	StatusSRISMDataMissing          RecordStatus = "SRISM_DATA_MISSING"
	StatusSRISMUnexpectedDataValue  RecordStatus = "SRISM_UNEXPECTED_DATA_VALUE"
	StatusSRISMError                RecordStatus = "SRISM_ERROR"
)

// ProvideSubscriberInfo outcomes.
const (
	StatusPSICGISuccess      RecordStatus = "PSI_CGI_SUCCESS"
	StatusPSICGIStateSuccess RecordStatus = "PSI_CGI_STATE_SUCCESS"
	StatusPSIGeoSuccess      RecordStatus = "PSI_GEO_SUCCESS"
	StatusPSIGeoStateSuccess RecordStatus = "PSI_GEO_STATE_SUCCESS"
	StatusPSIStateSuccess    RecordStatus = "PSI_STATE_SUCCESS"
	StatusPSIIMEISuccess     RecordStatus = "PSI_IMEI_SUCCESS"
	StatusPSIMNPSuccess      RecordStatus = "PSI_MNP_SUCCESS"
	StatusPSISuccess         RecordStatus = "PSI_SUCCESS"

	StatusPSIUnknownSubscriber   RecordStatus = "PSI_UNKNOWN_SUBSCRIBER"
	StatusPSIAbsentSubscriber    RecordStatus = "PSI_ABSENT_SUBSCRIBER"
	StatusPSISystemFailure       RecordStatus = "PSI_SYSTEM_FAILURE"
	StatusPSIDataMissing         RecordStatus = "PSI_DATA_MISSING"
	StatusPSIUnexpectedDataValue RecordStatus = "PSI_UNEXPECTED_DATA_VALUE"
	StatusPSIError               RecordStatus = "PSI_ERROR"
)

// ResultClass is the externally visible classification of an outcome,
// rendered to the HTTP caller (REST status line, MLP result code).
type ResultClass string

const (
	ClassOK                ResultClass = "OK"
	ClassSystemFailure     ResultClass = "SYSTEM_FAILURE"
	ClassUnknownSubscriber ResultClass = "UNKNOWN_SUBSCRIBER"
	ClassFormatError       ResultClass = "FORMAT_ERROR"
)

// Class maps a record status onto its externally visible result class.
// Successes (including an accepted deferred request) are OK; subscriber
// identity failures map to UNKNOWN_SUBSCRIBER; malformed-exchange errors
// map to FORMAT_ERROR; everything else is a SYSTEM_FAILURE.
func (s RecordStatus) Class() ResultClass {
	name := string(s)
	switch {
	case strings.HasSuffix(name, "_SUCCESS"), s == StatusPSLDeferredAccepted:
		return ClassOK
	case strings.HasSuffix(name, "_UNKNOWN_SUBSCRIBER"),
		strings.HasSuffix(name, "_UNIDENTIFIED_SUBSCRIBER"),
		strings.HasSuffix(name, "_ABSENT_SUBSCRIBER"),
		strings.HasSuffix(name, "_ABSENT_SUBSCRIBER_SM"):
		return ClassUnknownSubscriber
	case strings.HasSuffix(name, "_DATA_MISSING"),
		strings.HasSuffix(name, "_UNEXPECTED_DATA_VALUE"):
		return ClassFormatError
	default:
		return ClassSystemFailure
	}
}

// Success reports whether the status represents a completed location
// (or accepted deferred request) rather than a failure.
func (s RecordStatus) Success() bool {
	return s.Class() == ClassOK
}
