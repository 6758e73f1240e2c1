package engine

import (
	"github.com/openlcs/gmlc/internal/cdr"
	"github.com/openlcs/gmlc/internal/mapnet"
)

// Per-operation tables from MAP user error code to record status. Exactly
// one status is emitted per error; codes outside the table fall through to
// the operation's generic error status.

var atiErrors = map[int]cdr.RecordStatus{
	mapnet.ErrATINotAllowed:       cdr.StatusATINotAllowed,
	mapnet.ErrSystemFailure:       cdr.StatusATISystemFailure,
	mapnet.ErrDataMissing:         cdr.StatusATIDataMissing,
	mapnet.ErrUnexpectedDataValue: cdr.StatusATIUnexpectedDataValue,
	mapnet.ErrUnknownSubscriber:   cdr.StatusATIUnknownSubscriber,
}

var srilcsErrors = map[int]cdr.RecordStatus{
	mapnet.ErrSystemFailure:        cdr.StatusSRILCSSystemFailure,
	mapnet.ErrDataMissing:          cdr.StatusSRILCSDataMissing,
	mapnet.ErrUnexpectedDataValue:  cdr.StatusSRILCSUnexpectedDataValue,
	mapnet.ErrUnknownSubscriber:    cdr.StatusSRILCSUnknownSubscriber,
	mapnet.ErrAbsentSubscriber:     cdr.StatusSRILCSAbsentSubscriber,
	mapnet.ErrFacilityNotSupported: cdr.StatusSRILCSFacilityNotSupported,
	mapnet.ErrUnauthorizedNetwork:  cdr.StatusSRILCSUnauthorizedNetwork,
}

var pslErrors = map[int]cdr.RecordStatus{
	mapnet.ErrUnauthorizedNetwork:    cdr.StatusPSLUnauthorizedNetwork,
	mapnet.ErrUnauthorizedLCSClient:  cdr.StatusPSLUnauthorizedLCSClient,
	mapnet.ErrPositionMethodFailure:  cdr.StatusPSLPositionMethodFailure,
	mapnet.ErrAbsentSubscriber:       cdr.StatusPSLAbsentSubscriber,
	mapnet.ErrFacilityNotSupported:   cdr.StatusPSLFacilityNotSupported,
	mapnet.ErrIllegalSubscriber:      cdr.StatusPSLIllegalSubscriber,
	mapnet.ErrIllegalEquipment:       cdr.StatusPSLIllegalEquipment,
	mapnet.ErrUnidentifiedSubscriber: cdr.StatusPSLUnidentifiedSubscriber,
	mapnet.ErrSystemFailure:          cdr.StatusPSLSystemFailure,
	mapnet.ErrDataMissing:            cdr.StatusPSLDataMissing,
	mapnet.ErrUnexpectedDataValue:    cdr.StatusPSLUnexpectedDataValue,
	mapnet.ErrUnknownSubscriber:      cdr.StatusPSLUnknownSubscriber,
}

var slrErrors = map[int]cdr.RecordStatus{
	mapnet.ErrUnknownOrUnreachable: cdr.StatusSLRUnknownLCSClient,
	mapnet.ErrMMEventNotSupported:  cdr.StatusSLRMMEventNotSupported,
	mapnet.ErrSystemFailure:        cdr.StatusSLRSystemFailure,
	mapnet.ErrDataMissing:          cdr.StatusSLRDataMissing,
	mapnet.ErrUnexpectedDataValue:  cdr.StatusSLRUnexpectedDataValue,
}

var srismErrors = map[int]cdr.RecordStatus{
	mapnet.ErrUnknownSubscriber:    cdr.StatusSRISMUnknownSubscriber,
	mapnet.ErrAbsentSubscriberSM:   cdr.StatusSRISMAbsentSubscriberSM,
	mapnet.ErrCallBarred:           cdr.StatusSRISMCallBarred,
	mapnet.ErrFacilityNotSupported: cdr.StatusSRISMFacilityNotSupported,
	mapnet.ErrAbsentSubscriber:     cdr.StatusSRISMAbsentSubscriber,
	mapnet.ErrSystemFailure:        cdr.StatusSRISMSystemFailure,
	mapnet.ErrDataMissing:          cdr.StatusSRISMDataMissing,
	mapnet.ErrUnexpectedDataValue:  cdr.StatusSRISMUnexpectedDataValue,
}

var psiErrors = map[int]cdr.RecordStatus{
	mapnet.ErrUnknownSubscriber:   cdr.StatusPSIUnknownSubscriber,
	mapnet.ErrAbsentSubscriber:    cdr.StatusPSIAbsentSubscriber,
	mapnet.ErrSystemFailure:       cdr.StatusPSISystemFailure,
	mapnet.ErrDataMissing:         cdr.StatusPSIDataMissing,
	mapnet.ErrUnexpectedDataValue: cdr.StatusPSIUnexpectedDataValue,
}

// mapUserError resolves a MAP user error code against the table of the
// operation that produced it.
func mapUserError(op mapnet.Operation, code int) cdr.RecordStatus {
	var table map[int]cdr.RecordStatus
	var fallback cdr.RecordStatus
	switch op {
	case mapnet.OpATI:
		table, fallback = atiErrors, cdr.StatusATIError
	case mapnet.OpSRIForLCS:
		table, fallback = srilcsErrors, cdr.StatusSRILCSError
	case mapnet.OpPSL:
		table, fallback = pslErrors, cdr.StatusPSLError
	case mapnet.OpSLR:
		table, fallback = slrErrors, cdr.StatusSLRError
	case mapnet.OpSRIForSM:
		table, fallback = srismErrors, cdr.StatusSRISMError
	case mapnet.OpPSI:
		table, fallback = psiErrors, cdr.StatusPSIError
	default:
		return cdr.StatusInternalError
	}
	if status, ok := table[code]; ok {
		return status
	}
	return fallback
}

// transportStatus maps a dialog-level failure event kind to its status.
func transportStatus(kind mapnet.EventKind) cdr.RecordStatus {
	switch kind {
	case mapnet.EventDialogTimeout:
		return cdr.StatusTCAPDialogTimeout
	case mapnet.EventReject:
		return cdr.StatusTCAPDialogRejected
	case mapnet.EventProviderAbort:
		return cdr.StatusTCAPProviderAbort
	case mapnet.EventUserAbort:
		return cdr.StatusTCAPUserAbort
	case mapnet.EventInvokeTimeout:
		return cdr.StatusTCAPInvokeTimeout
	case mapnet.EventCorrupt:
		return cdr.StatusTCAPCorruptMessage
	default:
		return cdr.StatusInternalError
	}
}
