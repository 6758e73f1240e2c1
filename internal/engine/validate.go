package engine

import "fmt"

// Legal value sets for the enumerated request parameters. Validation runs
// before any network I/O; an illegal value aborts the request with a
// FORMAT_ERROR and issues nothing.
var (
	legalCoreNetworks = map[string]bool{"gsm": true, "umts": true}
	legalPriorities   = map[string]bool{"normalPriority": true, "highestPriority": true}
	legalResponseTime = map[string]bool{"delaytolerant": true, "lowdelay": true}

	legalEstimateTypes = map[string]bool{
		"currentLocation":            true,
		"currentOrLastKnownLocation": true,
		"initialLocation":            true,
		"activateDeferredLocation":   true,
		"cancelDeferredLocation":     true,
	}
	legalDeferredEvents = map[string]bool{
		"available": true,
		"inside":    true,
		"entering":  true,
		"leaving":   true,
	}
	legalAreaTypes = map[string]bool{
		"locationAreaId": true,
		"cellGlobalId":   true,
		"countryCode":    true,
		"plmnId":         true,
		"routingAreaId":  true,
		"utranCellId":    true,
	}
	legalOccurrence      = map[string]bool{"oneTimeEvent": true, "multipleTimeEvent": true}
	legalPSIServiceTypes = map[string]bool{"psiFirst": true, "sriFirst": true}
)

// Validate checks every enumerated parameter against its legal value set.
// It returns the first violation found, or nil when the request can be
// issued to the network.
func Validate(r *LocationRequest) error {
	if r.MSISDN == "" {
		return fmt.Errorf("msisdn is required")
	}
	for _, c := range r.MSISDN {
		if c < '0' || c > '9' {
			return fmt.Errorf("msisdn must contain only digits, got %q", r.MSISDN)
		}
	}
	if !legalCoreNetworks[r.CoreNetwork] {
		return fmt.Errorf("coreNetwork must be gsm or umts, got %q", r.CoreNetwork)
	}
	if !legalPriorities[r.Priority] {
		return fmt.Errorf("priority must be normalPriority or highestPriority, got %q", r.Priority)
	}
	if r.HorizontalAccuracy < 0 {
		return fmt.Errorf("horizontalAccuracy must not be negative, got %d", r.HorizontalAccuracy)
	}
	if r.VerticalAccuracy < 0 {
		return fmt.Errorf("verticalAccuracy must not be negative, got %d", r.VerticalAccuracy)
	}
	if !legalResponseTime[r.ResponseTimeCategory] {
		return fmt.Errorf("responseTimeCategory must be delaytolerant or lowdelay, got %q", r.ResponseTimeCategory)
	}
	if !legalEstimateTypes[r.LocationEstimateType] {
		return fmt.Errorf("locationEstimateType %q is not a legal value", r.LocationEstimateType)
	}
	if !legalDeferredEvents[r.DeferredLocationEventType] {
		return fmt.Errorf("deferredLocationEventType %q is not a legal value", r.DeferredLocationEventType)
	}
	if !legalAreaTypes[r.AreaType] {
		return fmt.Errorf("areaType %q is not a legal value", r.AreaType)
	}
	if !legalOccurrence[r.OccurrenceInfo] {
		return fmt.Errorf("occurrenceInfo must be oneTimeEvent or multipleTimeEvent, got %q", r.OccurrenceInfo)
	}
	if r.LCSReferenceNumber < 0 {
		return fmt.Errorf("lcsReferenceNumber must not be negative, got %d", r.LCSReferenceNumber)
	}
	if !legalPSIServiceTypes[r.PSIServiceType] {
		return fmt.Errorf("psiServiceType must be psiFirst or sriFirst, got %q", r.PSIServiceType)
	}
	if r.PSINNN != "" {
		for _, c := range r.PSINNN {
			if c < '0' || c > '9' {
				return fmt.Errorf("psiNnn must contain only digits, got %q", r.PSINNN)
			}
		}
	}
	return nil
}
