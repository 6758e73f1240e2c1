package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openlcs/gmlc/internal/cdr"
	"github.com/openlcs/gmlc/internal/engine"
	"github.com/openlcs/gmlc/internal/mlp"
)

// maxMLPBody bounds inbound MLP documents.
const maxMLPBody = 64 * 1024

// handleREST is the REST ingress adapter: query parameters are parsed with
// their documented defaults into the canonical request, and the terminal
// result renders as a plaintext key=value summary (200) or an error message
// (500).
func (s *Server) handleREST(w http.ResponseWriter, r *http.Request) {
	req := parseRESTParams(r)

	res, err := s.locator.Locate(r.Context(), req)
	if err != nil {
		slog.Error("location request aborted", "msisdn", req.MSISDN, "error", err)
		writePlain(w, http.StatusInternalServerError, "internal error")
		return
	}

	if !res.OK() {
		msg := string(res.Class)
		if res.Message != "" {
			msg += ": " + res.Message
		}
		writePlain(w, http.StatusInternalServerError, msg)
		return
	}

	var b strings.Builder
	for _, f := range res.Fields {
		fmt.Fprintf(&b, "%s=%s\n", f.Key, f.Value)
	}
	writePlain(w, http.StatusOK, b.String())
}

// handleMLP is the MLP ingress adapter. The answer is always HTTP 200
// carrying an svc_result document; errors travel inside the body.
func (s *Server) handleMLP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMLPBody))
	if err != nil {
		writeMLP(w, &engine.Result{
			Class:   cdr.ClassFormatError,
			Message: "unreadable request body",
		})
		return
	}

	req, err := mlp.Parse(body)
	if err != nil {
		slog.Info("mlp request rejected", "error", err)
		writeMLP(w, &engine.Result{
			Class:   cdr.ClassFormatError,
			Message: err.Error(),
		})
		return
	}

	res, err := s.locator.Locate(r.Context(), req)
	if err != nil {
		slog.Error("location request aborted", "msisdn", req.MSISDN, "error", err)
		writeMLP(w, &engine.Result{
			Class:   cdr.ClassSystemFailure,
			MSISDN:  req.MSISDN,
			Message: "internal error",
		})
		return
	}

	writeMLP(w, res)
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		slog.Error("failed to write plaintext response", "error", err)
	}
}

func writeMLP(w http.ResponseWriter, res *engine.Result) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(mlp.Render(res, time.Now())); err != nil {
		slog.Error("failed to write mlp response", "error", err)
	}
}

// parseRESTParams builds the canonical request from query parameters,
// applying the documented default for every absent or unparsable value.
// Enum validation happens later in the orchestrator, before any network
// I/O.
func parseRESTParams(r *http.Request) *engine.LocationRequest {
	q := r.URL.Query()

	str := func(name, def string) string {
		if v := q.Get(name); v != "" {
			return v
		}
		return def
	}
	num := func(name string, def int) int {
		if v, err := strconv.Atoi(q.Get(name)); err == nil {
			return v
		}
		return def
	}
	boolean := func(name string) bool {
		return strings.EqualFold(q.Get(name), "true")
	}

	return &engine.LocationRequest{
		Kind:   engine.KindREST,
		MSISDN: q.Get("msisdn"),

		CoreNetwork: str("coreNetwork", engine.DefaultCoreNetwork),
		Priority:    str("priority", engine.DefaultPriority),

		HorizontalAccuracy:        num("horizontalAccuracy", engine.DefaultAccuracy),
		VerticalAccuracy:          num("verticalAccuracy", engine.DefaultAccuracy),
		VerticalCoordinateRequest: boolean("vertCoordinateRequest"),
		ResponseTimeCategory:      str("responseTimeCategory", engine.DefaultResponseTimeCategory),
		LocationEstimateType:      str("locationEstimateType", engine.DefaultLocationEstimateType),

		DeferredLocationEventType: str("deferredLocationEventType", engine.DefaultDeferredEventType),
		AreaType:                  str("areaType", engine.DefaultAreaType),
		AreaID:                    str("areaId", engine.DefaultAreaID),
		OccurrenceInfo:            str("occurrenceInfo", engine.DefaultOccurrenceInfo),
		IntervalTime:              num("intervalTime", 0),
		ReportingAmount:           num("reportingAmount", 0),
		ReportingInterval:         num("reportingInterval", 0),

		LCSReferenceNumber: num("lcsReferenceNumber", 0),
		LCSServiceTypeID:   num("lcsServiceTypeID", engine.DefaultLCSServiceTypeID),
		SLRCallbackURL:     str("slrCallbackUrl", engine.DefaultSLRCallbackURL),

		PSIService:     boolean("psiService"),
		PSIServiceType: str("psiServiceType", engine.DefaultPSIServiceType),
		PSIIMSI:        q.Get("psiImsi"),
		PSINNN:         q.Get("psiNnn"),
	}
}
