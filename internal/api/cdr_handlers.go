package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openlcs/gmlc/internal/cdrstore"
)

// cdrListResponse pages stored CDRs.
type cdrListResponse struct {
	Records []cdrstore.StoredRecord `json:"records"`
	Total   int                     `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// handleListCDRs returns stored CDRs matching the query filters.
func (s *Server) handleListCDRs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "cdr store not configured")
		return
	}

	filter, err := parseCDRFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, total, err := s.store.List(r.Context(), filter)
	if err != nil {
		slog.Error("listing cdrs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list cdrs")
		return
	}
	if recs == nil {
		recs = []cdrstore.StoredRecord{}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	writeJSON(w, http.StatusOK, cdrListResponse{
		Records: recs,
		Total:   total,
		Limit:   limit,
		Offset:  filter.Offset,
	})
}

// handleGetCDR returns one stored CDR by id.
func (s *Server) handleGetCDR(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "cdr store not configured")
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("fetching cdr", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch cdr")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "cdr not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleExportCDRs streams matching CDRs in the sink's delimited line
// format, one record per line.
func (s *Server) handleExportCDRs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "cdr store not configured")
		return
	}

	filter, err := parseCDRFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit <= 0 {
		filter.Limit = 10000
	}

	recs, _, err := s.store.List(r.Context(), filter)
	if err != nil {
		slog.Error("exporting cdrs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export cdrs")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="cdrs.csv"`)
	w.WriteHeader(http.StatusOK)
	for _, rec := range recs {
		if _, err := w.Write([]byte(rec.Line + "\n")); err != nil {
			slog.Error("writing cdr export", "error", err)
			return
		}
	}
}

// parseCDRFilter reads the list/export query parameters.
func parseCDRFilter(r *http.Request) (cdrstore.Filter, error) {
	q := r.URL.Query()
	filter := cdrstore.Filter{
		Status: q.Get("status"),
		Class:  q.Get("class"),
		Flow:   q.Get("flow"),
		MSISDN: q.Get("msisdn"),
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.To = t
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	return filter, nil
}
