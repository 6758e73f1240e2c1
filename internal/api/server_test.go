package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openlcs/gmlc/internal/cdr"
	"github.com/openlcs/gmlc/internal/cdrstore"
	"github.com/openlcs/gmlc/internal/config"
	"github.com/openlcs/gmlc/internal/engine"
)

// fakeLocator records the request it received and returns a scripted result.
type fakeLocator struct {
	lastReq *engine.LocationRequest
	result  *engine.Result
	err     error
}

func (f *fakeLocator) Locate(_ context.Context, req *engine.LocationRequest) (*engine.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeStore serves canned records.
type fakeStore struct {
	recs []cdrstore.StoredRecord
}

func (f *fakeStore) Insert(context.Context, *cdr.Record) error { return nil }

func (f *fakeStore) GetByID(_ context.Context, id string) (*cdrstore.StoredRecord, error) {
	for i := range f.recs {
		if f.recs[i].ID == id {
			return &f.recs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) List(context.Context, cdrstore.Filter) ([]cdrstore.StoredRecord, int, error) {
	return f.recs, len(f.recs), nil
}

func (f *fakeStore) CountByClass(context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (f *fakeStore) Close() error { return nil }

func successResult() *engine.Result {
	lat, lon := -34.901, -56.164
	return &engine.Result{
		Class:     cdr.ClassOK,
		Status:    cdr.StatusATICGISuccess,
		MSISDN:    "59899077937",
		Latitude:  &lat,
		Longitude: &lon,
		Fields: []engine.Field{
			{Key: "msisdn", Value: "59899077937"},
			{Key: "latitude", Value: "-34.901"},
			{Key: "status", Value: "ATI_CGI_SUCCESS"},
		},
	}
}

func newTestServer(loc Locator, store cdrstore.Store, cfg *config.Config) *Server {
	if cfg == nil {
		cfg = &config.Config{}
	}
	s := NewServer(cfg, loc, store, nil)
	return s
}

func TestRESTSuccessRendersKeyValues(t *testing.T) {
	loc := &fakeLocator{result: successResult()}
	s := newTestServer(loc, nil, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gmlc/rest?msisdn=59899077937", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"msisdn=59899077937", "latitude=-34.901", "status=ATI_CGI_SUCCESS"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRESTFailureReturns500(t *testing.T) {
	loc := &fakeLocator{result: &engine.Result{
		Class:   cdr.ClassSystemFailure,
		Status:  cdr.StatusTCAPDialogTimeout,
		Message: "signalling failure",
	}}
	s := newTestServer(loc, nil, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gmlc/rest?msisdn=59899077937", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SYSTEM_FAILURE") {
		t.Errorf("body missing class: %s", rec.Body.String())
	}
}

func TestRESTParameterDefaults(t *testing.T) {
	loc := &fakeLocator{result: successResult()}
	s := newTestServer(loc, nil, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/gmlc/rest?msisdn=59899077937&priority=highestPriority&lcsReferenceNumber=junk", nil))

	req := loc.lastReq
	if req == nil {
		t.Fatal("locator never invoked")
	}
	if req.Kind != engine.KindREST {
		t.Errorf("kind = %s", req.Kind)
	}
	if req.Priority != "highestPriority" {
		t.Errorf("priority = %q", req.Priority)
	}
	if req.CoreNetwork != engine.DefaultCoreNetwork {
		t.Errorf("coreNetwork = %q", req.CoreNetwork)
	}
	if req.HorizontalAccuracy != engine.DefaultAccuracy {
		t.Errorf("horizontalAccuracy = %d", req.HorizontalAccuracy)
	}
	// Unparsable number falls back to its default.
	if req.LCSReferenceNumber != 0 {
		t.Errorf("lcsReferenceNumber = %d, want 0", req.LCSReferenceNumber)
	}
	if req.SLRCallbackURL != engine.DefaultSLRCallbackURL {
		t.Errorf("slrCallbackUrl = %q", req.SLRCallbackURL)
	}
}

func TestMLPAlwaysAnswers200(t *testing.T) {
	loc := &fakeLocator{result: &engine.Result{
		Class:   cdr.ClassUnknownSubscriber,
		Status:  cdr.StatusATIUnknownSubscriber,
		MSISDN:  "59899077937",
		Message: "MAP user error 1",
	}}
	s := newTestServer(loc, nil, nil)

	body := `<svc_init ver="3.2.0"><slir ver="3.2.0">
		<msids><msid type="MSISDN">59899077937</msid></msids>
	</slir></svc_init>`
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gmlc/mlp", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `<result resid="4">UNKNOWN SUBSCRIBER</result>`) {
		t.Errorf("body missing mlp error: %s", rec.Body.String())
	}
}

func TestMLPParseFailureRendersFormatError(t *testing.T) {
	loc := &fakeLocator{result: successResult()}
	s := newTestServer(loc, nil, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gmlc/mlp", strings.NewReader("not xml at all")))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `resid="105"`) {
		t.Errorf("body missing format error: %s", rec.Body.String())
	}
	if loc.lastReq != nil {
		t.Error("locator invoked for unparsable document")
	}
}

func TestUnknownPathReturns404(t *testing.T) {
	s := newTestServer(&fakeLocator{result: successResult()}, nil, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gmlc/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeLocator{}, nil, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func adminConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	return &config.Config{
		JWTSecret:         strings.Repeat("ab", 32),
		AdminUser:         "operator",
		AdminPasswordHash: hash,
	}
}

func login(t *testing.T, s *Server, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(loginRequest{Username: username, Password: password})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body)))
	return rec
}

func TestLoginAndProtectedCDRRoutes(t *testing.T) {
	cfg := adminConfig(t)
	store := &fakeStore{recs: []cdrstore.StoredRecord{
		{ID: "rec-1", Status: "ATI_CGI_SUCCESS", Class: "OK", MSISDN: "59899077937", Line: "line-1"},
	}}
	s := newTestServer(&fakeLocator{}, store, cfg)

	// Wrong password.
	if rec := login(t, s, "operator", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", rec.Code)
	}

	// Correct credentials issue a token.
	rec := login(t, s, "operator", "hunter2hunter2")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200", rec.Code)
	}
	var resp struct {
		Data loginResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if resp.Data.Token == "" {
		t.Fatal("empty token")
	}

	// Without a token the CDR routes refuse.
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cdrs/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated list status = %d, want 401", rec.Code)
	}

	// With the token the list succeeds.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cdrs/", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Data.Token)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rec-1") {
		t.Errorf("list body missing record: %s", rec.Body.String())
	}

	// Export streams the raw sink lines.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/cdrs/export", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Data.Token)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "line-1") {
		t.Errorf("export body missing line: %s", rec.Body.String())
	}
}

func TestAdminRoutesAbsentWithoutConfig(t *testing.T) {
	s := newTestServer(&fakeLocator{}, &fakeStore{}, &config.Config{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cdrs/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("cdrs without admin config status = %d, want 404", rec.Code)
	}
}
