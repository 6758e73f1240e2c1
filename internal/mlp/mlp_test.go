package mlp

import (
	"strings"
	"testing"
	"time"

	"github.com/openlcs/gmlc/internal/cdr"
	"github.com/openlcs/gmlc/internal/engine"
)

const sampleSLIR = `<?xml version="1.0"?>
<svc_init ver="3.2.0">
  <hdr ver="3.2.0">
    <client><id>lbsapp</id><pwd>secret</pwd></client>
  </hdr>
  <slir ver="3.2.0">
    <msids><msid type="MSISDN">59899077937</msid></msids>
    <eqop>
      <resp_req type="LOW_DELAY"/>
      <hor_acc>100</hor_acc>
    </eqop>
    <loc_type type="CURRENT"/>
    <prio type="HIGH"/>
  </slir>
</svc_init>`

func TestParseSLIR(t *testing.T) {
	req, err := Parse([]byte(sampleSLIR))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Kind != engine.KindMLP {
		t.Errorf("kind = %s", req.Kind)
	}
	if req.MSISDN != "59899077937" {
		t.Errorf("msisdn = %q", req.MSISDN)
	}
	if req.Priority != "highestPriority" {
		t.Errorf("priority = %q", req.Priority)
	}
	if req.ResponseTimeCategory != "lowdelay" {
		t.Errorf("response time = %q", req.ResponseTimeCategory)
	}
	if req.HorizontalAccuracy != 100 {
		t.Errorf("horizontal accuracy = %d", req.HorizontalAccuracy)
	}
	if req.LocationEstimateType != "currentLocation" {
		t.Errorf("estimate type = %q", req.LocationEstimateType)
	}
	if req.VerticalCoordinateRequest {
		t.Error("vertical coordinate should not be requested")
	}
}

func TestParseDefaultsWhenElementsAbsent(t *testing.T) {
	minimal := `<svc_init ver="3.2.0"><slir ver="3.2.0">
		<msids><msid type="MSISDN">59899011111</msid></msids>
	</slir></svc_init>`
	req, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Priority != engine.DefaultPriority {
		t.Errorf("priority = %q", req.Priority)
	}
	if req.HorizontalAccuracy != engine.DefaultAccuracy {
		t.Errorf("horizontal accuracy = %d", req.HorizontalAccuracy)
	}
	if req.LocationEstimateType != engine.DefaultLocationEstimateType {
		t.Errorf("estimate type = %q", req.LocationEstimateType)
	}
}

func TestParseRejectsMissingMSISDN(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no slir", `<svc_init ver="3.2.0"></svc_init>`},
		{"empty msids", `<svc_init><slir><msids></msids></slir></svc_init>`},
		{"not xml", `{"msisdn":"59899077937"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.body)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestRenderSuccessCarriesCircularArea(t *testing.T) {
	lat, lon, unc := -34.901112, -56.164532, 150.0
	res := &engine.Result{
		Class:       cdr.ClassOK,
		Status:      cdr.StatusPSLEstimateSuccess,
		MSISDN:      "59899077937",
		Latitude:    &lat,
		Longitude:   &lon,
		Uncertainty: &unc,
	}
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	doc := string(Render(res, now))
	for _, want := range []string{
		`<svc_result ver="3.2.0">`,
		"<msid>59899077937</msid>",
		"<X>-34.901112</X>",
		"<Y>-56.164532</Y>",
		"<radius>150</radius>",
		"<time>20260314150926</time>",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
	if strings.Contains(doc, "<poserr>") {
		t.Error("success document carries poserr")
	}
}

func TestRenderSuccessWithoutCoordinates(t *testing.T) {
	res := &engine.Result{
		Class:  cdr.ClassOK,
		Status: cdr.StatusATIStateSuccess,
		MSISDN: "59899077937",
	}
	doc := string(Render(res, time.Now()))
	if !strings.Contains(doc, "<pd>") {
		t.Error("expected empty pd element")
	}
	if strings.Contains(doc, "<shape>") {
		t.Error("no-coordinate success must not carry a shape")
	}
}

func TestRenderErrorInsideBody(t *testing.T) {
	cases := []struct {
		class cdr.ResultClass
		resid string
		text  string
	}{
		{cdr.ClassSystemFailure, "1", "SYSTEM FAILURE"},
		{cdr.ClassUnknownSubscriber, "4", "UNKNOWN SUBSCRIBER"},
		{cdr.ClassFormatError, "105", "FORMAT ERROR"},
	}
	for _, tc := range cases {
		t.Run(string(tc.class), func(t *testing.T) {
			res := &engine.Result{
				Class:   tc.class,
				MSISDN:  "59899077937",
				Message: "dialog failed",
			}
			doc := string(Render(res, time.Now()))
			want := `<result resid="` + tc.resid + `">` + tc.text + `</result>`
			if !strings.Contains(doc, want) {
				t.Errorf("document missing %q:\n%s", want, doc)
			}
			if !strings.Contains(doc, "<add_info>dialog failed</add_info>") {
				t.Error("document missing add_info")
			}
		})
	}
}

func TestRenderEscapesMessage(t *testing.T) {
	res := &engine.Result{
		Class:   cdr.ClassFormatError,
		MSISDN:  "59899077937",
		Message: `illegal value "<oops>"`,
	}
	doc := string(Render(res, time.Now()))
	if strings.Contains(doc, "<oops>") {
		t.Errorf("message not escaped:\n%s", doc)
	}
	if !strings.Contains(doc, "&lt;oops&gt;") {
		t.Errorf("expected escaped message:\n%s", doc)
	}
}
