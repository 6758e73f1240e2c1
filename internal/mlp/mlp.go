// Package mlp implements the subset of the Mobile Location Protocol 3.x
// surface the GMLC serves: parsing an inbound svc_init carrying an SLIR
// (standard location immediate request) into the canonical location
// request, and rendering the terminal result as an svc_result document.
// Errors travel inside the body, never via the HTTP status line.
package mlp

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openlcs/gmlc/internal/cdr"
	"github.com/openlcs/gmlc/internal/engine"
)

// Version is the protocol version stamped on rendered documents.
const Version = "3.2.0"

// MLP result identifiers (OMA MLP 3.2 result codes).
const (
	resultOK                = "0"
	resultSystemFailure     = "1"
	resultUnknownSubscriber = "4"
	resultFormatError       = "105"
)

type svcInit struct {
	XMLName xml.Name `xml:"svc_init"`
	Ver     string   `xml:"ver,attr"`
	Header  *header  `xml:"hdr"`
	SLIR    *slir    `xml:"slir"`
}

type header struct {
	Client struct {
		ID  string `xml:"id"`
		Pwd string `xml:"pwd"`
	} `xml:"client"`
}

type slir struct {
	MSIDs   msids    `xml:"msids"`
	EQoP    *eqop    `xml:"eqop"`
	LocType *locType `xml:"loc_type"`
	Prio    *prio    `xml:"prio"`
}

type msids struct {
	MSID []msid `xml:"msid"`
}

type msid struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type eqop struct {
	RespReq *respReq `xml:"resp_req"`
	HorAcc  string   `xml:"hor_acc"`
	VertAcc string   `xml:"alt_acc"`
}

type respReq struct {
	Type string `xml:"type,attr"`
}

type locType struct {
	Type string `xml:"type,attr"`
}

type prio struct {
	Type string `xml:"type,attr"`
}

// locTypes maps MLP loc_type attributes onto the internal estimate types.
var locTypes = map[string]string{
	"CURRENT":         "currentLocation",
	"CURRENT_OR_LAST": "currentOrLastKnownLocation",
	"INITIAL":         "initialLocation",
}

// Parse decodes an svc_init document into the canonical location request.
// Absent optional elements take the same defaults as the REST ingress, so
// both protocols feed the orchestrator identically.
func Parse(body []byte) (*engine.LocationRequest, error) {
	var doc svcInit
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("malformed svc_init document: %w", err)
	}
	if doc.SLIR == nil {
		return nil, fmt.Errorf("svc_init carries no slir element")
	}

	var number string
	for _, m := range doc.SLIR.MSIDs.MSID {
		if m.Type == "" || strings.EqualFold(m.Type, "MSISDN") {
			number = strings.TrimSpace(m.Value)
			break
		}
	}
	if number == "" {
		return nil, fmt.Errorf("slir carries no MSISDN msid")
	}

	req := &engine.LocationRequest{
		Kind:                 engine.KindMLP,
		MSISDN:               number,
		CoreNetwork:          engine.DefaultCoreNetwork,
		Priority:             engine.DefaultPriority,
		HorizontalAccuracy:   engine.DefaultAccuracy,
		VerticalAccuracy:     engine.DefaultAccuracy,
		ResponseTimeCategory: engine.DefaultResponseTimeCategory,
		LocationEstimateType: engine.DefaultLocationEstimateType,
		AreaType:             engine.DefaultAreaType,
		AreaID:               engine.DefaultAreaID,
		OccurrenceInfo:       engine.DefaultOccurrenceInfo,
		LCSServiceTypeID:     engine.DefaultLCSServiceTypeID,
		SLRCallbackURL:       engine.DefaultSLRCallbackURL,
		PSIServiceType:       engine.DefaultPSIServiceType,
	}

	if lt := doc.SLIR.LocType; lt != nil {
		if mapped, ok := locTypes[strings.ToUpper(lt.Type)]; ok {
			req.LocationEstimateType = mapped
		}
	}
	if p := doc.SLIR.Prio; p != nil && strings.EqualFold(p.Type, "HIGH") {
		req.Priority = "highestPriority"
	}
	if q := doc.SLIR.EQoP; q != nil {
		if q.RespReq != nil && strings.EqualFold(q.RespReq.Type, "LOW_DELAY") {
			req.ResponseTimeCategory = "lowdelay"
		}
		if v, err := strconv.Atoi(strings.TrimSpace(q.HorAcc)); err == nil && v > 0 {
			req.HorizontalAccuracy = v
		}
		if v, err := strconv.Atoi(strings.TrimSpace(q.VertAcc)); err == nil && v > 0 {
			req.VerticalAccuracy = v
			req.VerticalCoordinateRequest = true
		}
	}

	return req, nil
}

// timeLayout is the MLP pd time format.
const timeLayout = "20060102150405"

// Render serializes a terminal result into an svc_result document. The
// document always represents a valid MLP answer: successes carry a pos
// element, failures a poserr with the mapped MLP result code.
func Render(res *engine.Result, now time.Time) []byte {
	var b strings.Builder
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, "<svc_result ver=%q>\n", Version)
	fmt.Fprintf(&b, "  <slia ver=%q>\n", Version)
	b.WriteString("    <pos>\n")
	fmt.Fprintf(&b, "      <msid>%s</msid>\n", escape(res.MSISDN))

	if res.OK() && res.Latitude != nil && res.Longitude != nil {
		b.WriteString("      <pd>\n")
		fmt.Fprintf(&b, "        <time>%s</time>\n", now.UTC().Format(timeLayout))
		b.WriteString("        <shape>\n")
		b.WriteString("          <CircularArea>\n")
		b.WriteString("            <coord>\n")
		fmt.Fprintf(&b, "              <X>%s</X>\n", formatCoord(*res.Latitude))
		fmt.Fprintf(&b, "              <Y>%s</Y>\n", formatCoord(*res.Longitude))
		b.WriteString("            </coord>\n")
		if res.Uncertainty != nil {
			fmt.Fprintf(&b, "            <radius>%s</radius>\n",
				strconv.FormatFloat(*res.Uncertainty, 'f', -1, 64))
		}
		b.WriteString("          </CircularArea>\n")
		b.WriteString("        </shape>\n")
		b.WriteString("      </pd>\n")
	} else if res.OK() {
		// Success without coordinates (state-only or deferred acceptance):
		// an empty pd carrying only the answer time.
		b.WriteString("      <pd>\n")
		fmt.Fprintf(&b, "        <time>%s</time>\n", now.UTC().Format(timeLayout))
		b.WriteString("      </pd>\n")
	} else {
		code, text := resultCode(res.Class)
		b.WriteString("      <poserr>\n")
		fmt.Fprintf(&b, "        <result resid=%q>%s</result>\n", code, text)
		if res.Message != "" {
			fmt.Fprintf(&b, "        <add_info>%s</add_info>\n", escape(res.Message))
		}
		fmt.Fprintf(&b, "        <time>%s</time>\n", now.UTC().Format(timeLayout))
		b.WriteString("      </poserr>\n")
	}

	b.WriteString("    </pos>\n")
	b.WriteString("  </slia>\n")
	b.WriteString("</svc_result>\n")
	return []byte(b.String())
}

// resultCode maps the internal result class to the MLP result id and text.
func resultCode(class cdr.ResultClass) (string, string) {
	switch class {
	case cdr.ClassOK:
		return resultOK, "OK"
	case cdr.ClassUnknownSubscriber:
		return resultUnknownSubscriber, "UNKNOWN SUBSCRIBER"
	case cdr.ClassFormatError:
		return resultFormatError, "FORMAT ERROR"
	default:
		return resultSystemFailure, "SYSTEM FAILURE"
	}
}

// formatCoord renders a coordinate in decimal degrees.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func escape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
