package mapnet

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testProfiles() []Profile {
	ci := 221
	age := 5
	lat, lon, unc := -34.9011, -56.1645, 100.0
	return []Profile{
		{
			MSISDN:            "59899077937",
			IMSI:              "748026912345678",
			NetworkNodeNumber: "5982123007",
			VLRNumber:         "59899000231",
			MCC:               748, MNC: 2, LAC: 32005, CI: &ci,
			AgeOfLocation:   &age,
			SubscriberState: "assumedIdle",
			Latitude:        &lat, Longitude: &lon, Uncertainty: &unc,
		},
		{
			MSISDN:    "59899000000",
			IMSI:      "748020000000000",
			UserError: ErrAbsentSubscriber,
		},
		{
			MSISDN: "59899011111",
			IMSI:   "748020111111111",
			Silent: true,
		},
	}
}

func waitEvent(t *testing.T, sim *Simulator) Event {
	t.Helper()
	select {
	case ev := <-sim.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for simulator event")
		return Event{}
	}
}

func TestSimulatorATIResponse(t *testing.T) {
	sim := NewSimulator(testProfiles(), testLogger())
	defer sim.Close()

	id, err := sim.Send(context.Background(), Request{
		Op:  OpATI,
		ATI: &ATIRequest{MSISDN: "59899077937", RequestLocation: true, RequestState: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := waitEvent(t, sim)
	if ev.Dialog != id {
		t.Errorf("event dialog = %d, want %d", ev.Dialog, id)
	}
	if ev.Kind != EventResponse || ev.ATI == nil {
		t.Fatalf("expected ATI response, got kind=%s", ev.Kind)
	}
	if ev.ATI.CGI == nil || ev.ATI.CGI.MCC != 748 {
		t.Errorf("unexpected CGI: %+v", ev.ATI.CGI)
	}
	if ev.ATI.SubscriberState != "assumedIdle" {
		t.Errorf("SubscriberState = %q", ev.ATI.SubscriberState)
	}
}

func TestSimulatorUnknownSubscriber(t *testing.T) {
	sim := NewSimulator(testProfiles(), testLogger())
	defer sim.Close()

	if _, err := sim.Send(context.Background(), Request{
		Op:  OpSRIForLCS,
		SRILCS: &SRIForLCSRequest{MSISDN: "59899099999"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := waitEvent(t, sim)
	if ev.Kind != EventUserError || ev.UserError != ErrUnknownSubscriber {
		t.Errorf("kind=%s code=%d, want user_error/1", ev.Kind, ev.UserError)
	}
}

func TestSimulatorForcedUserError(t *testing.T) {
	sim := NewSimulator(testProfiles(), testLogger())
	defer sim.Close()

	if _, err := sim.Send(context.Background(), Request{
		Op:  OpATI,
		ATI: &ATIRequest{MSISDN: "59899000000"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := waitEvent(t, sim)
	if ev.Kind != EventUserError || ev.UserError != ErrAbsentSubscriber {
		t.Errorf("kind=%s code=%d, want user_error/27", ev.Kind, ev.UserError)
	}
}

func TestSimulatorSilentProfileEmitsNothing(t *testing.T) {
	sim := NewSimulator(testProfiles(), testLogger())
	defer sim.Close()

	if _, err := sim.Send(context.Background(), Request{
		Op:  OpATI,
		ATI: &ATIRequest{MSISDN: "59899011111"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case ev := <-sim.Events():
		t.Fatalf("unexpected event for silent profile: kind=%s", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSimulatorDeferredPSLAccepted(t *testing.T) {
	sim := NewSimulator(testProfiles(), testLogger())
	defer sim.Close()

	if _, err := sim.Send(context.Background(), Request{
		Op: OpPSL,
		PSL: &PSLRequest{
			IMSI:                 "748026912345678",
			LocationEstimateType: "activateDeferredLocation",
		},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := waitEvent(t, sim)
	if ev.Kind != EventResponse || ev.PSL == nil || !ev.PSL.DeferredAccepted {
		t.Fatalf("expected deferred-accepted PSL response, got %+v", ev)
	}
}

func TestSimulatorDistinctDialogIDs(t *testing.T) {
	sim := NewSimulator(testProfiles(), testLogger())
	defer sim.Close()

	seen := make(map[DialogID]bool)
	for i := 0; i < 10; i++ {
		id, err := sim.Send(context.Background(), Request{
			Op:  OpATI,
			ATI: &ATIRequest{MSISDN: "59899077937"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[id] {
			t.Fatalf("dialog id %d repeated", id)
		}
		seen[id] = true
	}
}
