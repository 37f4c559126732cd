package submission

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/onecall/internal/models"
	"github.com/zulandar/onecall/internal/script"
	"github.com/zulandar/onecall/internal/telephony"
)

// fakeGateway scripts the call lifecycle: each CallStatus poll pops the next
// status from the sequence, sticking on the last one.
type fakeGateway struct {
	placed     []telephony.PlaceCallOpts
	statuses   []string
	statusIdx  int
	recordings []telephony.Recording
	placeErr   error
}

func (g *fakeGateway) PlaceCall(ctx context.Context, opts telephony.PlaceCallOpts) (*telephony.Call, error) {
	if g.placeErr != nil {
		return nil, g.placeErr
	}
	g.placed = append(g.placed, opts)
	return &telephony.Call{ID: "CA-test-1", Status: "queued"}, nil
}

func (g *fakeGateway) CallStatus(ctx context.Context, callID string) (*telephony.Call, error) {
	status := g.statuses[g.statusIdx]
	if g.statusIdx < len(g.statuses)-1 {
		g.statusIdx++
	}
	return &telephony.Call{ID: callID, Status: status, Duration: 95}, nil
}

func (g *fakeGateway) Recordings(ctx context.Context, callID string) ([]telephony.Recording, error) {
	return g.recordings, nil
}

// fakeGenerator returns a canned script or an error to force the fallback.
type fakeGenerator struct {
	script *script.CallScript
	err    error
	calls  int
}

func (f *fakeGenerator) CallScript(ctx context.Context, data models.FormData, district *models.District) (*script.CallScript, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.script, nil
}

func (f *fakeGenerator) FormInstructions(ctx context.Context, formHTML string, data models.FormData) ([]script.Instruction, error) {
	return nil, fmt.Errorf("not used")
}

type fakeTranscriber struct {
	transcript string
	err        error

	info     map[string]interface{}
	infoErr  error
	infoCall int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, recordingURL string) (string, error) {
	return f.transcript, f.err
}

func (f *fakeTranscriber) ExtractTranscriptInfo(ctx context.Context, transcript string) (map[string]interface{}, error) {
	f.infoCall++
	return f.info, f.infoErr
}

func phoneDistrict() *models.District {
	return &models.District{
		ID: "CA-USANORTH", Name: "USA North 811",
		Phone: "811", AltPhone: "800-227-2600",
		Methods: []string{"phone"},
	}
}

func fastPhoneAdapter(gw telephony.Gateway, gen script.Generator, tr script.Transcriber) *PhoneAdapter {
	a := NewPhoneAdapter(gw, gen, tr)
	a.timeout = 200 * time.Millisecond
	a.pollInterval = 5 * time.Millisecond
	return a
}

func TestPhoneAdapter_Submit_TicketFromTranscript(t *testing.T) {
	gw := &fakeGateway{
		statuses:   []string{"ringing", "in-progress", "completed"},
		recordings: []telephony.Recording{{ID: "RE1", MediaURL: "https://api.twilio.com/rec.mp3"}},
	}
	gen := &fakeGenerator{script: &script.CallScript{Segments: []script.Segment{
		{ID: 1, Type: script.SegmentSpeak, Text: "Hello"},
	}}}
	tr := &fakeTranscriber{transcript: "Thank you, your ticket number is XY7788, crews will respond."}

	adapter := fastPhoneAdapter(gw, gen, tr)
	result, err := adapter.Submit(context.Background(), models.FormData{RequestID: "req-1"}, phoneDistrict())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if result.TicketNumber != "XY7788" {
		t.Errorf("TicketNumber = %q, want XY7788", result.TicketNumber)
	}
	if result.ConfirmationNumber != "XY7788" {
		t.Errorf("ConfirmationNumber = %q", result.ConfirmationNumber)
	}
	if result.Data["transcription"] == "" {
		t.Error("transcription not recorded")
	}

	// The direct line is preferred over 811, which is only dialable
	// in-region.
	if len(gw.placed) != 1 {
		t.Fatalf("placed %d calls", len(gw.placed))
	}
	if gw.placed[0].To != "800-227-2600" {
		t.Errorf("dialed %q, want the alt line", gw.placed[0].To)
	}
	if !gw.placed[0].Record {
		t.Error("call not recorded")
	}
	if gw.placed[0].Tag != "req-1" {
		t.Errorf("Tag = %q", gw.placed[0].Tag)
	}
}

func TestPhoneAdapter_Submit_FallbackScriptOnGeneratorError(t *testing.T) {
	gw := &fakeGateway{
		statuses:   []string{"completed"},
		recordings: []telephony.Recording{{ID: "RE1", MediaURL: "u"}},
	}
	gen := &fakeGenerator{err: fmt.Errorf("model unavailable")}
	tr := &fakeTranscriber{transcript: "confirmation number AB1234"}

	adapter := fastPhoneAdapter(gw, gen, tr)
	result, err := adapter.Submit(context.Background(), models.FormData{
		RequestID:   "req-2",
		ContactName: "Pat Jones",
		Phone:       "555-0100",
	}, phoneDistrict())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.TicketNumber != "AB1234" {
		t.Errorf("TicketNumber = %q", result.TicketNumber)
	}
	// A generation failure still produces TwiML via the fixed script.
	if !strings.Contains(gw.placed[0].TwiML, "<Say") {
		t.Errorf("TwiML = %q, want spoken segments", gw.placed[0].TwiML)
	}
}

func TestPhoneAdapter_Submit_SyntheticTicketWhenNoMatch(t *testing.T) {
	gw := &fakeGateway{
		statuses:   []string{"completed"},
		recordings: []telephony.Recording{{ID: "RE1", MediaURL: "u"}},
	}
	gen := &fakeGenerator{script: &script.CallScript{}}
	tr := &fakeTranscriber{transcript: "we got it, thanks for calling"}

	adapter := fastPhoneAdapter(gw, gen, tr)
	adapter.now = func() time.Time { return time.UnixMilli(1757000000000) }

	result, err := adapter.Submit(context.Background(), models.FormData{RequestID: "req-3"}, phoneDistrict())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.TicketNumber != "PHONE-1757000000000" {
		t.Errorf("TicketNumber = %q", result.TicketNumber)
	}
	// The call sid stands in as the confirmation.
	if result.ConfirmationNumber != "CA-test-1" {
		t.Errorf("ConfirmationNumber = %q", result.ConfirmationNumber)
	}
}

func TestPhoneAdapter_Submit_NoRecording(t *testing.T) {
	gw := &fakeGateway{statuses: []string{"completed"}}
	adapter := fastPhoneAdapter(gw, &fakeGenerator{script: &script.CallScript{}}, &fakeTranscriber{})

	_, err := adapter.Submit(context.Background(), models.FormData{RequestID: "req-4"}, phoneDistrict())
	if err == nil || !strings.Contains(err.Error(), "no recording") {
		t.Errorf("err = %v", err)
	}
}

func TestPhoneAdapter_Submit_TicketFromTranscriptInfo(t *testing.T) {
	gw := &fakeGateway{
		statuses:   []string{"completed"},
		recordings: []telephony.Recording{{ID: "RE1", MediaURL: "https://api.twilio.com/rec.mp3"}},
	}
	gen := &fakeGenerator{script: &script.CallScript{}}
	// No pattern-matchable code in the transcript; the structured read
	// still recovers the ticket.
	tr := &fakeTranscriber{
		transcript: "We have logged your request, someone will call you back.",
		info:       map[string]interface{}{"ticketNumber": " USAN-202603-17 "},
	}

	adapter := fastPhoneAdapter(gw, gen, tr)
	result, err := adapter.Submit(context.Background(), models.FormData{RequestID: "req-7"}, phoneDistrict())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.TicketNumber != "USAN-202603-17" {
		t.Errorf("TicketNumber = %q, want USAN-202603-17", result.TicketNumber)
	}
	if result.ConfirmationNumber != "USAN-202603-17" {
		t.Errorf("ConfirmationNumber = %q", result.ConfirmationNumber)
	}
	if tr.infoCall != 1 {
		t.Errorf("ExtractTranscriptInfo called %d times, want 1", tr.infoCall)
	}
}

func TestPhoneAdapter_Submit_NoAnswer(t *testing.T) {
	gw := &fakeGateway{statuses: []string{"ringing", "no-answer"}}
	adapter := fastPhoneAdapter(gw, &fakeGenerator{script: &script.CallScript{}}, &fakeTranscriber{})

	_, err := adapter.Submit(context.Background(), models.FormData{RequestID: "req-6"}, phoneDistrict())
	if err == nil || !strings.Contains(err.Error(), "ended no-answer") {
		t.Errorf("err = %v", err)
	}
}

func TestPhoneAdapter_Submit_Timeout(t *testing.T) {
	gw := &fakeGateway{statuses: []string{"in-progress"}} // never terminal
	adapter := fastPhoneAdapter(gw, &fakeGenerator{script: &script.CallScript{}}, &fakeTranscriber{})
	adapter.timeout = 30 * time.Millisecond

	_, err := adapter.Submit(context.Background(), models.FormData{RequestID: "req-5"}, phoneDistrict())
	if err == nil || !strings.Contains(err.Error(), "did not complete") {
		t.Errorf("err = %v", err)
	}
}

func TestPhoneAdapter_Submit_NoNumber(t *testing.T) {
	adapter := fastPhoneAdapter(&fakeGateway{}, &fakeGenerator{}, &fakeTranscriber{})
	_, err := adapter.Submit(context.Background(), models.FormData{}, &models.District{ID: "X"})
	if err == nil || !strings.Contains(err.Error(), "no phone number") {
		t.Errorf("err = %v", err)
	}
}

func TestPhoneAdapter_RequestForCall(t *testing.T) {
	adapter := fastPhoneAdapter(&fakeGateway{}, &fakeGenerator{}, &fakeTranscriber{})

	base := time.UnixMilli(1757000000000)
	now := base
	adapter.now = func() time.Time { return now }
	adapter.timeout = time.Minute

	adapter.track("CA-1", "req-9")

	if id, ok := adapter.RequestForCall("CA-1"); !ok || id != "req-9" {
		t.Errorf("RequestForCall = %q, %v", id, ok)
	}
	if _, ok := adapter.RequestForCall("CA-unknown"); ok {
		t.Error("unknown call id resolved")
	}

	// Entries expire with the attempt deadline.
	now = base.Add(2 * time.Minute)
	if _, ok := adapter.RequestForCall("CA-1"); ok {
		t.Error("expired entry resolved")
	}
}
