package submission

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/onecall/internal/extract"
	"github.com/zulandar/onecall/internal/models"
	"github.com/zulandar/onecall/internal/script"
	"github.com/zulandar/onecall/internal/telephony"
)

const (
	// callTimeout is the hard bound on one phone attempt. A call that has
	// not reached a terminal state by then fails the attempt.
	callTimeout = 10 * time.Minute

	// callPollInterval is how often call status is re-fetched.
	callPollInterval = 5 * time.Second
)

// callAttempt correlates an in-flight gateway call back to its request.
// Entries expire with the attempt's timeout so an abandoned call can't leak.
type callAttempt struct {
	RequestID string
	StartedAt time.Time
	ExpiresAt time.Time
}

// PhoneAdapter submits requests by placing a scripted, recorded outbound
// call to the district's intake line, then transcribing the recording to
// recover the ticket number.
type PhoneAdapter struct {
	gateway     telephony.Gateway
	generator   script.Generator
	transcriber script.Transcriber

	mu       sync.Mutex
	attempts map[string]*callAttempt

	now          func() time.Time
	timeout      time.Duration
	pollInterval time.Duration
}

// NewPhoneAdapter creates the phone channel adapter.
func NewPhoneAdapter(gw telephony.Gateway, gen script.Generator, tr script.Transcriber) *PhoneAdapter {
	return &PhoneAdapter{
		gateway:      gw,
		generator:    gen,
		transcriber:  tr,
		attempts:     make(map[string]*callAttempt),
		now:          time.Now,
		timeout:      callTimeout,
		pollInterval: callPollInterval,
	}
}

// Method implements Adapter.
func (a *PhoneAdapter) Method() models.Method { return models.MethodPhone }

// Submit runs one phone attempt end to end: script, call, poll, transcribe,
// extract.
func (a *PhoneAdapter) Submit(ctx context.Context, data models.FormData, district *models.District) (*Result, error) {
	number := district.Phone
	if district.AltPhone != "" {
		// 811 is only dialable in-region; prefer the direct line.
		number = district.AltPhone
	}
	if number == "" {
		return nil, fmt.Errorf("submission: no phone number for district %s", district.ID)
	}

	cs, err := a.generator.CallScript(ctx, data, district)
	if err != nil {
		log.Printf("submission: call script generation failed for %s, using fallback: %v", district.ID, err)
		cs = script.FallbackCallScript(data, district)
	}
	twiML, err := telephony.BuildTwiML(cs)
	if err != nil {
		return nil, err
	}

	call, err := a.gateway.PlaceCall(ctx, telephony.PlaceCallOpts{
		To:     number,
		Tag:    data.RequestID,
		TwiML:  twiML,
		Record: true,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("submission: phone call %s initiated for request %s", call.ID, data.RequestID)

	a.track(call.ID, data.RequestID)
	defer a.release(call.ID)

	final, err := a.waitForCompletion(ctx, call.ID)
	if err != nil {
		return nil, err
	}
	if final.Status != telephony.CallCompleted {
		return nil, fmt.Errorf("submission: call %s ended %s", call.ID, final.Status)
	}

	recordings, err := a.gateway.Recordings(ctx, call.ID)
	if err != nil {
		return nil, err
	}
	if len(recordings) == 0 || recordings[0].MediaURL == "" {
		return nil, fmt.Errorf("submission: call %s completed but no recording available", call.ID)
	}

	transcript, err := a.transcriber.Transcribe(ctx, recordings[0].MediaURL)
	if err != nil {
		return nil, fmt.Errorf("submission: transcribe call %s: %w", call.ID, err)
	}

	ticket, found := extract.Find(transcript)
	if !found {
		// The pattern scan missed. Ask the model for a structured read of
		// the transcript before falling back to a synthetic id.
		ticket, found = a.ticketFromTranscriptInfo(ctx, transcript)
	}
	confirmation := ticket
	if !found {
		ticket = fmt.Sprintf("PHONE-%d", a.now().UnixMilli())
		confirmation = call.ID
	}

	return &Result{
		Success:            true,
		TicketNumber:       ticket,
		ConfirmationNumber: confirmation,
		Data: map[string]interface{}{
			"callSid":       call.ID,
			"duration":      final.Duration,
			"transcription": transcript,
			"submittedAt":   a.now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// transcriptTicketKeys are the fields checked, in order, in a structured
// transcript read.
var transcriptTicketKeys = []string{
	"ticketNumber", "ticket_number", "confirmationNumber", "confirmation_number",
}

// ticketFromTranscriptInfo runs the transcript through the structured
// extraction and returns the first ticket-like field found. Extraction
// failures are logged and treated as no match.
func (a *PhoneAdapter) ticketFromTranscriptInfo(ctx context.Context, transcript string) (string, bool) {
	info, err := a.transcriber.ExtractTranscriptInfo(ctx, transcript)
	if err != nil {
		log.Printf("submission: transcript info extraction failed: %v", err)
		return "", false
	}
	for _, key := range transcriptTicketKeys {
		if v, ok := info[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// RequestForCall returns the request id an in-flight call belongs to. Used
// by webhook handlers to correlate gateway callbacks.
func (a *PhoneAdapter) RequestForCall(callID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	att, ok := a.attempts[callID]
	if !ok || a.now().After(att.ExpiresAt) {
		return "", false
	}
	return att.RequestID, true
}

// waitForCompletion polls call status until a terminal state or the attempt
// deadline. Transient fetch errors are logged and retried within the
// deadline.
func (a *PhoneAdapter) waitForCompletion(ctx context.Context, callID string) (*telephony.Call, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		call, err := a.gateway.CallStatus(ctx, callID)
		if err != nil {
			log.Printf("submission: call status check for %s: %v", callID, err)
		} else if telephony.Terminal(call.Status) {
			return call, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("submission: call %s did not complete within %s", callID, a.timeout)
		case <-ticker.C:
		}
	}
}

func (a *PhoneAdapter) track(callID, requestID string) {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	// Prune entries whose attempts have long since timed out.
	for id, att := range a.attempts {
		if now.After(att.ExpiresAt) {
			delete(a.attempts, id)
		}
	}
	a.attempts[callID] = &callAttempt{
		RequestID: requestID,
		StartedAt: now,
		ExpiresAt: now.Add(a.timeout),
	}
}

func (a *PhoneAdapter) release(callID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.attempts, callID)
}
