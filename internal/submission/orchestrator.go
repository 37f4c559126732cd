package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zulandar/onecall/internal/models"
	"github.com/zulandar/onecall/internal/store"
)

// AttemptFailure records one failed channel attempt within an episode.
type AttemptFailure struct {
	Method string
	Err    string
}

// Notifier is pinged when a request exhausts every channel in its
// district's fallback chain. Delivery failures are the notifier's problem;
// the orchestrator doesn't block on it.
type Notifier interface {
	ChannelsExhausted(ctx context.Context, req *models.Request, district *models.District, attempts []AttemptFailure)
}

// Orchestrator routes a request to the right channel adapter and walks the
// district's fallback chain until one channel succeeds or all are exhausted.
// Each channel is attempted at most once per episode.
type Orchestrator struct {
	store    *store.Store
	adapters map[models.Method]Adapter
	notifier Notifier
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator over the given adapters. notifier
// may be nil.
func NewOrchestrator(st *store.Store, adapters []Adapter, notifier Notifier) (*Orchestrator, error) {
	if st == nil {
		return nil, fmt.Errorf("submission: store is required")
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("submission: at least one adapter is required")
	}
	byMethod := make(map[models.Method]Adapter, len(adapters))
	for _, a := range adapters {
		if _, dup := byMethod[a.Method()]; dup {
			return nil, fmt.Errorf("submission: duplicate adapter for method %s", a.Method())
		}
		byMethod[a.Method()] = a
	}
	return &Orchestrator{
		store:    st,
		adapters: byMethod,
		notifier: notifier,
		now:      time.Now,
	}, nil
}

// Submit runs one submission episode. Every attempt, successful or not,
// leaves at least one entry in the request's status-update log.
func (o *Orchestrator) Submit(ctx context.Context, req *models.Request, district *models.District) (*Result, error) {
	if req == nil || district == nil {
		return nil, fmt.Errorf("submission: request and district are required")
	}
	if len(district.Methods) == 0 {
		return nil, fmt.Errorf("submission: district %s has no submission methods", district.ID)
	}

	data := models.Flatten(req)

	current := req.SubmissionMethod
	if current == "" {
		current = district.Methods[0]
	}

	// Fallback only moves forward through the district list: the episode
	// starts at the chosen channel's position and substitutes channels
	// listed after it, never revisiting an earlier position. A chosen
	// method absent from the list walks the whole list, with the tried-set
	// guarding repeats.
	remaining := district.Methods[methodIndex(district.Methods, current)+1:]

	tried := make(map[string]bool)
	var failures []AttemptFailure

	for {
		tried[methodKey(current)] = true

		result, err := o.attempt(ctx, req, district, data, current)
		if err == nil {
			return result, nil
		}

		log.Printf("submission: channel %s failed for request %s: %v", current, req.ID, err)
		failures = append(failures, AttemptFailure{Method: current, Err: err.Error()})
		if upErr := o.store.AppendStatusUpdate(req.ID, "failed", map[string]interface{}{
			"message": "Failed to submit request",
			"error":   err.Error(),
			"method":  current,
		}); upErr != nil {
			return nil, upErr
		}

		next := ""
		for len(remaining) > 0 {
			m := remaining[0]
			remaining = remaining[1:]
			if !tried[methodKey(m)] {
				next = m
				break
			}
		}
		if next == "" {
			break
		}
		log.Printf("submission: attempting fallback channel %s for request %s", next, req.ID)
		current = next
	}

	// Every channel failed.
	summary := make([]string, len(failures))
	for i, f := range failures {
		summary[i] = fmt.Sprintf("%s: %s", f.Method, f.Err)
	}
	joined := strings.Join(summary, "; ")
	if err := o.store.UpdateStatus(req.ID, models.StatusFailed, store.Extra{LastError: joined}); err != nil {
		return nil, err
	}
	if o.notifier != nil {
		o.notifier.ChannelsExhausted(ctx, req, district, failures)
	}
	return nil, fmt.Errorf("submission: all channels failed for request %s: %s", req.ID, joined)
}

// attempt runs a single channel attempt: availability check, adapter call,
// success bookkeeping. The returned error means "this channel failed" and
// drives fallback; transport errors, timeouts, and unavailable channels are
// not distinguished beyond the logged message.
func (o *Orchestrator) attempt(ctx context.Context, req *models.Request, district *models.District, data models.FormData, rawMethod string) (*Result, error) {
	if err := o.store.UpdateStatus(req.ID, models.StatusSubmitting, store.Extra{SubmissionMethod: rawMethod}); err != nil {
		return nil, err
	}
	if err := o.store.AppendStatusUpdate(req.ID, "submitting", map[string]interface{}{
		"message": fmt.Sprintf("Submitting request to %s", district.Name),
		"method":  rawMethod,
	}); err != nil {
		return nil, err
	}

	method, err := models.ParseMethod(rawMethod)
	if err != nil {
		// A district list can carry a channel name this build doesn't
		// know. Fail the single step and let the fold continue.
		return nil, err
	}
	if err := checkAvailability(district, method); err != nil {
		return nil, err
	}
	adapter, ok := o.adapters[method]
	if !ok {
		return nil, fmt.Errorf("submission: no adapter configured for method %s", method)
	}

	result, err := adapter.Submit(ctx, data, district)
	if err != nil {
		return nil, err
	}
	if result == nil || !result.Success {
		return nil, fmt.Errorf("submission: %s adapter reported failure", method)
	}

	responseData := ""
	if len(result.Data) > 0 {
		if b, mErr := json.Marshal(result.Data); mErr == nil {
			responseData = string(b)
		}
	}
	submittedAt := o.now()
	if err := o.store.UpdateStatus(req.ID, models.StatusSubmitted, store.Extra{
		TicketNumber:       result.TicketNumber,
		ConfirmationNumber: result.ConfirmationNumber,
		SubmissionMethod:   method.String(),
		ResponseData:       responseData,
		SubmittedAt:        &submittedAt,
	}); err != nil {
		return nil, err
	}
	if err := o.store.AppendStatusUpdate(req.ID, "submitted", map[string]interface{}{
		"message":            "Request successfully submitted",
		"ticketNumber":       result.TicketNumber,
		"confirmationNumber": result.ConfirmationNumber,
		"method":             method.String(),
	}); err != nil {
		return nil, err
	}
	log.Printf("submission: request %s submitted via %s, ticket %s", req.ID, method, result.TicketNumber)
	return result, nil
}

// methodKey normalizes a channel name so aliases (webform/web) share one
// tried-set entry. Unknown names key as themselves.
func methodKey(name string) string {
	if m, err := models.ParseMethod(name); err == nil {
		return m.String()
	}
	return name
}

// methodIndex returns the position of a channel in the district list,
// matching aliases, or -1 when it is not listed.
func methodIndex(methods []string, name string) int {
	key := methodKey(name)
	for i, m := range methods {
		if methodKey(m) == key {
			return i
		}
	}
	return -1
}

// checkAvailability enforces district capability flags before any external
// call is made. Web and phone are available whenever listed.
func checkAvailability(district *models.District, method models.Method) error {
	if !district.HasMethod(method) {
		return fmt.Errorf("submission: method %s not listed for district %s", method, district.ID)
	}
	switch method {
	case models.MethodAPI:
		if !district.APIAvailable {
			return fmt.Errorf("submission: API submission not available for district %s", district.ID)
		}
	case models.MethodEmail:
		if !district.EmailAvailable {
			return fmt.Errorf("submission: email submission not available for district %s", district.ID)
		}
	case models.MethodWeb, models.MethodPhone:
		// Listed is enough.
	}
	return nil
}

// BestMethod returns the preferred channel for a district, honoring an
// explicit preference when it is usable. Priority otherwise follows
// api > web > email > phone.
func BestMethod(district *models.District, preferred string) string {
	if preferred != "" {
		if m, err := models.ParseMethod(preferred); err == nil {
			if checkAvailability(district, m) == nil {
				return m.String()
			}
		}
	}
	for _, m := range models.AllMethods() {
		if checkAvailability(district, m) == nil {
			return m.String()
		}
	}
	if len(district.Methods) > 0 {
		return district.Methods[0]
	}
	return ""
}
