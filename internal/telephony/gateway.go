// Package telephony abstracts the outbound-call gateway used by the phone
// submission channel.
package telephony

import "context"

// Call statuses reported by the gateway.
const (
	CallQueued     = "queued"
	CallRinging    = "ringing"
	CallInProgress = "in-progress"
	CallCompleted  = "completed"
	CallFailed     = "failed"
	CallBusy       = "busy"
	CallNoAnswer   = "no-answer"
	CallCanceled   = "canceled"
)

// Terminal reports whether a call status is final.
func Terminal(status string) bool {
	switch status {
	case CallCompleted, CallFailed, CallBusy, CallNoAnswer, CallCanceled:
		return true
	}
	return false
}

// Call is the gateway's view of one outbound call.
type Call struct {
	ID       string
	Status   string
	Duration int // seconds, populated once terminal
}

// Recording is one audio recording captured during a call.
type Recording struct {
	ID       string
	MediaURL string
}

// PlaceCallOpts describes an outbound scripted call.
type PlaceCallOpts struct {
	To     string // destination number
	Tag    string // correlation tag, carried on status callbacks
	TwiML  string // voice-flow instructions
	Record bool
}

// Gateway places and tracks outbound calls.
type Gateway interface {
	PlaceCall(ctx context.Context, opts PlaceCallOpts) (*Call, error)
	CallStatus(ctx context.Context, callID string) (*Call, error)
	Recordings(ctx context.Context, callID string) ([]Recording, error)
}
