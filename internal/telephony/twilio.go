package telephony

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
	"github.com/zulandar/onecall/internal/config"
	"github.com/zulandar/onecall/internal/script"
)

// StatusCallbackPath is where call-progress callbacks are delivered. The
// server registers its webhook handler at the same path.
const StatusCallbackPath = "/webhooks/twilio/status"

// TwilioGateway implements Gateway against the Twilio REST API.
type TwilioGateway struct {
	client      *twilio.RestClient
	from        string
	callbackURL string
}

// NewTwilioGateway creates a gateway from telephony settings. When a webhook
// base URL is configured, placed calls report progress to it.
func NewTwilioGateway(cfg config.TelephonyConfig) (*TwilioGateway, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("telephony: account sid and auth token are required")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("telephony: from number is required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	g := &TwilioGateway{client: client, from: cfg.FromNumber}
	if cfg.WebhookBaseURL != "" {
		g.callbackURL = strings.TrimRight(cfg.WebhookBaseURL, "/") + StatusCallbackPath
	}
	return g, nil
}

// PlaceCall starts an outbound call driving the given TwiML.
func (g *TwilioGateway) PlaceCall(ctx context.Context, opts PlaceCallOpts) (*Call, error) {
	if opts.To == "" {
		return nil, fmt.Errorf("telephony: destination number is required")
	}
	params := &api.CreateCallParams{}
	params.SetTo(opts.To)
	params.SetFrom(g.from)
	params.SetTwiml(opts.TwiML)
	params.SetRecord(opts.Record)
	params.SetTimeout(600)
	params.SetMachineDetection("Enable")
	if g.callbackURL != "" {
		cb := g.callbackURL
		if opts.Tag != "" {
			cb += "?tag=" + url.QueryEscape(opts.Tag)
		}
		params.SetStatusCallback(cb)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}

	resp, err := g.client.Api.CreateCall(params)
	if err != nil {
		return nil, fmt.Errorf("telephony: place call to %s: %w", opts.To, err)
	}
	if resp.Sid == nil {
		return nil, fmt.Errorf("telephony: place call to %s: no call sid returned", opts.To)
	}
	call := &Call{ID: *resp.Sid}
	if resp.Status != nil {
		call.Status = *resp.Status
	}
	return call, nil
}

// CallStatus fetches the current state of a call.
func (g *TwilioGateway) CallStatus(ctx context.Context, callID string) (*Call, error) {
	resp, err := g.client.Api.FetchCall(callID, &api.FetchCallParams{})
	if err != nil {
		return nil, fmt.Errorf("telephony: fetch call %s: %w", callID, err)
	}
	call := &Call{ID: callID}
	if resp.Status != nil {
		call.Status = *resp.Status
	}
	if resp.Duration != nil {
		if d, convErr := strconv.Atoi(*resp.Duration); convErr == nil {
			call.Duration = d
		}
	}
	return call, nil
}

// Recordings lists the recordings captured for a call, most recent first.
func (g *TwilioGateway) Recordings(ctx context.Context, callID string) ([]Recording, error) {
	params := &api.ListRecordingParams{}
	params.SetCallSid(callID)
	params.SetLimit(5)

	resp, err := g.client.Api.ListRecording(params)
	if err != nil {
		return nil, fmt.Errorf("telephony: list recordings for %s: %w", callID, err)
	}
	var out []Recording
	for _, r := range resp {
		rec := Recording{}
		if r.Sid != nil {
			rec.ID = *r.Sid
		}
		if r.Uri != nil {
			rec.MediaURL = "https://api.twilio.com" + strings.TrimSuffix(*r.Uri, ".json") + ".mp3"
		}
		out = append(out, rec)
	}
	return out, nil
}

// BuildTwiML converts a voice script into TwiML. Unknown segment types are
// skipped.
func BuildTwiML(cs *script.CallScript) (string, error) {
	verbs := []twiml.Element{
		twiml.VoicePause{Length: "2"},
	}
	for _, seg := range cs.Segments {
		switch seg.Type {
		case script.SegmentSpeak:
			verbs = append(verbs, twiml.VoiceSay{
				Message:  seg.Text,
				Voice:    "alice",
				Language: "en-US",
			})
		case script.SegmentGather:
			timeout := seg.Timeout
			if timeout <= 0 {
				timeout = 5
			}
			verbs = append(verbs, twiml.VoiceGather{
				Input:         "speech dtmf",
				Timeout:       strconv.Itoa(timeout),
				SpeechTimeout: "auto",
				InnerElements: []twiml.Element{
					twiml.VoiceSay{Message: seg.Prompt, Voice: "alice", Language: "en-US"},
				},
			})
		case script.SegmentPause:
			length := seg.Length
			if length <= 0 {
				length = 1
			}
			verbs = append(verbs, twiml.VoicePause{Length: strconv.Itoa(length)})
		}
	}
	verbs = append(verbs, twiml.VoiceSay{
		Message:  "Thank you for processing our request. Have a great day. Goodbye.",
		Voice:    "alice",
		Language: "en-US",
	})

	doc, err := twiml.Voice(verbs)
	if err != nil {
		return "", fmt.Errorf("telephony: build twiml: %w", err)
	}
	return doc, nil
}
