// Package script generates the driving instructions for the two
// unstructured submission channels: voice scripts for phone calls and
// ordered fill instructions for unknown web forms. Generation is delegated
// to a text-generation backend; every caller must tolerate generation
// failure and use the fixed fallbacks in this package.
package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/onecall/internal/models"
)

// Segment types for voice scripts.
const (
	SegmentSpeak  = "speak"
	SegmentGather = "gather"
	SegmentPause  = "pause"
)

// Segment is one step of a voice script.
type Segment struct {
	ID      int    `json:"id"`
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`     // speak
	Prompt  string `json:"prompt,omitempty"`   // gather
	Timeout int    `json:"timeout,omitempty"`  // gather, seconds
	Length  int    `json:"duration,omitempty"` // pause, seconds
}

// CallScript is an ordered voice script for a phone submission.
type CallScript struct {
	Segments []Segment `json:"segments"`
}

// Form-fill actions. The webform interpreter rejects anything outside this
// set before touching the browser.
const (
	ActionFill   = "fill"
	ActionSelect = "select"
	ActionClick  = "click"
	ActionCheck  = "check"
	ActionWait   = "wait"
)

// Instruction is one step of a generated form fill.
type Instruction struct {
	Action      string `json:"action"`
	Selector    string `json:"selector"`
	Value       string `json:"value,omitempty"`
	Duration    int    `json:"duration,omitempty"` // wait, milliseconds
	Description string `json:"description,omitempty"`
}

// ValidAction reports whether a is in the closed action vocabulary.
func ValidAction(a string) bool {
	switch a {
	case ActionFill, ActionSelect, ActionClick, ActionCheck, ActionWait:
		return true
	}
	return false
}

// Generator produces channel-driving scripts from request data.
type Generator interface {
	// CallScript returns a voice script for phoning a request in to district.
	CallScript(ctx context.Context, data models.FormData, district *models.District) (*CallScript, error)

	// FormInstructions returns an ordered fill sequence for an unknown form.
	FormInstructions(ctx context.Context, formHTML string, data models.FormData) ([]Instruction, error)
}

// Transcriber converts a call recording into text.
type Transcriber interface {
	// Transcribe converts a call recording to text.
	Transcribe(ctx context.Context, recordingURL string) (string, error)

	// ExtractTranscriptInfo pulls structured facts (ticket number, status,
	// dates) out of a transcript.
	ExtractTranscriptInfo(ctx context.Context, transcript string) (map[string]interface{}, error)
}

// FallbackCallScript is the fixed script used when generation fails. It
// covers the same fields in the same order a generated script would.
func FallbackCallScript(data models.FormData, district *models.District) *CallScript {
	company := data.CompanyName
	if company == "" {
		company = "a private residence"
	}

	segments := []Segment{
		{ID: 1, Type: SegmentPause, Length: 2},
		{ID: 2, Type: SegmentSpeak, Text: fmt.Sprintf(
			"Hello, this is %s from %s. I need to submit a dig safe locate request.",
			data.ContactName, company)},
		{ID: 3, Type: SegmentPause, Length: 2},
		{ID: 4, Type: SegmentSpeak, Text: fmt.Sprintf("The work location is %s.", data.Address)},
		{ID: 5, Type: SegmentPause, Length: 1},
		{ID: 6, Type: SegmentSpeak, Text: fmt.Sprintf(
			"We will be performing %s work. %s", data.WorkType, data.WorkDescription)},
		{ID: 7, Type: SegmentPause, Length: 1},
		{ID: 8, Type: SegmentSpeak, Text: fmt.Sprintf(
			"The work is scheduled to start on %s.", data.StartDate.Format("January 2, 2006"))},
		{ID: 9, Type: SegmentPause, Length: 1},
		{ID: 10, Type: SegmentSpeak, Text: fmt.Sprintf(
			"My callback number is %s. My email is %s.", spellOut(data.Phone), data.Email)},
		{ID: 11, Type: SegmentPause, Length: 3},
		{ID: 12, Type: SegmentGather,
			Prompt:  "Could you please provide me with the ticket number for this request?",
			Timeout: 10},
		{ID: 13, Type: SegmentPause, Length: 5},
	}

	scriptOut := &CallScript{Segments: segments}
	return EnhanceForDistrict(scriptOut, district)
}

// EnhanceForDistrict inserts district-specific statements required by the
// district's registry notes.
func EnhanceForDistrict(cs *CallScript, district *models.District) *CallScript {
	if district == nil || !strings.Contains(strings.ToLower(district.Notes), "pre-marking") {
		return cs
	}
	out := &CallScript{Segments: make([]Segment, 0, len(cs.Segments)+1)}
	out.Segments = append(out.Segments, cs.Segments...)
	note := Segment{
		Type: SegmentSpeak,
		Text: "Please note that pre-marking has been completed at the work site as required.",
	}
	// Insert after the introduction; renumber so ids stay sequential.
	if len(out.Segments) > 2 {
		out.Segments = append(out.Segments[:2], append([]Segment{note}, out.Segments[2:]...)...)
	} else {
		out.Segments = append(out.Segments, note)
	}
	for i := range out.Segments {
		out.Segments[i].ID = i + 1
	}
	return out
}

// FallbackInstructions is the fixed fill sequence used when form analysis
// fails. Selectors are deliberately broad name-substring matches.
func FallbackInstructions(data models.FormData) []Instruction {
	return []Instruction{
		{Action: ActionFill, Selector: `input[name*="name"], input[name*="contact"]`, Value: data.ContactName, Description: "Contact name"},
		{Action: ActionFill, Selector: `input[name*="company"]`, Value: data.CompanyName, Description: "Company name"},
		{Action: ActionFill, Selector: `input[name*="phone"], input[type="tel"]`, Value: data.Phone, Description: "Phone number"},
		{Action: ActionFill, Selector: `input[name*="email"], input[type="email"]`, Value: data.Email, Description: "Email address"},
		{Action: ActionFill, Selector: `input[name*="address"], input[name*="street"]`, Value: data.Street, Description: "Street address"},
		{Action: ActionFill, Selector: `input[name*="city"]`, Value: data.City, Description: "City"},
		{Action: ActionFill, Selector: `input[name*="zip"], input[name*="postal"]`, Value: data.ZipCode, Description: "ZIP code"},
		{Action: ActionFill, Selector: `textarea[name*="description"], textarea[name*="work"]`, Value: data.WorkDescription, Description: "Work description"},
	}
}

// spellOut spaces a string's characters apart so digits are read one at a
// time when spoken.
func spellOut(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
