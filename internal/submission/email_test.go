package submission

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/onecall/internal/mailer"
	"github.com/zulandar/onecall/internal/models"
)

// fakeMailer captures the outbound message.
type fakeMailer struct {
	sent      []mailer.Message
	messageID string
	err       error
}

func (f *fakeMailer) Send(ctx context.Context, msg mailer.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return f.messageID, nil
}

func emailFormData() models.FormData {
	return models.Flatten(&models.Request{
		ID:              "req-email-1",
		ContactName:     "Pat Jones",
		CompanyName:     "Jones Fencing",
		Phone:           "555-0100",
		Email:           "pat@example.com",
		Street:          "44 Birch Rd",
		City:            "Denver",
		State:           "CO",
		ZipCode:         "80203",
		WorkType:        "Fence installation",
		WorkDescription: "Setting fence posts along the east property line",
		StartDate:       time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		EmergencyWork:   true,
	})
}

func TestEmailAdapter_Submit(t *testing.T) {
	fm := &fakeMailer{messageID: "<abc123@mail.example.com>"}
	adapter := NewEmailAdapter(fm)
	adapter.now = func() time.Time { return time.UnixMilli(1757000000000) }

	district := &models.District{
		ID: "CO811", Name: "Colorado 811",
		Email: "tickets@co811.org", EmailAvailable: true,
	}

	result, err := adapter.Submit(context.Background(), emailFormData(), district)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if len(fm.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fm.sent))
	}
	msg := fm.sent[0]
	if msg.To != "tickets@co811.org" {
		t.Errorf("To = %q", msg.To)
	}
	if want := "811 Locate Request - 44 Birch Rd, Denver, CO 80203"; msg.Subject != want {
		t.Errorf("Subject = %q, want %q", msg.Subject, want)
	}
	if msg.Headers["X-Request-ID"] != "req-email-1" {
		t.Errorf("X-Request-ID = %q", msg.Headers["X-Request-ID"])
	}

	// The ticket number is always synthetic; the message id is the
	// confirmation used for later reconciliation.
	if result.TicketNumber != "EMAIL-1757000000000" {
		t.Errorf("TicketNumber = %q", result.TicketNumber)
	}
	if result.ConfirmationNumber != "<abc123@mail.example.com>" {
		t.Errorf("ConfirmationNumber = %q", result.ConfirmationNumber)
	}
}

func TestEmailAdapter_Submit_DerivedIntakeAddress(t *testing.T) {
	fm := &fakeMailer{messageID: "<m1@x>"}
	adapter := NewEmailAdapter(fm)

	district := &models.District{
		ID: "AZ-BLUESTAKE", WebPortal: "https://www.azbluestake.com",
	}
	if _, err := adapter.Submit(context.Background(), emailFormData(), district); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if fm.sent[0].To != "support@azbluestake.com" {
		t.Errorf("To = %q, want support@azbluestake.com", fm.sent[0].To)
	}
}

func TestEmailAdapter_Submit_NoAddress(t *testing.T) {
	adapter := NewEmailAdapter(&fakeMailer{})
	_, err := adapter.Submit(context.Background(), emailFormData(), &models.District{ID: "X"})
	if err == nil || !strings.Contains(err.Error(), "no email address") {
		t.Errorf("err = %v", err)
	}
}

func TestEmailAdapter_Submit_SendFailure(t *testing.T) {
	adapter := NewEmailAdapter(&fakeMailer{err: fmt.Errorf("smtp: connection refused")})
	district := &models.District{ID: "CO811", Email: "tickets@co811.org"}
	_, err := adapter.Submit(context.Background(), emailFormData(), district)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v", err)
	}
}

func TestRenderEmailText(t *testing.T) {
	text := renderEmailText(emailFormData())

	for _, want := range []string{
		"811 LOCATE REQUEST",
		"Request ID: req-email-1",
		"Name: Pat Jones",
		"Company: Jones Fencing",
		"Address: 44 Birch Rd, Denver, CO 80203",
		"Type of Work: Fence installation",
		"Start Date: 2026-04-01",
		"Duration: 1 day(s)",
		"Emergency Work: YES - EMERGENCY",
		"Please respond to this email with the ticket number",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q", want)
		}
	}

	// Optional fields render as N/A rather than blank.
	if !strings.Contains(text, "County: N/A") {
		t.Error("empty county not rendered as N/A")
	}
}

func TestRenderEmailHTML(t *testing.T) {
	html, err := renderEmailHTML(emailFormData())
	if err != nil {
		t.Fatalf("renderEmailHTML: %v", err)
	}
	for _, want := range []string{
		"<h1>811 Locate Request</h1>",
		"req-email-1",
		"Pat Jones",
		"YES - EMERGENCY",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestDefaultIntakeAddress(t *testing.T) {
	tests := []struct {
		portal string
		want   string
	}{
		{"https://www.usanorth.org", "support@usanorth.org"},
		{"https://al811.com", "support@al811.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := defaultIntakeAddress(tt.portal); got != tt.want {
			t.Errorf("defaultIntakeAddress(%q) = %q, want %q", tt.portal, got, tt.want)
		}
	}
}
