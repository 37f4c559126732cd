package submission

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/zulandar/onecall/internal/mailer"
	"github.com/zulandar/onecall/internal/models"
)

// EmailAdapter submits requests as structured email to districts that accept
// them. No district confirms synchronously, so the ticket number is always
// synthetic; the real one is reconciled later from the district's reply by
// the inbound-email correlator.
type EmailAdapter struct {
	mailer mailer.Mailer
	now    func() time.Time
}

// NewEmailAdapter creates the email channel adapter.
func NewEmailAdapter(m mailer.Mailer) *EmailAdapter {
	return &EmailAdapter{mailer: m, now: time.Now}
}

// Method implements Adapter.
func (a *EmailAdapter) Method() models.Method { return models.MethodEmail }

// Submit renders and sends the request summary to the district's intake
// address.
func (a *EmailAdapter) Submit(ctx context.Context, data models.FormData, district *models.District) (*Result, error) {
	to := district.Email
	if to == "" {
		to = defaultIntakeAddress(district.WebPortal)
	}
	if to == "" {
		return nil, fmt.Errorf("submission: no email address for district %s", district.ID)
	}

	text := renderEmailText(data)
	html, err := renderEmailHTML(data)
	if err != nil {
		return nil, fmt.Errorf("submission: render email: %w", err)
	}

	messageID, err := a.mailer.Send(ctx, mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("811 Locate Request - %s", data.Address),
		Text:    text,
		HTML:    html,
		Headers: map[string]string{"X-Request-ID": data.RequestID},
	})
	if err != nil {
		return nil, fmt.Errorf("submission: email to %s: %w", district.ID, err)
	}
	log.Printf("submission: email submission to %s sent, message id %s", district.ID, messageID)

	confirmation := messageID
	ticket := fmt.Sprintf("EMAIL-%d", a.now().UnixMilli())
	if confirmation == "" {
		confirmation = ticket
	}
	return &Result{
		Success:            true,
		TicketNumber:       ticket,
		ConfirmationNumber: confirmation,
		Data: map[string]interface{}{
			"messageId":   messageID,
			"recipient":   to,
			"submittedAt": a.now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// defaultIntakeAddress derives a support address from the district's portal
// host when no explicit intake address is listed.
func defaultIntakeAddress(portal string) string {
	if portal == "" {
		return ""
	}
	u, err := url.Parse(portal)
	if err != nil || u.Host == "" {
		return ""
	}
	return "support@" + strings.TrimPrefix(u.Host, "www.")
}

func renderEmailText(d models.FormData) string {
	yn := func(b bool) string {
		if b {
			return "YES"
		}
		return "NO"
	}
	orNA := func(s string) string {
		if s == "" {
			return "N/A"
		}
		return s
	}
	emergency := "NO"
	if d.EmergencyWork {
		emergency = "YES - EMERGENCY"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "811 LOCATE REQUEST\n\n")
	fmt.Fprintf(&b, "Request ID: %s\n", d.RequestID)
	fmt.Fprintf(&b, "Date: %s\n\n", time.Now().Format("January 2, 2006 3:04 PM"))
	fmt.Fprintf(&b, "CONTACT INFORMATION:\n")
	fmt.Fprintf(&b, "Name: %s\n", d.ContactName)
	fmt.Fprintf(&b, "Company: %s\n", orNA(d.CompanyName))
	fmt.Fprintf(&b, "Phone: %s\n", d.Phone)
	fmt.Fprintf(&b, "Email: %s\n\n", d.Email)
	fmt.Fprintf(&b, "WORK LOCATION:\n")
	fmt.Fprintf(&b, "Address: %s\n", d.Address)
	fmt.Fprintf(&b, "City: %s\n", d.City)
	fmt.Fprintf(&b, "State: %s\n", d.State)
	fmt.Fprintf(&b, "ZIP: %s\n", d.ZipCode)
	fmt.Fprintf(&b, "County: %s\n", orNA(d.County))
	fmt.Fprintf(&b, "Nearest Cross Street: %s\n\n", orNA(d.NearestCrossStreet))
	fmt.Fprintf(&b, "WORK DETAILS:\n")
	fmt.Fprintf(&b, "Type of Work: %s\n", d.WorkType)
	fmt.Fprintf(&b, "Description: %s\n", d.WorkDescription)
	fmt.Fprintf(&b, "Start Date: %s\n", d.StartDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Duration: %d day(s)\n", d.DurationDays)
	fmt.Fprintf(&b, "Depth: %s feet\n", d.Depth)
	fmt.Fprintf(&b, "Work Area: %sft x %sft\n\n", orNA(d.WorkAreaLength), orNA(d.WorkAreaWidth))
	fmt.Fprintf(&b, "ADDITIONAL INFORMATION:\n")
	fmt.Fprintf(&b, "Explosives Used: %s\n", yn(d.ExplosivesUsed))
	fmt.Fprintf(&b, "Emergency Work: %s\n", emergency)
	fmt.Fprintf(&b, "Permit Number: %s\n", orNA(d.PermitNumber))
	fmt.Fprintf(&b, "Area Marked: %s\n", yn(d.MarkedArea))
	fmt.Fprintf(&b, "Marking Instructions: %s\n\n", orNA(d.MarkingInstructions))
	fmt.Fprintf(&b, "Please respond to this email with the ticket number for tracking.\n")
	return b.String()
}

var emailHTMLTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; }
    .header { background-color: #f4f4f4; padding: 20px; text-align: center; }
    .section { margin-bottom: 20px; }
    .section h3 { color: #333; border-bottom: 2px solid #e0e0e0; padding-bottom: 5px; }
    .field { margin: 10px 0; }
    .label { font-weight: bold; }
    .emergency { color: red; font-weight: bold; }
  </style>
</head>
<body>
  <div class="header">
    <h1>811 Locate Request</h1>
    <p>Request ID: {{.RequestID}}</p>
  </div>
  <div class="section">
    <h3>Contact Information</h3>
    <div class="field"><span class="label">Name:</span> {{.ContactName}}</div>
    <div class="field"><span class="label">Company:</span> {{.CompanyName}}</div>
    <div class="field"><span class="label">Phone:</span> {{.Phone}}</div>
    <div class="field"><span class="label">Email:</span> {{.Email}}</div>
  </div>
  <div class="section">
    <h3>Work Location</h3>
    <div class="field"><span class="label">Address:</span> {{.Address}}</div>
    <div class="field"><span class="label">County:</span> {{.County}}</div>
    <div class="field"><span class="label">Nearest Cross Street:</span> {{.NearestCrossStreet}}</div>
  </div>
  <div class="section">
    <h3>Work Details</h3>
    <div class="field"><span class="label">Type of Work:</span> {{.WorkType}}</div>
    <div class="field"><span class="label">Description:</span> {{.WorkDescription}}</div>
    <div class="field"><span class="label">Start Date:</span> {{.StartDate.Format "2006-01-02"}}</div>
    <div class="field"><span class="label">Duration:</span> {{.DurationDays}} day(s)</div>
    <div class="field"><span class="label">Depth:</span> {{.Depth}} feet</div>
  </div>
  <div class="section">
    <h3>Additional Information</h3>
    <div class="field {{if .EmergencyWork}}emergency{{end}}"><span class="label">Emergency Work:</span> {{if .EmergencyWork}}YES - EMERGENCY{{else}}NO{{end}}</div>
    <div class="field"><span class="label">Explosives Used:</span> {{if .ExplosivesUsed}}YES{{else}}NO{{end}}</div>
    <div class="field"><span class="label">Permit Number:</span> {{.PermitNumber}}</div>
    <div class="field"><span class="label">Area Marked:</span> {{if .MarkedArea}}YES{{else}}NO{{end}}</div>
    <div class="field"><span class="label">Marking Instructions:</span> {{.MarkingInstructions}}</div>
  </div>
  <p><em>Please respond to this email with the ticket number for tracking.</em></p>
</body>
</html>`))

func renderEmailHTML(d models.FormData) (string, error) {
	var b strings.Builder
	if err := emailHTMLTemplate.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}
