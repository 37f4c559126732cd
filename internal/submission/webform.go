package submission

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zulandar/onecall/internal/browser"
	"github.com/zulandar/onecall/internal/extract"
	"github.com/zulandar/onecall/internal/models"
	"github.com/zulandar/onecall/internal/script"
)

// submitSelectors are tried in order to find the form's submit control.
var submitSelectors = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
}

// successIndicators are phrases that mark a confirmation page even when no
// ticket number could be extracted from it.
var successIndicators = []string{
	"thank you",
	"successfully submitted",
	"request received",
	"confirmation",
	"ticket has been created",
}

// settleDelay is how long the adapter waits for the post-submit page.
const settleDelay = 3 * time.Second

// WebFormAdapter submits requests by driving the district's web portal in a
// headless browser. Districts with known, fixed form layouts get a
// hard-coded fill sequence; everything else goes through generated
// instructions executed by a closed interpreter.
type WebFormAdapter struct {
	browser   browser.Browser
	generator script.Generator
	now       func() time.Time
	sleep     func(time.Duration)
}

// NewWebFormAdapter creates the webform channel adapter.
func NewWebFormAdapter(b browser.Browser, gen script.Generator) *WebFormAdapter {
	return &WebFormAdapter{
		browser:   b,
		generator: gen,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Method implements Adapter.
func (a *WebFormAdapter) Method() models.Method { return models.MethodWeb }

// Submit drives the district portal end to end: navigate, fill, submit,
// extract.
func (a *WebFormAdapter) Submit(ctx context.Context, data models.FormData, district *models.District) (*Result, error) {
	if district.WebPortal == "" {
		return nil, fmt.Errorf("submission: no web portal for district %s", district.ID)
	}

	sess, err := a.browser.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, district.WebPortal); err != nil {
		return nil, err
	}

	switch district.ID {
	case "CA-USANORTH", "CA-DIGALERT":
		err = a.fillCaliforniaForm(ctx, sess, data)
	default:
		err = a.fillGenericForm(ctx, sess, data)
	}
	if err != nil {
		return nil, err
	}

	if err := a.clickSubmit(ctx, sess); err != nil {
		return nil, err
	}
	a.sleep(settleDelay)

	pageText, err := sess.Text(ctx)
	if err != nil {
		return nil, err
	}

	confirmation, found := extract.FindInPage(pageText)
	if found {
		return &Result{
			Success:            true,
			TicketNumber:       confirmation,
			ConfirmationNumber: confirmation,
			Data: map[string]interface{}{
				"portal":      district.WebPortal,
				"submittedAt": a.now().UTC().Format(time.RFC3339),
			},
		}, nil
	}

	// No extractable number. Count the attempt as submitted only when the
	// page independently reads like a confirmation.
	if !looksLikeSuccess(pageText) {
		return nil, fmt.Errorf("submission: no confirmation found on %s result page", district.ID)
	}
	temp := fmt.Sprintf("TEMP-%d", a.now().UnixMilli())
	return &Result{
		Success:            true,
		TicketNumber:       temp,
		ConfirmationNumber: temp,
		Data: map[string]interface{}{
			"portal":      district.WebPortal,
			"submittedAt": a.now().UTC().Format(time.RFC3339),
			"provisional": true,
		},
	}, nil
}

// fillCaliforniaForm is the fixed sequence for the two California portals,
// whose ticket forms share a layout.
func (a *WebFormAdapter) fillCaliforniaForm(ctx context.Context, sess browser.Session, data models.FormData) error {
	// Enter the ticket flow from the landing page.
	if err := sess.Click(ctx, `a[href*="ticket"]`); err != nil {
		return err
	}
	a.sleep(time.Second)

	steps := []script.Instruction{
		{Action: script.ActionFill, Selector: `input[name*="contact"], input[name*="name"]`, Value: data.ContactName},
		{Action: script.ActionFill, Selector: `input[name*="company"]`, Value: data.CompanyName},
		{Action: script.ActionFill, Selector: `input[name*="phone"]`, Value: data.Phone},
		{Action: script.ActionFill, Selector: `input[name*="email"]`, Value: data.Email},
		{Action: script.ActionFill, Selector: `input[name*="address"], input[name*="street"]`, Value: data.Street},
		{Action: script.ActionFill, Selector: `input[name*="city"]`, Value: data.City},
		{Action: script.ActionSelect, Selector: `select[name*="state"]`, Value: data.State},
		{Action: script.ActionFill, Selector: `input[name*="zip"]`, Value: data.ZipCode},
		{Action: script.ActionSelect, Selector: `select[name*="work_type"], select[name*="type"]`, Value: data.WorkType},
		{Action: script.ActionFill, Selector: `textarea[name*="description"], textarea[name*="work"]`, Value: data.WorkDescription},
		{Action: script.ActionFill, Selector: `input[name*="start_date"], input[type="date"]`, Value: data.StartDate.Format("2006-01-02")},
	}
	a.execute(ctx, sess, steps)
	return nil
}

// fillGenericForm captures the rendered form and executes generated
// instructions against it, falling back to the fixed sequence when
// generation fails.
func (a *WebFormAdapter) fillGenericForm(ctx context.Context, sess browser.Session, data models.FormData) error {
	formHTML, err := sess.FormHTML(ctx)
	if err != nil {
		return err
	}

	instructions, err := a.generator.FormInstructions(ctx, formHTML, data)
	if err != nil {
		log.Printf("submission: form analysis failed, using fallback instructions: %v", err)
		instructions = script.FallbackInstructions(data)
	}
	a.execute(ctx, sess, instructions)
	return nil
}

// execute runs instructions through the closed interpreter. Each action kind
// is validated before execution and failures are isolated per instruction:
// one bad selector can't abort an otherwise-successful fill.
func (a *WebFormAdapter) execute(ctx context.Context, sess browser.Session, instructions []script.Instruction) {
	for _, ins := range instructions {
		if !script.ValidAction(ins.Action) {
			log.Printf("submission: skipping unknown action %q", ins.Action)
			continue
		}

		var err error
		switch ins.Action {
		case script.ActionFill:
			if ins.Value == "" {
				continue
			}
			err = sess.Fill(ctx, ins.Selector, ins.Value)
		case script.ActionSelect:
			if ins.Value == "" {
				continue
			}
			err = sess.SelectOption(ctx, ins.Selector, ins.Value)
		case script.ActionClick, script.ActionCheck:
			err = sess.Click(ctx, ins.Selector)
		case script.ActionWait:
			d := time.Duration(ins.Duration) * time.Millisecond
			if d <= 0 {
				d = time.Second
			}
			a.sleep(d)
		}
		if err != nil {
			log.Printf("submission: instruction failed (%s %s): %v", ins.Action, ins.Selector, err)
		}
	}
}

// clickSubmit clicks the first present submit control.
func (a *WebFormAdapter) clickSubmit(ctx context.Context, sess browser.Session) error {
	for _, sel := range submitSelectors {
		ok, err := sess.Exists(ctx, sel)
		if err != nil {
			continue
		}
		if ok {
			return sess.Click(ctx, sel)
		}
	}
	return fmt.Errorf("submission: no submit control found")
}

func looksLikeSuccess(pageText string) bool {
	lower := strings.ToLower(pageText)
	for _, phrase := range successIndicators {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
