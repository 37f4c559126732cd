package poller

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zulandar/onecall/internal/browser"
	"github.com/zulandar/onecall/internal/models"
)

// StatusResult is one normalized status lookup outcome.
type StatusResult struct {
	Status    string // a models status constant, or "" when undeterminable
	Details   string
	CheckedAt time.Time
}

// Checker looks up a ticket's current status from a district's web
// presence.
type Checker interface {
	Check(ctx context.Context, district *models.District, ticketNumber string) (*StatusResult, error)
}

// WebStatusChecker implements Checker by driving the district portal in a
// headless browser. Districts with known status pages get a direct path;
// everything else gets a generic search.
type WebStatusChecker struct {
	browser browser.Browser
	sleep   func(time.Duration)
}

// NewWebStatusChecker creates a browser-backed Checker.
func NewWebStatusChecker(b browser.Browser) *WebStatusChecker {
	return &WebStatusChecker{browser: b, sleep: time.Sleep}
}

// Check performs one status lookup. The browser session is scoped to the
// lookup and always released.
func (c *WebStatusChecker) Check(ctx context.Context, district *models.District, ticketNumber string) (*StatusResult, error) {
	if district.WebPortal == "" {
		return nil, fmt.Errorf("poller: no web portal for district %s", district.ID)
	}
	if ticketNumber == "" {
		return nil, fmt.Errorf("poller: ticket number is required")
	}

	sess, err := c.browser.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	switch district.ID {
	case "CA-USANORTH", "CA-DIGALERT":
		return c.checkCalifornia(ctx, sess, district, ticketNumber)
	default:
		return c.checkGeneric(ctx, sess, district, ticketNumber)
	}
}

// checkCalifornia uses the shared status page layout of the two California
// portals.
func (c *WebStatusChecker) checkCalifornia(ctx context.Context, sess browser.Session, district *models.District, ticketNumber string) (*StatusResult, error) {
	if err := sess.Navigate(ctx, district.WebPortal+"/status"); err != nil {
		return nil, err
	}
	if err := sess.Fill(ctx, `input[name*="ticket"], input[name*="number"]`, ticketNumber); err != nil {
		return nil, err
	}
	if err := sess.Click(ctx, `button[type="submit"], input[type="submit"]`); err != nil {
		return nil, err
	}
	c.sleep(2 * time.Second)

	statusText, err := sess.TextOf(ctx, `.status, [class*="status"]`)
	if err != nil {
		return nil, err
	}
	details, err := sess.TextOf(ctx, `.details, [class*="details"]`)
	if err != nil {
		details = ""
	}
	return &StatusResult{
		Status:    ParseStatus(statusText),
		Details:   strings.TrimSpace(details),
		CheckedAt: time.Now(),
	}, nil
}

// checkGeneric hunts for a status/search entry point, submits the ticket
// number, and scans the resulting page.
func (c *WebStatusChecker) checkGeneric(ctx context.Context, sess browser.Session, district *models.District, ticketNumber string) (*StatusResult, error) {
	if err := sess.Navigate(ctx, district.WebPortal); err != nil {
		return nil, err
	}

	linkSel := `a[href*="status"], a[href*="search"], a[href*="track"]`
	if ok, err := sess.Exists(ctx, linkSel); err == nil && ok {
		if err := sess.Click(ctx, linkSel); err != nil {
			log.Printf("poller: status link click on %s: %v", district.ID, err)
		} else {
			c.sleep(time.Second)
		}
	}

	inputSel := `input[name*="ticket"], input[name*="number"], input[name*="reference"]`
	if ok, err := sess.Exists(ctx, inputSel); err == nil && ok {
		if err := sess.Fill(ctx, inputSel, ticketNumber); err != nil {
			return nil, err
		}
		submitSel := `button[type="submit"], input[type="submit"]`
		if ok, err := sess.Exists(ctx, submitSel); err == nil && ok {
			if err := sess.Click(ctx, submitSel); err != nil {
				return nil, err
			}
			c.sleep(3 * time.Second)
		}
	}

	pageText, err := sess.Text(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(strings.ToLower(pageText), strings.ToLower(ticketNumber)) {
		return nil, fmt.Errorf("poller: ticket %s not found on %s", ticketNumber, district.ID)
	}
	status := ParseStatus(pageText)
	return &StatusResult{
		Status:    status,
		Details:   "Ticket found in system",
		CheckedAt: time.Now(),
	}, nil
}

// ParseStatus normalizes free-text portal status wording to the request
// state machine. Returns "" when the text doesn't indicate a known state.
func ParseStatus(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "complete") || strings.Contains(t, "closed"):
		return models.StatusCompleted
	case strings.Contains(t, "cancel"):
		return models.StatusCancelled
	case strings.Contains(t, "progress") || strings.Contains(t, "active"):
		return models.StatusInProgress
	case strings.Contains(t, "pending") || strings.Contains(t, "submitted"):
		return models.StatusSubmitted
	default:
		return ""
	}
}
