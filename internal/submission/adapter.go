// Package submission files locate requests with districts over whichever
// channel the district supports: programmatic API, web portal automation,
// email, or a scripted phone call. The Orchestrator picks the channel and
// walks the district's fallback chain; one Adapter per channel does the
// actual delivery.
package submission

import (
	"context"

	"github.com/zulandar/onecall/internal/models"
)

// Result is the outcome of one adapter attempt. It is consumed once by the
// orchestrator and never persisted as its own entity.
type Result struct {
	Success            bool
	TicketNumber       string
	ConfirmationNumber string
	Data               map[string]interface{}
}

// Adapter delivers a request to a district over one channel. Submit either
// returns a successful Result or an error; a Result with Success=false is
// never returned alongside a nil error.
type Adapter interface {
	// Method identifies the channel this adapter serves.
	Method() models.Method

	// Submit delivers the request. The FormData view is built once per
	// submission episode and shared by every channel attempted.
	Submit(ctx context.Context, data models.FormData, district *models.District) (*Result, error)
}
