// Package poller re-checks outstanding tickets against district web portals
// on a schedule and records status changes in the request store.
package poller

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/onecall/internal/models"
	"github.com/zulandar/onecall/internal/registry"
	"github.com/zulandar/onecall/internal/store"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Default poller timing.
const (
	DefaultInitialDelay = 5 * time.Minute
	DefaultCheckDelay   = 5 * time.Second
)

// Opts holds parameters for creating a Poller.
type Opts struct {
	Store    *store.Store
	Registry *registry.Registry
	Checker  Checker

	Schedule     string        // 5-field cron expression; default */30 * * * *
	InitialDelay time.Duration // delay before the first sweep after startup
	CheckDelay   time.Duration // pause between consecutive ticket lookups
	Out          io.Writer     // operator-facing progress; defaults to discard
}

// Poller sweeps active requests and re-derives their status from the
// district's web presence.
type Poller struct {
	store    *store.Store
	registry *registry.Registry
	checker  Checker

	schedule     cron.Schedule
	initialDelay time.Duration
	checkDelay   time.Duration
	out          io.Writer
	sleep        func(time.Duration)
}

// New creates a Poller.
func New(opts Opts) (*Poller, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("poller: store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("poller: registry is required")
	}
	if opts.Checker == nil {
		return nil, fmt.Errorf("poller: checker is required")
	}
	expr := opts.Schedule
	if expr == "" {
		expr = "*/30 * * * *"
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("poller: parse schedule %q: %w", expr, err)
	}
	initialDelay := opts.InitialDelay
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	checkDelay := opts.CheckDelay
	if checkDelay <= 0 {
		checkDelay = DefaultCheckDelay
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &Poller{
		store:        opts.Store,
		registry:     opts.Registry,
		checker:      opts.Checker,
		schedule:     sched,
		initialDelay: initialDelay,
		checkDelay:   checkDelay,
		out:          out,
		sleep:        time.Sleep,
	}, nil
}

// Run blocks until ctx is cancelled, sweeping once after the initial delay
// and then on every schedule fire.
func (p *Poller) Run(ctx context.Context) error {
	fmt.Fprintf(p.out, "Status poller started (initial sweep in %s)\n", p.initialDelay)

	initial := time.NewTimer(p.initialDelay)
	defer initial.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-initial.C:
		if err := p.Sweep(ctx); err != nil {
			log.Printf("poller: initial sweep: %v", err)
		}
	}

	for {
		next := p.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if err := p.Sweep(ctx); err != nil {
				log.Printf("poller: sweep: %v", err)
			}
		}
	}
}

// Sweep checks every outstanding ticket once. Districts are processed
// sequentially with a fixed delay between lookups as a self-imposed rate
// limit.
func (p *Poller) Sweep(ctx context.Context) error {
	reqs, err := p.store.ListActive(models.ActiveStatuses()...)
	if err != nil {
		return err
	}

	byDistrict := make(map[string][]models.Request)
	for _, req := range reqs {
		if req.TicketNumber == "" {
			continue
		}
		byDistrict[req.DistrictID] = append(byDistrict[req.DistrictID], req)
	}

	checked := 0
	for districtID, districtReqs := range byDistrict {
		district, err := p.registry.GetByID(districtID)
		if err != nil {
			log.Printf("poller: %v", err)
			continue
		}
		if district.WebPortal == "" || !district.HasMethod(models.MethodWeb) {
			continue
		}
		for i := range districtReqs {
			req := &districtReqs[i]
			if checked > 0 {
				p.sleep(p.checkDelay)
			}
			checked++
			if err := p.checkOne(ctx, req, district); err != nil {
				log.Printf("poller: check request %s: %v", req.ID, err)
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}
	}
	fmt.Fprintf(p.out, "Status sweep complete: %d ticket(s) checked\n", checked)
	return nil
}

// checkOne looks up one ticket and records a change if the fetched status
// differs from the stored one. An unchanged status writes nothing.
func (p *Poller) checkOne(ctx context.Context, req *models.Request, district *models.District) error {
	result, err := p.checker.Check(ctx, district, req.TicketNumber)
	if err != nil {
		return err
	}
	if result == nil || result.Status == "" || result.Status == req.Status {
		return nil
	}

	if err := p.store.AppendStatusUpdate(req.ID, "status_changed", map[string]interface{}{
		"previousStatus": req.Status,
		"newStatus":      result.Status,
		"details":        result.Details,
		"checkedAt":      result.CheckedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}
	if err := p.store.UpdateStatus(req.ID, result.Status, store.Extra{}); err != nil {
		return err
	}
	log.Printf("poller: request %s status %s -> %s", req.ID, req.Status, result.Status)
	return nil
}

// CheckRequest performs the same lookup for a single request outside the
// schedule and always logs the check.
func (p *Poller) CheckRequest(ctx context.Context, requestID string) (*StatusResult, error) {
	req, err := p.store.Get(requestID)
	if err != nil {
		return nil, err
	}
	if req.TicketNumber == "" {
		return nil, fmt.Errorf("poller: request %s has no ticket number", requestID)
	}
	district, err := p.registry.GetByID(req.DistrictID)
	if err != nil {
		return nil, err
	}

	result, err := p.checker.Check(ctx, district, req.TicketNumber)
	if err != nil {
		return nil, err
	}
	if err := p.store.AppendStatusUpdate(requestID, "manual_check", map[string]interface{}{
		"status":    result.Status,
		"details":   result.Details,
		"checkedAt": result.CheckedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, err
	}
	if result.Status != "" && result.Status != req.Status {
		if err := p.store.UpdateStatus(requestID, result.Status, store.Extra{}); err != nil {
			return nil, err
		}
	}
	return result, nil
}
