// Package server exposes the HTTP API for creating and tracking locate
// requests. Submission itself is fire-and-forget: create returns as soon as
// the request is stored and the episode runs in the background.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/onecall/internal/models"
	"github.com/zulandar/onecall/internal/poller"
	"github.com/zulandar/onecall/internal/registry"
	"github.com/zulandar/onecall/internal/store"
	"github.com/zulandar/onecall/internal/submission"
)

// Submitter runs one submission episode. Implemented by
// submission.Orchestrator.
type Submitter interface {
	Submit(ctx context.Context, req *models.Request, district *models.District) (*submission.Result, error)
}

// StatusChecker runs one on-demand ticket lookup. Implemented by
// poller.Poller.
type StatusChecker interface {
	CheckRequest(ctx context.Context, requestID string) (*poller.StatusResult, error)
}

// CallResolver maps an in-flight gateway call back to the request it was
// placed for. Implemented by submission.PhoneAdapter.
type CallResolver interface {
	RequestForCall(callID string) (string, bool)
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Store     *store.Store
	Registry  *registry.Registry
	Submitter Submitter
	Checker   StatusChecker // optional; check endpoint returns 503 without it
	Calls     CallResolver  // optional; correlates telephony callbacks
	Port      int
	Out       io.Writer
}

// Server is the API server plus the per-request submission locks that keep
// at most one submission episode outstanding per request id.
type Server struct {
	store     *store.Store
	registry  *registry.Registry
	submitter Submitter
	checker   StatusChecker
	calls     CallResolver

	mu       sync.Mutex
	inFlight map[string]bool
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("server: store is required")
	}
	if opts.Registry == nil {
		return fmt.Errorf("server: registry is required")
	}
	if opts.Submitter == nil {
		return fmt.Errorf("server: submitter is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	s := &Server{
		store:     opts.Store,
		registry:  opts.Registry,
		submitter: opts.Submitter,
		checker:   opts.Checker,
		calls:     opts.Calls,
		inFlight:  make(map[string]bool),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening on http://localhost:%d\n", opts.Port)
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// beginEpisode marks a request as having a submission episode in flight.
// Returns false when one is already running; callers must not start another.
func (s *Server) beginEpisode(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[requestID] {
		return false
	}
	s.inFlight[requestID] = true
	return true
}

func (s *Server) endEpisode(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, requestID)
}
