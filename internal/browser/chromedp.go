package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Per-operation deadlines. Navigation is the slow path; element operations
// fail fast so a missing field doesn't stall a whole form fill.
const (
	navigateTimeout = 30 * time.Second
	elementTimeout  = 5 * time.Second
)

// Chrome implements Browser over a headless Chrome instance via chromedp.
type Chrome struct{}

// NewChrome creates the chromedp-backed Browser.
func NewChrome() *Chrome {
	return &Chrome{}
}

// NewSession launches a fresh headless browser page.
func (c *Chrome) NewSession(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
		chromedp.WindowSize(1366, 768),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	pageCtx, pageCancel := chromedp.NewContext(allocCtx)

	// Start the browser process now so session acquisition fails here
	// rather than on the first navigation.
	if err := chromedp.Run(pageCtx); err != nil {
		pageCancel()
		allocCancel()
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	return &chromeSession{ctx: pageCtx, cancels: []context.CancelFunc{pageCancel, allocCancel}}, nil
}

type chromeSession struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(opCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, navigateTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string) error {
	if err := s.run(ctx, elementTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: wait for %s: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) Fill(ctx context.Context, selector, value string) error {
	if err := s.run(ctx, elementTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: fill %s: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) SelectOption(ctx context.Context, selector, value string) error {
	if err := s.run(ctx, elementTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: select %s: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, elementTimeout,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	); err != nil {
		return fmt.Errorf("browser: click %s: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) Exists(ctx context.Context, selector string) (bool, error) {
	var count int
	err := s.run(ctx, elementTimeout,
		chromedp.Evaluate(fmt.Sprintf("document.querySelectorAll(%q).length", selector), &count),
	)
	if err != nil {
		return false, fmt.Errorf("browser: query %s: %w", selector, err)
	}
	return count > 0, nil
}

func (s *chromeSession) Text(ctx context.Context) (string, error) {
	var text string
	if err := s.run(ctx, elementTimeout,
		chromedp.Text("body", &text, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("browser: page text: %w", err)
	}
	return text, nil
}

func (s *chromeSession) TextOf(ctx context.Context, selector string) (string, error) {
	var text string
	if err := s.run(ctx, elementTimeout,
		chromedp.Text(selector, &text, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("browser: text of %s: %w", selector, err)
	}
	return text, nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, elementTimeout,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("browser: page html: %w", err)
	}
	return html, nil
}

func (s *chromeSession) FormHTML(ctx context.Context) (string, error) {
	var html string
	expr := `Array.from(document.querySelectorAll("form")).map(f => f.outerHTML).join("\n")`
	if err := s.run(ctx, elementTimeout,
		chromedp.Evaluate(expr, &html),
	); err != nil {
		return "", fmt.Errorf("browser: form html: %w", err)
	}
	return html, nil
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, navigateTimeout,
		chromedp.CaptureScreenshot(&buf),
	); err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return buf, nil
}

func (s *chromeSession) Close() error {
	for _, cancel := range s.cancels {
		cancel()
	}
	return nil
}
