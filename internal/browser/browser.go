// Package browser abstracts the headless-browser capability used by the
// webform channel and the status checker. A Session is scoped to one
// attempt: acquired at the start, closed unconditionally at the end.
package browser

import "context"

// Session is one live browser page.
type Session interface {
	// Navigate loads a URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until the selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error

	// Fill replaces the value of the first element matching selector.
	Fill(ctx context.Context, selector, value string) error

	// SelectOption picks an option by value in a select element.
	SelectOption(ctx context.Context, selector, value string) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// Exists reports whether any element matches selector.
	Exists(ctx context.Context, selector string) (bool, error)

	// Text returns the page body's visible text.
	Text(ctx context.Context) (string, error)

	// TextOf returns the visible text of the first element matching
	// selector.
	TextOf(ctx context.Context, selector string) (string, error)

	// HTML returns the full page markup.
	HTML(ctx context.Context) (string, error)

	// FormHTML returns the markup of all form elements on the page.
	FormHTML(ctx context.Context) (string, error)

	// Screenshot captures the current viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the page and its browser resources.
	Close() error
}

// Browser opens sessions.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}
