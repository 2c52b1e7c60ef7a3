// File: internal/browser/interface.go
package browser

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by wait primitives. Job procedures treat any
// session error as a recoverable job failure; these exist so logs can name
// the failure mode.
var (
	// ErrElementNotFound indicates a selector never became visible within
	// its timeout.
	ErrElementNotFound = errors.New("element not found")
	// ErrElementNotClickable indicates an element was present but never
	// became interactable within its timeout.
	ErrElementNotClickable = errors.New("element not clickable")
)

// Element is a handle to a located page element. It stays valid only for the
// session that produced it.
type Element struct {
	Selector string
}

// Session is the automation capability consumed by job procedures: a single
// isolated browser context with navigation, wait, fill and click primitives.
// A session is owned by exactly one worker for the duration of one job and
// must be closed on every exit path.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	WaitClickable(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	Fill(ctx context.Context, el Element, text string) error
	Click(ctx context.Context, el Element) error
	Close(ctx context.Context) error
}

// Factory constructs sessions. The proxy argument is an egress endpoint in
// "host:port" form; an empty string means a direct connection.
type Factory interface {
	New(ctx context.Context, proxy string) (Session, error)
}
