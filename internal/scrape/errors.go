package scrape

import (
	"fmt"
	"time"
)

// MissingTargetError is returned by Resolve when no url parameter was supplied.
type MissingTargetError struct{}

func (e *MissingTargetError) Error() string { return "Please provide a URL parameter." }

// LaunchError wraps a failure to start or prepare the browser.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string { return fmt.Sprintf("browser launch failed: %v", e.Err) }
func (e *LaunchError) Unwrap() error { return e.Err }

// NavigationError wraps a fatal failure in one of the navigation steps.
type NavigationError struct {
	Step string
	URL  string
	Err  error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Step, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// InteractionTimeout reports that an element did not appear within its bound.
// It never aborts a session.
type InteractionTimeout struct {
	Selector string
	Timeout  time.Duration
	Err      error
}

func (e *InteractionTimeout) Error() string {
	return fmt.Sprintf("element %q not found within %s: %v", e.Selector, e.Timeout, e.Err)
}

func (e *InteractionTimeout) Unwrap() error { return e.Err }
