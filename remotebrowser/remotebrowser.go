// Package remotebrowser acquires and releases browsers hosted by a remote provider.
package remotebrowser

import (
	"context"
	"errors"
)

var (
	// ErrProvisioning is returned when a remote browser could not be created.
	ErrProvisioning = errors.New("remote browser provisioning failed")

	// ErrRelease is returned when a remote browser could not be deleted.
	ErrRelease = errors.New("remote browser release failed")
)

// Session is a handle to a provisioned remote browser.
type Session struct {
	// ID is the provider's opaque session identifier.
	ID string

	// CDPURL is the Chrome DevTools Protocol websocket endpoint.
	CDPURL string

	// LiveViewURL is a human-viewable URL for watching the browser.
	LiveViewURL string
}

// AcquireOptions configures a new remote browser.
type AcquireOptions struct {
	// InvocationID associates the browser with a calling action invocation. Optional.
	InvocationID string

	// Stealth requests anti bot-detection behaviour.
	Stealth bool
}

// Provider creates and deletes remote browsers.
type Provider interface {
	// Acquire creates a new remote browser. Errors wrap ErrProvisioning.
	Acquire(ctx context.Context, opts AcquireOptions) (*Session, error)

	// Release deletes a remote browser. Releasing an unknown or already
	// released session succeeds. Other errors wrap ErrRelease.
	Release(ctx context.Context, sessionID string) error
}
