// Package dispatch sends push notifications through the external push
// provider. Delivery is at-least-once: callers retry on transport errors
// and the provider deduplicates via collapse keys where supported.
package dispatch

import (
	"context"
	"errors"
)

// Predefined dispatch errors.
var (
	// ErrGatewayUnavailable is returned when the provider is unreachable
	// or its circuit breaker is open.
	ErrGatewayUnavailable = errors.New("push gateway unavailable")

	// ErrEmptyMessage is returned when a message has no tokens to send to.
	ErrEmptyMessage = errors.New("push message has no tokens")
)

// Message is one push payload fanned out to a set of device tokens.
type Message struct {
	Title string
	Body  string

	// ImageURL is an optional rich-media attachment.
	ImageURL string

	// Route is the in-app destination opened on tap.
	Route string

	// CollapseKey lets the provider replace an undelivered older message
	// with this one. Empty disables collapsing.
	CollapseKey string

	Tokens []string
}

// Result aggregates per-token outcomes for one send.
type Result struct {
	SuccessCount int
	FailureCount int
}

// Gateway delivers push messages to device tokens.
type Gateway interface {
	// Send fans the message out to all tokens. A non-nil error means the
	// whole batch failed; partial failures are reported in the Result.
	Send(ctx context.Context, msg *Message) (*Result, error)
}
