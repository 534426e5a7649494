// Package mirror provides optional fan-out of ingress items to an external
// sink, so dashboards and monitors can observe the message stream without
// draining the server's queue. Mirroring is best-effort: a failing sink
// never affects message delivery to the application.
package mirror

import (
	"context"

	"github.com/cyberinferno/jsonwire/ingress"
)

// Sink receives a copy of every item the server enqueues from a connection's
// read loop (decoded messages, decode-error and close reports); liveness
// timeout reports from the sweeper are not passed to it. Implementations
// must be safe for concurrent use: connection goroutines publish directly.
type Sink interface {
	// Publish delivers a copy of item to the sink.
	//
	// Parameters:
	//   - ctx: Context bounding the publish attempt
	//   - item: The ingress item being mirrored
	//
	// Returns:
	//   - An error if delivery failed; the server logs and discards it
	Publish(ctx context.Context, item *ingress.Item) error

	// Close releases resources held by the sink. Safe to call multiple times.
	Close() error
}
