package progress

import "context"

// Sink consumes batches of events. Implementations must tolerate
// replay and out-of-order delivery across batches.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}
