package metric

import "context"

// Publisher receives readings from the collection engine. Implementations
// must be safe for concurrent delivery from multiple module pipelines.
type Publisher interface {
	Publish(ctx context.Context, r Reading) error
}
