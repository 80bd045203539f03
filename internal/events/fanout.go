package events

import "context"

// Fanout publishes every event to all wrapped publishers. The first
// failure is returned after every publisher has been attempted, so one
// slow sink does not silently drop the others.
type Fanout []Publisher

// Publish delivers ev to every publisher.
func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
