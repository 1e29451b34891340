package outbox

import (
	"context"
	"errors"

	domoutbox "github.com/Zhima-Mochi/paylink/internal/domain/outbox"
)

// Fanout publishes every event to all of its publishers, in order, and joins their errors.
type Fanout []domoutbox.Publisher

func (f Fanout) Publish(ctx context.Context, e domoutbox.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
