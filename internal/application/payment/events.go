package payment

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/paylink/internal/domain/outbox"
	"github.com/Zhima-Mochi/paylink/internal/observability"
	"github.com/Zhima-Mochi/paylink/internal/observability/logctx"
)

const publishTimeout = 2 * time.Second

// publishEvent hands e to the publisher without letting a slow or failing
// broker affect the caller. Failures are logged and counted.
func publishEvent(ctx context.Context, in *instruments, publisher outbox.Publisher, e outbox.Event) {
	if publisher == nil || e == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	start := time.Now()
	err := publisher.Publish(pubCtx, e)
	in.external(pubCtx, peerOutbox, e.EventName(), start, err)
	if err != nil {
		logctx.FromOr(ctx, in.log).Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
}
