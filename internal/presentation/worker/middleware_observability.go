package workerpresentation

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/paylink/internal/observability"
	"github.com/Zhima-Mochi/paylink/internal/observability/logctx"
)

// Delivery identifies one event handed to a background worker.
type Delivery struct {
	// Event is the event name, e.g. payment.confirmed.
	Event string
	// ID is generated when empty.
	ID string
	// Attrs must stay low-cardinality apart from the aggregate id.
	Attrs map[string]string
}

// WithEventContext binds a delivery-scoped logger to ctx. Trace and span ids are
// taken from the span already on ctx, if any.
func WithEventContext(ctx context.Context, base observability.Logger, tel observability.Observability, d Delivery) context.Context {
	if base == nil {
		if tel == nil {
			tel = observability.Nop()
		}
		base = tel.Logger()
	}

	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	fields := []observability.Field{
		observability.F("event_id", id),
		observability.F("event", d.Event),
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}

	keys := make([]string, 0, len(d.Attrs))
	for k, v := range d.Attrs {
		if v != "" && k != "event_id" && k != "event" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, observability.F(k, d.Attrs[k]))
	}

	return logctx.With(ctx, base.With(fields...))
}
