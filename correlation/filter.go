package correlation

import (
	"context"

	"github.com/google/uuid"

	"github.com/get-eventually/go-subscribe/consume"
)

var _ consume.Filter = Filter{}

// Filter extends the context passed down the Pipeline with the correlation
// data of the Event being processed.
//
// The correlation id is taken from the Event Metadata, falling back to the
// id of the Event itself when missing, so that a new correlation chain is
// started. New actions taken by Handlers are caused by the Event received,
// hence the Event id is used as causation id.
type Filter struct{}

// Send implements the consume.Filter interface.
func (Filter) Send(ctx context.Context, c *consume.Context, next consume.Next) error {
	correlationID, ok := c.Metadata[CorrelationIDKey]
	if !ok && c.MessageID != uuid.Nil {
		correlationID, ok = c.MessageID.String(), true
	}

	if ok {
		ctx = WithCorrelationID(ctx, correlationID)
	}

	if c.MessageID != uuid.Nil {
		ctx = WithCausationID(ctx, c.MessageID.String())
	}

	return next(ctx, c)
}
