package port

import (
	"context"

	"github.com/leonardofgirotto/storefront/internal/core/domain"
)

// Order lifecycle event types.
const (
	EventOrderCreated   = "order.created"
	EventOrderCancelled = "order.cancelled"
)

// EventPublisher announces committed order transitions to downstream
// consumers. Publishing is best-effort and happens after commit; a publish
// failure never rolls back the transaction it reports on.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, eventType string, o domain.Order) error
}
