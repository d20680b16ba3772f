package order

import (
	"context"
	"time"

	"ms-enrollment/internal/models"
)

// ExpirationPolicy decides what happens to an order that has outlived its
// payment window. Buyers are told unpaid orders lapse after the window; no
// automatic cancellation exists yet and the product decision is open, so
// the only shipped policy reports overdue orders without changing them.
type ExpirationPolicy interface {
	Overdue(o models.Order, now time.Time) bool
	Apply(ctx context.Context, o models.Order, now time.Time) (models.Order, error)
}

type DisplayOnlyPolicy struct{}

func (DisplayOnlyPolicy) Overdue(o models.Order, now time.Time) bool {
	return o.State == models.StateCreated && now.After(o.PaymentDeadline())
}

func (DisplayOnlyPolicy) Apply(_ context.Context, o models.Order, _ time.Time) (models.Order, error) {
	return o, nil
}
