package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PaymentWindow is how long a buyer has to complete the bank transfer.
// The reminder validity window, the expiry shown in messages and the
// deadline returned to the storefront all derive from it.
const PaymentWindow = 24 * time.Hour

type OrderState string

const (
	StateCreated   OrderState = "CREATED"
	StatePayed     OrderState = "PAYED"
	StateMessaged  OrderState = "MESSAGED"
	StateConfirmed OrderState = "CONFIRMED"
)

func (s OrderState) Valid() bool {
	switch s {
	case StateCreated, StatePayed, StateMessaged, StateConfirmed:
		return true
	}
	return false
}

type CourseVariant string

const (
	VariantGroup  CourseVariant = "group"
	VariantSingle CourseVariant = "single"
)

func (v CourseVariant) Valid() bool {
	return v == VariantGroup || v == VariantSingle
}

type OrderRequest struct {
	CourseID string        `json:"course_id"`
	Variant  CourseVariant `json:"course_variant"`
	Total    int64         `json:"total"`
}

type PaymentReport struct {
	TransferAccountLast5 string `json:"transfer_account_last5,omitempty"`
	TransferTime         string `json:"transfer_time,omitempty"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID              int64         `bun:"order_id,pk,autoincrement" json:"order_id"`
	UserID               string        `bun:"user_id,notnull" json:"user_id"`
	CourseID             string        `bun:"course_id,notnull" json:"course_id"`
	CourseVariant        CourseVariant `bun:"course_variant,notnull" json:"course_variant"`
	Total                int64         `bun:"total,notnull" json:"total"`
	State                OrderState    `bun:"state,notnull" json:"state"`
	CreatedAt            time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt            time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
	TransferAccountLast5 string        `bun:"transfer_account_last5,nullzero" json:"transfer_account_last5,omitempty"`
	TransferTime         *time.Time    `bun:"transfer_time,nullzero" json:"transfer_time,omitempty"`
}

// PaymentDeadline is the moment the buyer is told the order lapses.
func (o Order) PaymentDeadline() time.Time {
	return o.CreatedAt.Add(PaymentWindow)
}

// WithinPaymentWindow reports whether reminders may still be sent for the order.
func (o Order) WithinPaymentWindow(now time.Time) bool {
	return !o.CreatedAt.Before(now.Add(-PaymentWindow))
}

// OrderView is what the storefront receives for an order.
type OrderView struct {
	Order
	PaymentDeadline      time.Time `json:"payment_deadline"`
	PaymentWindowSeconds int64     `json:"payment_window_seconds"`
	Overdue              bool      `json:"overdue"`
}
