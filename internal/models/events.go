package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderEvent is published to Kafka and streamed over SSE whenever an order
// is created or changes state.
type OrderEvent struct {
	EventID    string        `json:"event_id"`
	Type       string        `json:"type"`
	OrderID    int64         `json:"order_id"`
	UserID     string        `json:"user_id"`
	CourseID   string        `json:"course_id"`
	Variant    CourseVariant `json:"course_variant"`
	Total      int64         `json:"total"`
	FromState  OrderState    `json:"from_state,omitempty"`
	State      OrderState    `json:"state"`
	OccurredAt time.Time     `json:"occurred_at"`
}

const (
	OrderEventCreated      = "order.created"
	OrderEventStateChanged = "order.state_changed"
)

func NewOrderEvent(eventType string, o Order, from OrderState) OrderEvent {
	return OrderEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		OrderID:    o.OrderID,
		UserID:     o.UserID,
		CourseID:   o.CourseID,
		Variant:    o.CourseVariant,
		Total:      o.Total,
		FromState:  from,
		State:      o.State,
		OccurredAt: time.Now().UTC(),
	}
}

// UserRegisteredEvent is consumed from the identity provider's event stream.
type UserRegisteredEvent struct {
	UserID        string       `json:"user_id"`
	FullName      string       `json:"full_name"`
	Email         string       `json:"email,omitempty"`
	AuthProvider  AuthProvider `json:"auth_provider"`
	PushChannelID string       `json:"push_channel_id,omitempty"`
	StudentID     int64        `json:"student_id,omitempty"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

// Profile is the row a registration creates. A zero StudentID is left for
// the database sequence to assign.
func (e UserRegisteredEvent) Profile() Profile {
	created := e.OccurredAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return Profile{
		UserID:        e.UserID,
		StudentID:     e.StudentID,
		FullName:      e.FullName,
		AuthProvider:  e.AuthProvider,
		PushChannelID: e.PushChannelID,
		CreatedAt:     created,
	}
}
