package notify

import (
	"errors"
	"fmt"

	"ms-enrollment/internal/mailer"
	"ms-enrollment/internal/messaging"
	"ms-enrollment/internal/models"
)

// Dispatch carries the resolved dependencies of one reminder. Channels only
// run once all of them are known.
type Dispatch struct {
	ID       string
	Order    models.Order
	Profile  models.Profile
	Email    string
	Course   models.Course
	Reminder Reminder
}

func channelError(err error) *models.ChannelError {
	if err == nil {
		return nil
	}
	var perr *messaging.PlatformError
	if errors.As(err, &perr) {
		return &models.ChannelError{Message: perr.Message, Code: perr.Code}
	}
	var merr *mailer.ProviderError
	if errors.As(err, &merr) {
		return &models.ChannelError{Message: merr.Message, Code: merr.Code}
	}
	if errors.Is(err, messaging.ErrNotContact) {
		return &models.ChannelError{Message: err.Error(), Code: "not_contact"}
	}
	return &models.ChannelError{Message: err.Error(), Code: "delivery_failed"}
}

func panicError(v interface{}) *models.ChannelError {
	return &models.ChannelError{Message: fmt.Sprintf("panic: %v", v), Code: "internal_error"}
}
