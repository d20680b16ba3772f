package notify

import (
	"context"
	"fmt"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/mailer"
	"ms-enrollment/internal/models"
	"ms-enrollment/internal/telemetry"
)

const SkipPushIdentity = "push_identity"

type EmailSender interface {
	Send(ctx context.Context, msg mailer.Message) (*mailer.Result, error)
}

type EmailOutcome struct {
	Sent    bool
	Skipped string
	Err     *models.ChannelError
}

type EmailChannel struct {
	Sender     EmailSender
	TemplateID string
	Logger     *logger.Logger
	Telemetry  telemetry.Recorder
}

func NewEmailChannel(sender EmailSender, templateID string, log *logger.Logger, rec telemetry.Recorder) *EmailChannel {
	return &EmailChannel{Sender: sender, TemplateID: templateID, Logger: log, Telemetry: rec}
}

// Send makes at most one provider call. Failures are returned in the outcome,
// never as an error or panic.
func (e *EmailChannel) Send(ctx context.Context, d Dispatch) (out EmailOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = EmailOutcome{Err: panicError(r)}
			e.Logger.Error("EMAIL", fmt.Sprintf("Recovered panic for order #%d: %v", d.Order.OrderID, r))
			e.Telemetry.Incr(ctx, telemetry.EmailFailed)
		}
	}()

	// Push-only buyers carry a placeholder address
	if d.Profile.IsPushOnly() {
		e.Logger.LogNotify("EMAIL", d.Order.OrderID, "skipped", "push-only identity")
		e.Telemetry.Incr(ctx, telemetry.EmailSkipped)
		return EmailOutcome{Skipped: SkipPushIdentity}
	}

	msg := mailer.Message{
		To:      d.Email,
		ToName:  d.Profile.FullName,
		Subject: d.Reminder.EmailSubject(),
	}
	if e.TemplateID != "" {
		msg.TemplateID = e.TemplateID
		msg.Data = d.Reminder.TemplateData()
	} else {
		html, err := d.Reminder.EmailHTML()
		if err != nil {
			return e.fail(ctx, d, err)
		}
		msg.HTML = html
		msg.Text = d.Reminder.EmailText()
	}

	res, err := e.Sender.Send(ctx, msg)
	if err != nil {
		return e.fail(ctx, d, err)
	}

	e.Logger.LogNotify("EMAIL", d.Order.OrderID, "sent", fmt.Sprintf("message %s", res.MessageID))
	e.Telemetry.Incr(ctx, telemetry.EmailSent)
	return EmailOutcome{Sent: true}
}

func (e *EmailChannel) fail(ctx context.Context, d Dispatch, err error) EmailOutcome {
	e.Logger.Warn("EMAIL", fmt.Sprintf("order #%d failed: %v", d.Order.OrderID, err))
	e.Telemetry.Incr(ctx, telemetry.EmailFailed)
	return EmailOutcome{Err: channelError(err)}
}
