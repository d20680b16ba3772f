package notify

import (
	"context"
	"errors"
	"fmt"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/messaging"
	"ms-enrollment/internal/models"
	"ms-enrollment/internal/telemetry"
)

const (
	ReasonNoPushChannel = "no_push_channel"
	ReasonNotFriend     = "not_friend"
)

type PushPlatform interface {
	CheckRelationship(ctx context.Context, to string) (bool, error)
	Push(ctx context.Context, to string, messages ...messaging.Message) error
}

type PushOutcome struct {
	Sent     bool
	Reason   string
	Attempts int
	Retries  int
	Err      *models.ChannelError
}

type PushChannel struct {
	Platform          PushPlatform
	CheckRelationship bool
	Logger            *logger.Logger
	Telemetry         telemetry.Recorder
}

func NewPushChannel(platform PushPlatform, checkRelationship bool, log *logger.Logger, rec telemetry.Recorder) *PushChannel {
	return &PushChannel{Platform: platform, CheckRelationship: checkRelationship, Logger: log, Telemetry: rec}
}

// Send delivers the reminder card to the buyer's push identity. A
// not-a-contact error earns exactly one more attempt without the
// relationship check; every other error is final.
func (p *PushChannel) Send(ctx context.Context, d Dispatch) (out PushOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out.Sent = false
			out.Err = panicError(r)
			p.Logger.Error("PUSH", fmt.Sprintf("Recovered panic for order #%d: %v", d.Order.OrderID, r))
			p.Telemetry.Incr(ctx, telemetry.PushFailed)
		}
	}()

	if !d.Profile.HasPushChannel() {
		p.Logger.LogNotify("PUSH", d.Order.OrderID, "skipped", "no push identity")
		return PushOutcome{Reason: ReasonNoPushChannel}
	}

	to := d.Profile.PushChannelID
	msg := d.Reminder.PushMessage()

	out.Attempts = 1
	sent, reason, err := p.attempt(ctx, to, msg, p.CheckRelationship)
	if err != nil && errors.Is(err, messaging.ErrNotContact) {
		p.Logger.Warn("PUSH", fmt.Sprintf("order #%d: %v, retrying once without relationship check", d.Order.OrderID, err))
		p.Telemetry.Incr(ctx, telemetry.PushRetry)
		out.Attempts = 2
		out.Retries = 1
		sent, reason, err = p.attempt(ctx, to, msg, false)
	}

	switch {
	case err != nil:
		p.Logger.Warn("PUSH", fmt.Sprintf("order #%d failed after %d attempt(s): %v", d.Order.OrderID, out.Attempts, err))
		p.Telemetry.Incr(ctx, telemetry.PushFailed)
		out.Err = channelError(err)
	case !sent:
		p.Logger.LogNotify("PUSH", d.Order.OrderID, "not sent", reason)
		p.Telemetry.Incr(ctx, telemetry.PushNotFriend)
		out.Reason = reason
	default:
		p.Logger.LogNotify("PUSH", d.Order.OrderID, "sent", fmt.Sprintf("%d attempt(s)", out.Attempts))
		p.Telemetry.Incr(ctx, telemetry.PushSent)
		out.Sent = true
	}
	return out
}

func (p *PushChannel) attempt(ctx context.Context, to string, msg messaging.Message, check bool) (bool, string, error) {
	if check {
		friend, err := p.Platform.CheckRelationship(ctx, to)
		if err != nil {
			return false, "", err
		}
		if !friend {
			return false, ReasonNotFriend, nil
		}
	}
	if err := p.Platform.Push(ctx, to, msg); err != nil {
		return false, "", err
	}
	return true, "", nil
}
