package notify

import (
	"context"
	"fmt"
	"time"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/models"
	"ms-enrollment/internal/telemetry"

	"github.com/google/uuid"
)

type EmailDispatcher interface {
	Send(ctx context.Context, d Dispatch) EmailOutcome
}

type PushDispatcher interface {
	Send(ctx context.Context, d Dispatch) PushOutcome
}

type OrderAlerter interface {
	NotifyOrderCreated(ctx context.Context, d Dispatch)
}

// Orchestrator fans one reminder out to email, push and staff, in that
// order. Each channel runs inside its own recover boundary so the report is
// always complete.
type Orchestrator struct {
	Email     EmailDispatcher
	Push      PushDispatcher
	Admin     OrderAlerter
	Site      Site
	Logger    *logger.Logger
	Telemetry telemetry.Recorder
}

func NewOrchestrator(email EmailDispatcher, push PushDispatcher, admin OrderAlerter, site Site, log *logger.Logger, rec telemetry.Recorder) *Orchestrator {
	return &Orchestrator{Email: email, Push: push, Admin: admin, Site: site, Logger: log, Telemetry: rec}
}

type Input struct {
	Order   models.Order
	Profile models.Profile
	Email   string
	Course  models.Course
}

func (o *Orchestrator) Dispatch(ctx context.Context, in Input) models.NotificationReport {
	d := Dispatch{
		ID:       uuid.NewString(),
		Order:    in.Order,
		Profile:  in.Profile,
		Email:    in.Email,
		Course:   in.Course,
		Reminder: BuildReminder(in.Order, in.Profile, in.Course, o.Site),
	}
	report := models.NotificationReport{
		Debug: models.ReportDebug{DispatchID: d.ID, OrderID: d.Order.OrderID},
	}
	o.Telemetry.Incr(ctx, telemetry.ReminderDispatched)

	report.Debug.EmailMillis = o.guard("EMAIL", d, func() {
		out := o.Email.Send(ctx, d)
		report.EmailSent = out.Sent
		report.EmailError = out.Err
		report.Debug.EmailSkipped = out.Skipped
	}, func(r interface{}) {
		report.EmailSent = false
		report.EmailError = panicError(r)
	})

	report.Debug.PushMillis = o.guard("PUSH", d, func() {
		out := o.Push.Send(ctx, d)
		report.PushSent = out.Sent
		report.PushError = out.Err
		report.Debug.PushReason = out.Reason
		report.Debug.PushAttempts = out.Attempts
		report.Debug.PushRetries = out.Retries
	}, func(r interface{}) {
		report.PushSent = false
		report.PushError = panicError(r)
	})

	report.Debug.AdminAttempted = true
	report.Debug.AdminMillis = o.guard("ADMIN", d, func() {
		o.Admin.NotifyOrderCreated(ctx, d)
	}, func(interface{}) {})

	o.Logger.Info("REMINDER", fmt.Sprintf("dispatch %s order #%d: email=%t push=%t retries=%d",
		d.ID, d.Order.OrderID, report.EmailSent, report.PushSent, report.Debug.PushRetries))
	return report
}

// guard runs fn and converts a panic into onPanic. It returns how long fn took in ms.
func (o *Orchestrator) guard(channel string, d Dispatch, fn func(), onPanic func(interface{})) (elapsed int64) {
	start := time.Now()
	defer func() {
		elapsed = time.Since(start).Milliseconds()
		if r := recover(); r != nil {
			o.Logger.Error(channel, fmt.Sprintf("dispatch %s order #%d: channel panicked: %v", d.ID, d.Order.OrderID, r))
			onPanic(r)
		}
	}()
	fn()
	return
}
