package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/messaging"
	"ms-enrollment/internal/models"
	"ms-enrollment/internal/telemetry"
)

type StaffPusher interface {
	Push(ctx context.Context, to string, messages ...messaging.Message) error
}

// AdminChannel alerts staff. It is strictly best effort: nothing it does can
// fail or slow down the caller beyond the platform client's own timeout.
type AdminChannel struct {
	Platform   StaffPusher
	Targets    []string
	ConsoleURL string
	Logger     *logger.Logger
	Telemetry  telemetry.Recorder
}

func NewAdminChannel(platform StaffPusher, targets []string, consoleURL string, log *logger.Logger, rec telemetry.Recorder) *AdminChannel {
	return &AdminChannel{
		Platform:   platform,
		Targets:    targets,
		ConsoleURL: strings.TrimRight(consoleURL, "/"),
		Logger:     log,
		Telemetry:  rec,
	}
}

func (a *AdminChannel) NotifyOrderCreated(ctx context.Context, d Dispatch) {
	link := ""
	if a.ConsoleURL != "" {
		link = fmt.Sprintf("%s/orders/%d", a.ConsoleURL, d.Order.OrderID)
	}
	card := messaging.NewCard(
		fmt.Sprintf("New order #%d from %s", d.Order.OrderID, d.Profile.FullName),
		messaging.Card{
			Title: fmt.Sprintf("New order #%d", d.Order.OrderID),
			Fields: []messaging.Field{
				{Label: "Buyer", Value: fmt.Sprintf("%s (#%d)", d.Profile.FullName, d.Profile.StudentID)},
				{Label: "Course", Value: d.Course.DisplayName()},
				{Label: "Variant", Value: variantLabel(d.Order.CourseVariant)},
				{Label: "Amount", Value: FormatAmount(d.Order.Total)},
			},
			ButtonLabel: "Open in console",
			ButtonURL:   link,
		},
	)
	a.broadcast(ctx, fmt.Sprintf("order #%d", d.Order.OrderID), card)
}

func (a *AdminChannel) NotifyRegistration(ctx context.Context, ev models.UserRegisteredEvent) {
	via := "email"
	if ev.AuthProvider == models.AuthProviderPush {
		via = "messaging app"
	}
	text := fmt.Sprintf("New registration: %s (via %s)", ev.FullName, via)
	if ev.StudentID > 0 {
		text += fmt.Sprintf(", student #%d", ev.StudentID)
	}
	a.broadcast(ctx, "registration "+ev.UserID, messaging.NewText(text))
}

func (a *AdminChannel) NotifySystemError(ctx context.Context, source string, err error) {
	text := fmt.Sprintf("[%s] System error in %s: %v", time.Now().UTC().Format(time.RFC3339), source, err)
	a.broadcast(ctx, "system error", messaging.NewText(text))
}

func (a *AdminChannel) broadcast(ctx context.Context, subject string, msg messaging.Message) {
	defer func() {
		if r := recover(); r != nil {
			a.Logger.Error("ADMIN", fmt.Sprintf("Recovered panic while alerting staff about %s: %v", subject, r))
			a.Telemetry.Incr(ctx, telemetry.AdminFailed)
		}
	}()

	if len(a.Targets) == 0 {
		a.Logger.Debug("ADMIN", fmt.Sprintf("No staff targets configured, dropping alert for %s", subject))
		return
	}
	for _, target := range a.Targets {
		if err := a.Platform.Push(ctx, target, msg); err != nil {
			a.Logger.Warn("ADMIN", fmt.Sprintf("Alert for %s to %s failed: %v", subject, target, err))
			a.Telemetry.Incr(ctx, telemetry.AdminFailed)
		}
	}
}
