package reminder_api

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/models"
	"ms-enrollment/internal/notify"
	"ms-enrollment/internal/reminder"
	"ms-enrollment/internal/telemetry"
	"ms-enrollment/internal/utils"
)

const maxBodyBytes = 4 << 10

type InputResolver interface {
	Resolve(ctx context.Context, orderID int64) (notify.Input, error)
}

type ReminderDispatcher interface {
	Dispatch(ctx context.Context, in notify.Input) models.NotificationReport
}

type SystemAlerter interface {
	NotifySystemError(ctx context.Context, source string, err error)
}

type Handler struct {
	Resolver     InputResolver
	Orchestrator ReminderDispatcher
	Alerts       SystemAlerter
	Origins      OriginSet
	Limiter      *ClientLimiter
	Telemetry    telemetry.Recorder
	Logger       *logger.Logger

	// InternalToken marks calls made by this service's own dispatcher. Those
	// bypass the per-client limiter. Empty disables the bypass.
	InternalToken string
}

func NewHandler(resolver InputResolver, orchestrator ReminderDispatcher, alerts SystemAlerter, origins OriginSet, limiter *ClientLimiter, rec telemetry.Recorder, log *logger.Logger) *Handler {
	return &Handler{
		Resolver:     resolver,
		Orchestrator: orchestrator,
		Alerts:       alerts,
		Origins:      origins,
		Limiter:      limiter,
		Telemetry:    rec,
		Logger:       log,
	}
}

// TriggerPaymentReminder handles POST /reminders/payment. Once dependencies
// resolve it always answers 200 with the per-channel report.
func (h *Handler) TriggerPaymentReminder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		h.Logger.LogAPI(r.Method, r.URL.Path, status, time.Since(start))
	}()

	if h.Limiter != nil && !h.internalCaller(r) && !h.Limiter.Allow(r) {
		status = http.StatusTooManyRequests
		h.Telemetry.Incr(r.Context(), telemetry.ReminderRejected)
		w.Header().Set("Retry-After", "60")
		utils.WriteJSON(w, status, utils.ErrorResponse("Too many requests", "rate_limited"))
		return
	}

	orderID, terr := parseOrderID(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if terr == nil {
		if origin := RequestOrigin(r); !h.Origins.Allowed(origin) {
			h.Logger.LogSecurity("REMINDER_ORIGIN", fmt.Sprintf("rejected origin %q for order %d", origin, orderID))
			terr = reminder.AuthorizationError(origin)
		}
	}

	var input notify.Input
	if terr == nil {
		var err error
		input, err = h.Resolver.Resolve(r.Context(), orderID)
		if err != nil && !errors.As(err, &terr) {
			terr = reminder.UnexpectedError(err)
		}
	}

	if terr != nil {
		status = terr.StatusCode
		h.fail(r, orderID, terr)
		utils.WriteJSON(w, status, utils.ErrorResponse(terr.PublicError, terr.Category))
		return
	}

	// The caller never waits on this; finish even if it hangs up
	report := h.Orchestrator.Dispatch(context.WithoutCancel(r.Context()), input)

	if err := utils.WriteJSON(w, status, report); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("TriggerPaymentReminder: failed to encode report: %v", err))
	}
}

func (h *Handler) internalCaller(r *http.Request) bool {
	if h.InternalToken == "" {
		return false
	}
	got := r.Header.Get(reminder.InternalTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.InternalToken)) == 1
}

func (h *Handler) fail(r *http.Request, orderID int64, terr *reminder.TriggerError) {
	if terr.Category != reminder.CategoryUnexpected {
		h.Logger.Info("REMINDER", fmt.Sprintf("order %d rejected (%s): %s", orderID, terr.Category, terr.InternalError))
		h.Telemetry.Incr(r.Context(), telemetry.ReminderRejected)
		return
	}

	h.Logger.Error("REMINDER", fmt.Sprintf("order %d: %s", orderID, terr.InternalError))
	utils.CaptureError(r, terr, map[string]string{"component": "reminder", "order_id": strconv.FormatInt(orderID, 10)})
	if h.Alerts != nil {
		h.Alerts.NotifySystemError(context.WithoutCancel(r.Context()), "payment reminder", terr)
	}
}

type triggerRequest struct {
	OrderID json.RawMessage `json:"orderId"`
}

// parseOrderID accepts a JSON number or a numeric string.
func parseOrderID(body io.Reader) (int64, *reminder.TriggerError) {
	var req triggerRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return 0, reminder.ValidationError("Invalid request body")
	}

	raw := bytes.TrimSpace(req.OrderID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, reminder.ValidationError("orderId is required")
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, reminder.ValidationError("orderId must be a number")
		}
		text = strings.TrimSpace(text)
	}

	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id <= 0 {
		return 0, reminder.ValidationError("orderId must be a positive number")
	}
	return id, nil
}
