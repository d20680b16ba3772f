package order_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ms-enrollment/internal/auth"
	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/models"
	"ms-enrollment/internal/order"
	"ms-enrollment/internal/utils"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 16 << 10

// Lifecycle is the part of order.OrderService the HTTP layer drives.
type Lifecycle interface {
	CreateOrder(ctx context.Context, userID string, req models.OrderRequest) (*models.Order, error)
	ReportPayment(ctx context.Context, userID string, orderID int64, report models.PaymentReport) (*models.Order, error)
	ReportMessaged(ctx context.Context, userID string, orderID int64) (*models.Order, error)
	Confirm(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrder(ctx context.Context, userID string, orderID int64) (*models.OrderView, error)
	ListOrders(ctx context.Context, userID string) ([]models.OrderView, error)
}

type StateCounter interface {
	CountOrdersByState(ctx context.Context) (map[models.OrderState]int, error)
}

type CounterSnapshot interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
}

type Handler struct {
	Orders    Lifecycle
	States    StateCounter
	Telemetry CounterSnapshot
	Logger    *logger.Logger
}

func NewHandler(orders Lifecycle, states StateCounter, counters CounterSnapshot, log *logger.Logger) *Handler {
	return &Handler{Orders: orders, States: states, Telemetry: counters, Logger: log}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req models.OrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateOrder: failed to decode request body: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", order.CodeInvalidInput))
		return
	}

	created, err := h.Orders.CreateOrder(r.Context(), userID, req)
	if err != nil {
		writeLifecycleError(h.Logger, w, r, "CreateOrder", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateOrder: order #%d created for user %s", created.OrderID, userID))
	h.respond(w, http.StatusCreated, created)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.Orders.ListOrders(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeLifecycleError(h.Logger, w, r, "ListOrders", err)
		return
	}
	h.respond(w, http.StatusOK, views)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	view, err := h.Orders.GetOrder(r.Context(), auth.UserID(r.Context()), orderID)
	if err != nil {
		writeLifecycleError(h.Logger, w, r, "GetOrder", err)
		return
	}
	h.respond(w, http.StatusOK, view)
}

func (h *Handler) ReportPayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	// An empty body is a bare "I paid"
	var report models.PaymentReport
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&report); err != nil {
			h.Logger.Warn("API", fmt.Sprintf("ReportPayment: failed to decode request body: %v", err))
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", order.CodeInvalidInput))
			return
		}
	}

	updated, err := h.Orders.ReportPayment(r.Context(), auth.UserID(r.Context()), orderID, report)
	if err != nil {
		writeLifecycleError(h.Logger, w, r, "ReportPayment", err)
		return
	}
	h.respond(w, http.StatusOK, updated)
}

func (h *Handler) ReportMessaged(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	updated, err := h.Orders.ReportMessaged(r.Context(), auth.UserID(r.Context()), orderID)
	if err != nil {
		writeLifecycleError(h.Logger, w, r, "ReportMessaged", err)
		return
	}
	h.respond(w, http.StatusOK, updated)
}

// ConfirmOrder is mounted behind the staff role.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	updated, err := h.Orders.Confirm(r.Context(), orderID)
	if err != nil {
		writeLifecycleError(h.Logger, w, r, "ConfirmOrder", err)
		return
	}
	h.Logger.LogOrder("CONFIRM", orderID, fmt.Sprintf("confirmed by %s", auth.UserID(r.Context())))
	h.respond(w, http.StatusOK, updated)
}

type notificationStats struct {
	Counters    map[string]int64          `json:"counters"`
	OrderStates map[models.OrderState]int `json:"order_states"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

func (h *Handler) NotificationStats(w http.ResponseWriter, r *http.Request) {
	counters, err := h.Telemetry.Snapshot(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("NotificationStats: failed to read counters: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to read counters", order.CodeStoreFailure))
		return
	}
	states, err := h.States.CountOrdersByState(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("NotificationStats: failed to count orders: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to count orders", order.CodeStoreFailure))
		return
	}
	h.respond(w, http.StatusOK, notificationStats{Counters: counters, OrderStates: states, GeneratedAt: time.Now().UTC()})
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderId"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("order id must be a positive number", order.CodeInvalidInput))
		return 0, false
	}
	return id, true
}

func (h *Handler) respond(w http.ResponseWriter, status int, v interface{}) {
	if err := utils.WriteJSON(w, status, v); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

func writeLifecycleError(log *logger.Logger, w http.ResponseWriter, r *http.Request, op string, err error) {
	le := order.AsLifecycleError(err)
	if le.StatusCode >= http.StatusInternalServerError {
		log.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.CaptureError(r, err, map[string]string{"component": "order", "operation": op})
	} else {
		log.Debug("API", fmt.Sprintf("%s: %s (%s)", op, le.Message, le.Code))
	}
	utils.WriteJSON(w, le.StatusCode, utils.ErrorResponse(le.Message, le.Code))
}
