package order_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-enrollment/internal/auth"
	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/models"
	"ms-enrollment/internal/sse"
)

type OrderSubscriber interface {
	SubscribeToOrder(ctx context.Context, orderID int64) <-chan models.OrderEvent
	SubscribeToUser(ctx context.Context, userID string) <-chan models.OrderEvent
}

// SSEHandler streams lifecycle events so an open order page can follow its
// state without polling.
type SSEHandler struct {
	Orders  Lifecycle
	Emitter OrderSubscriber
	Logger  *logger.Logger
}

func NewSSEHandler(orders Lifecycle, emitter *sse.OrderEventEmitter, log *logger.Logger) *SSEHandler {
	return &SSEHandler{Orders: orders, Emitter: emitter, Logger: log}
}

// HandleOrderEvents streams events for one order the caller owns.
func (h *SSEHandler) HandleOrderEvents(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	// Ownership and existence are checked by the regular read path
	view, err := h.Orders.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		writeLifecycleError(h.Logger, w, r, "HandleOrderEvents", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	events := h.Emitter.SubscribeToOrder(ctx, orderID)

	setupSSEHeaders(w)
	h.writeEvent(w, "snapshot", view)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client %s following order #%d", userID, orderID))

	h.stream(ctx, w, flusher, events)
	h.Logger.Debug("SSE", fmt.Sprintf("Client %s stopped following order #%d", userID, orderID))
}

// HandleUserEvents streams events for every order of the caller.
func (h *SSEHandler) HandleUserEvents(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	events := h.Emitter.SubscribeToUser(ctx, userID)

	setupSSEHeaders(w)
	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	h.stream(ctx, w, flusher, events)
}

func (h *SSEHandler) stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, events <-chan models.OrderEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.writeEvent(w, ev.Type, ev)
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (h *SSEHandler) writeEvent(w http.ResponseWriter, name string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize %s event: %v", name, err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
