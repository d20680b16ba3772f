package order

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/models"
)

// Transition is one conditional state write. The store applies it only when
// the row is still in From.
type Transition struct {
	OrderID              int64
	From                 models.OrderState
	To                   models.OrderState
	At                   time.Time
	TransferAccountLast5 string
	TransferTime         *time.Time
}

// Store is the order persistence contract. Lookups return a nil order and a
// nil error when the row does not exist.
type Store interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	TransitionState(ctx context.Context, t Transition) (bool, error)
}

// PriceLookup returns a nil course when the catalog has no such id.
type PriceLookup interface {
	CourseByID(ctx context.Context, courseID string) (*models.Course, error)
}

// ReminderScheduler hands a reminder off to the background. Schedule must not
// block and gives no completion guarantee.
type ReminderScheduler interface {
	Schedule(orderID int64) bool
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, ev models.OrderEvent) error
}

type StateNotifier interface {
	NotifyOrderEvent(ev models.OrderEvent)
}

type OrderService struct {
	Store     Store
	Catalog   PriceLookup
	Reminders ReminderScheduler
	Events    EventPublisher
	Notifier  StateNotifier
	Policy    ExpirationPolicy
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewOrderService(store Store, catalog PriceLookup, reminders ReminderScheduler, events EventPublisher, notifier StateNotifier, log *logger.Logger) *OrderService {
	return &OrderService{
		Store:     store,
		Catalog:   catalog,
		Reminders: reminders,
		Events:    events,
		Notifier:  notifier,
		Policy:    DisplayOnlyPolicy{},
		Logger:    log,
		Now:       time.Now,
	}
}

// ---------------- ORDERS ----------------

func (s *OrderService) CreateOrder(ctx context.Context, userID string, req models.OrderRequest) (*models.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidInput("missing user")
	}
	if strings.TrimSpace(req.CourseID) == "" {
		return nil, invalidInput("course_id is required")
	}
	if !req.Variant.Valid() {
		return nil, invalidInput(fmt.Sprintf("course_variant must be %q or %q", models.VariantGroup, models.VariantSingle))
	}
	if req.Total <= 0 {
		return nil, invalidInput("total must be a positive amount")
	}

	course, err := s.Catalog.CourseByID(ctx, req.CourseID)
	if err != nil {
		return nil, &LifecycleError{
			Code:       "catalog_unavailable",
			Message:    "course information is temporarily unavailable, please try again",
			StatusCode: http.StatusServiceUnavailable,
			Err:        err,
		}
	}
	if course == nil {
		return nil, invalidInput(fmt.Sprintf("unknown course %s", req.CourseID))
	}
	price, ok := course.PriceFor(req.Variant)
	if !ok {
		return nil, invalidInput(fmt.Sprintf("course %s is not offered as %s", req.CourseID, req.Variant))
	}
	if price != req.Total {
		return nil, invalidInput(fmt.Sprintf("total %d does not match the %s price %d", req.Total, req.Variant, price))
	}

	now := s.Now().UTC()
	o := models.Order{
		UserID:        userID,
		CourseID:      req.CourseID,
		CourseVariant: req.Variant,
		Total:         req.Total,
		State:         models.StateCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.CreateOrder(ctx, &o); err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("Failed to create order for user %s: %v", userID, err))
		return nil, storeFailure(err)
	}
	s.Logger.LogOrder("CREATE", o.OrderID, fmt.Sprintf("course %s (%s) total %d", o.CourseID, o.CourseVariant, o.Total))

	if !s.Reminders.Schedule(o.OrderID) {
		s.Logger.Warn("ORDER", fmt.Sprintf("Payment reminder for order #%d was not queued", o.OrderID))
	}

	s.emit(ctx, models.NewOrderEvent(models.OrderEventCreated, o, ""))
	return &o, nil
}

func (s *OrderService) ReportPayment(ctx context.Context, userID string, orderID int64, report models.PaymentReport) (*models.Order, error) {
	t := Transition{OrderID: orderID, To: models.StatePayed}

	if last5 := strings.TrimSpace(report.TransferAccountLast5); last5 != "" {
		if !validLast5(last5) {
			return nil, invalidInput("transfer_account_last5 must be 1 to 5 digits")
		}
		t.TransferAccountLast5 = last5
	}
	if ts := strings.TrimSpace(report.TransferTime); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, invalidInput("transfer_time must be an ISO-8601 timestamp")
		}
		parsed = parsed.UTC()
		t.TransferTime = &parsed
	}

	return s.advance(ctx, userID, t)
}

func (s *OrderService) ReportMessaged(ctx context.Context, userID string, orderID int64) (*models.Order, error) {
	return s.advance(ctx, userID, Transition{OrderID: orderID, To: models.StateMessaged})
}

// Confirm is the staff action that closes an order. It skips the ownership check.
func (s *OrderService) Confirm(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.advance(ctx, "", Transition{OrderID: orderID, To: models.StateConfirmed})
}

func (s *OrderService) GetOrder(ctx context.Context, userID string, orderID int64) (*models.OrderView, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, forbidden()
	}
	view, err := s.view(ctx, *o)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]models.OrderView, error) {
	orders, err := s.Store.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, storeFailure(err)
	}
	views := make([]models.OrderView, 0, len(orders))
	for _, o := range orders {
		v, err := s.view(ctx, o)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// ---------------- HELPERS ----------------

func (s *OrderService) advance(ctx context.Context, userID string, t Transition) (*models.Order, error) {
	current, err := s.load(ctx, t.OrderID)
	if err != nil {
		return nil, err
	}
	if userID != "" && current.UserID != userID {
		s.Logger.LogSecurity("ORDER_OWNERSHIP", fmt.Sprintf("user %s tried to move order #%d owned by %s", userID, t.OrderID, current.UserID))
		return nil, forbidden()
	}
	if !CanTransition(current.State, t.To) {
		return nil, illegalTransition(string(current.State), string(t.To))
	}

	t.From = current.State
	t.At = s.Now().UTC()

	ok, err := s.Store.TransitionState(ctx, t)
	if err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("Failed to move order #%d to %s: %v", t.OrderID, t.To, err))
		return nil, storeFailure(err)
	}
	if !ok {
		latest, err := s.load(ctx, t.OrderID)
		if err != nil {
			return nil, err
		}
		s.Logger.Warn("ORDER", fmt.Sprintf("Order #%d moved to %s before %s could apply", t.OrderID, latest.State, t.To))
		return nil, stateConflict(string(latest.State))
	}

	updated := *current
	updated.State = t.To
	updated.UpdatedAt = t.At
	if t.TransferAccountLast5 != "" {
		updated.TransferAccountLast5 = t.TransferAccountLast5
	}
	if t.TransferTime != nil {
		updated.TransferTime = t.TransferTime
	}
	s.Logger.LogOrder("TRANSITION", t.OrderID, fmt.Sprintf("%s -> %s", t.From, t.To))

	s.emit(ctx, models.NewOrderEvent(models.OrderEventStateChanged, updated, t.From))
	return &updated, nil
}

func (s *OrderService) load(ctx context.Context, orderID int64) (*models.Order, error) {
	if orderID <= 0 {
		return nil, invalidInput("order id must be a positive number")
	}
	o, err := s.Store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if o == nil {
		return nil, notFound(orderID)
	}
	return o, nil
}

func (s *OrderService) view(ctx context.Context, o models.Order) (models.OrderView, error) {
	now := s.Now()
	overdue := s.Policy.Overdue(o, now)
	if overdue {
		applied, err := s.Policy.Apply(ctx, o, now)
		if err != nil {
			return models.OrderView{}, storeFailure(err)
		}
		o = applied
	}
	return models.OrderView{
		Order:                o,
		PaymentDeadline:      o.PaymentDeadline(),
		PaymentWindowSeconds: int64(models.PaymentWindow / time.Second),
		Overdue:              overdue,
	}, nil
}

// emit fans a lifecycle event out to Kafka and live subscribers. Neither may
// fail the operation that produced it.
func (s *OrderService) emit(ctx context.Context, ev models.OrderEvent) {
	if s.Notifier != nil {
		s.Notifier.NotifyOrderEvent(ev)
	}
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishOrderEvent(ctx, ev); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish %s for order #%d: %v", ev.Type, ev.OrderID, err))
	}
}

func validLast5(v string) bool {
	if len(v) == 0 || len(v) > 5 {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
