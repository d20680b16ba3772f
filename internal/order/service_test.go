package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/models"
	"ms-enrollment/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock implementations
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateOrder(ctx context.Context, o *models.Order) error {
	args := m.Called(ctx, o)
	if args.Error(0) == nil {
		o.OrderID = 5001
	}
	return args.Error(0)
}

func (m *MockStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockStore) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockStore) TransitionState(ctx context.Context, t order.Transition) (bool, error) {
	args := m.Called(ctx, t)
	return args.Bool(0), args.Error(1)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) CourseByID(ctx context.Context, id string) (*models.Course, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Course), args.Error(1)
}

type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Schedule(orderID int64) bool {
	args := m.Called(orderID)
	return args.Bool(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderEvent(ctx context.Context, ev models.OrderEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type recordingNotifier struct {
	events []models.OrderEvent
}

func (r *recordingNotifier) NotifyOrderEvent(ev models.OrderEvent) {
	r.events = append(r.events, ev)
}

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newService() (*order.OrderService, *MockStore, *MockCatalog, *MockScheduler, *MockPublisher, *recordingNotifier) {
	store := new(MockStore)
	catalog := new(MockCatalog)
	scheduler := new(MockScheduler)
	publisher := new(MockPublisher)
	notifier := &recordingNotifier{}
	svc := order.NewOrderService(store, catalog, scheduler, publisher, notifier, logger.Discard())
	svc.Now = func() time.Time { return fixedNow }
	return svc, store, catalog, scheduler, publisher, notifier
}

func course() *models.Course {
	return &models.Course{ID: "pilates-101", Title: "Pilates", Subtitle: "Foundations", PriceGroup: 10000, PriceSingle: 18000}
}

func lifecycleCode(t *testing.T, err error) string {
	t.Helper()
	var le *order.LifecycleError
	require.True(t, errors.As(err, &le), "expected LifecycleError, got %v", err)
	return le.Code
}

func TestCreateOrder(t *testing.T) {
	svc, store, catalog, scheduler, publisher, notifier := newService()

	catalog.On("CourseByID", mock.Anything, "pilates-101").Return(course(), nil)
	store.On("CreateOrder", mock.Anything, mock.MatchedBy(func(o *models.Order) bool {
		return o.State == models.StateCreated && o.Total == 10000 && o.UserID == "user-1"
	})).Return(nil)
	scheduler.On("Schedule", int64(5001)).Return(true)
	publisher.On("PublishOrderEvent", mock.Anything, mock.MatchedBy(func(ev models.OrderEvent) bool {
		return ev.Type == models.OrderEventCreated && ev.OrderID == 5001
	})).Return(nil)

	o, err := svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{
		CourseID: "pilates-101",
		Variant:  models.VariantGroup,
		Total:    10000,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(5001), o.OrderID)
	assert.Equal(t, models.StateCreated, o.State)
	assert.Equal(t, fixedNow, o.CreatedAt)
	assert.Len(t, notifier.events, 1)
	store.AssertExpectations(t)
	scheduler.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestCreateOrderSucceedsWhenReminderAndKafkaFail(t *testing.T) {
	svc, store, catalog, scheduler, publisher, _ := newService()

	catalog.On("CourseByID", mock.Anything, "pilates-101").Return(course(), nil)
	store.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	scheduler.On("Schedule", int64(5001)).Return(false)
	publisher.On("PublishOrderEvent", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	o, err := svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{
		CourseID: "pilates-101",
		Variant:  models.VariantSingle,
		Total:    18000,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(18000), o.Total)
}

func TestCreateOrderValidation(t *testing.T) {
	tests := []struct {
		name string
		req  models.OrderRequest
	}{
		{"missing course", models.OrderRequest{Variant: models.VariantGroup, Total: 10000}},
		{"bad variant", models.OrderRequest{CourseID: "pilates-101", Variant: "vip", Total: 10000}},
		{"zero total", models.OrderRequest{CourseID: "pilates-101", Variant: models.VariantGroup}},
		{"price mismatch", models.OrderRequest{CourseID: "pilates-101", Variant: models.VariantGroup, Total: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, catalog, _, _, _ := newService()
			catalog.On("CourseByID", mock.Anything, "pilates-101").Return(course(), nil).Maybe()

			_, err := svc.CreateOrder(context.Background(), "user-1", tt.req)

			assert.Equal(t, order.CodeInvalidInput, lifecycleCode(t, err))
			store.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateOrderUnknownCourse(t *testing.T) {
	svc, _, catalog, _, _, _ := newService()
	catalog.On("CourseByID", mock.Anything, "ghost").Return(nil, nil)

	_, err := svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{CourseID: "ghost", Variant: models.VariantGroup, Total: 100})

	assert.Equal(t, order.CodeInvalidInput, lifecycleCode(t, err))
}

func TestCreateOrderStoreFailure(t *testing.T) {
	svc, store, catalog, scheduler, _, _ := newService()
	catalog.On("CourseByID", mock.Anything, "pilates-101").Return(course(), nil)
	store.On("CreateOrder", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	_, err := svc.CreateOrder(context.Background(), "user-1", models.OrderRequest{CourseID: "pilates-101", Variant: models.VariantGroup, Total: 10000})

	assert.Equal(t, order.CodeStoreFailure, lifecycleCode(t, err))
	scheduler.AssertNotCalled(t, "Schedule", mock.Anything)
}

func TestReportPayment(t *testing.T) {
	svc, store, _, _, publisher, notifier := newService()

	existing := &models.Order{OrderID: 7, UserID: "user-1", State: models.StateCreated, Total: 10000, CreatedAt: fixedNow.Add(-time.Hour)}
	store.On("GetOrderByID", mock.Anything, int64(7)).Return(existing, nil)
	store.On("TransitionState", mock.Anything, mock.MatchedBy(func(tr order.Transition) bool {
		return tr.From == models.StateCreated && tr.To == models.StatePayed &&
			tr.TransferAccountLast5 == "12345" && tr.TransferTime != nil
	})).Return(true, nil)
	publisher.On("PublishOrderEvent", mock.Anything, mock.Anything).Return(nil)

	o, err := svc.ReportPayment(context.Background(), "user-1", 7, models.PaymentReport{
		TransferAccountLast5: "12345",
		TransferTime:         "2026-03-02T17:30:00+08:00",
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatePayed, o.State)
	assert.Equal(t, "12345", o.TransferAccountLast5)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), *o.TransferTime)
	assert.Equal(t, int64(10000), o.Total)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.StateCreated, notifier.events[0].FromState)
}

func TestReportPaymentRejectsBadHints(t *testing.T) {
	svc, store, _, _, _, _ := newService()

	_, err := svc.ReportPayment(context.Background(), "user-1", 7, models.PaymentReport{TransferAccountLast5: "12a45"})
	assert.Equal(t, order.CodeInvalidInput, lifecycleCode(t, err))

	_, err = svc.ReportPayment(context.Background(), "user-1", 7, models.PaymentReport{TransferAccountLast5: "123456"})
	assert.Equal(t, order.CodeInvalidInput, lifecycleCode(t, err))

	_, err = svc.ReportPayment(context.Background(), "user-1", 7, models.PaymentReport{TransferTime: "yesterday"})
	assert.Equal(t, order.CodeInvalidInput, lifecycleCode(t, err))

	store.AssertNotCalled(t, "GetOrderByID", mock.Anything, mock.Anything)
}

func TestTransitionErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		svc, store, _, _, _, _ := newService()
		store.On("GetOrderByID", mock.Anything, int64(9)).Return(nil, nil)

		_, err := svc.ReportMessaged(context.Background(), "user-1", 9)
		assert.Equal(t, order.CodeOrderNotFound, lifecycleCode(t, err))
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})

	t.Run("other owner", func(t *testing.T) {
		svc, store, _, _, _, _ := newService()
		store.On("GetOrderByID", mock.Anything, int64(9)).Return(&models.Order{OrderID: 9, UserID: "user-2", State: models.StatePayed}, nil)

		_, err := svc.ReportMessaged(context.Background(), "user-1", 9)
		assert.Equal(t, order.CodeForbidden, lifecycleCode(t, err))
		store.AssertNotCalled(t, "TransitionState", mock.Anything, mock.Anything)
	})

	t.Run("skipping a state", func(t *testing.T) {
		svc, store, _, _, _, _ := newService()
		store.On("GetOrderByID", mock.Anything, int64(9)).Return(&models.Order{OrderID: 9, UserID: "user-1", State: models.StateCreated}, nil)

		_, err := svc.ReportMessaged(context.Background(), "user-1", 9)
		assert.Equal(t, order.CodeIllegalTransition, lifecycleCode(t, err))
		store.AssertNotCalled(t, "TransitionState", mock.Anything, mock.Anything)
	})

	t.Run("moving backward", func(t *testing.T) {
		svc, store, _, _, _, _ := newService()
		store.On("GetOrderByID", mock.Anything, int64(9)).Return(&models.Order{OrderID: 9, UserID: "user-1", State: models.StateMessaged}, nil)

		_, err := svc.ReportPayment(context.Background(), "user-1", 9, models.PaymentReport{})
		assert.Equal(t, order.CodeIllegalTransition, lifecycleCode(t, err))
	})

	t.Run("store failure", func(t *testing.T) {
		svc, store, _, _, _, _ := newService()
		store.On("GetOrderByID", mock.Anything, int64(9)).Return(&models.Order{OrderID: 9, UserID: "user-1", State: models.StatePayed}, nil)
		store.On("TransitionState", mock.Anything, mock.Anything).Return(false, errors.New("deadlock detected"))

		_, err := svc.ReportMessaged(context.Background(), "user-1", 9)
		le := order.AsLifecycleError(err)
		assert.Equal(t, order.CodeStoreFailure, le.Code)
		assert.Equal(t, 500, le.StatusCode)
	})
}

func TestConcurrentTransitionIsAConflict(t *testing.T) {
	svc, store, _, _, publisher, _ := newService()

	store.On("GetOrderByID", mock.Anything, int64(11)).
		Return(&models.Order{OrderID: 11, UserID: "user-1", State: models.StateCreated}, nil).Once()
	store.On("TransitionState", mock.Anything, mock.Anything).Return(false, nil)
	store.On("GetOrderByID", mock.Anything, int64(11)).
		Return(&models.Order{OrderID: 11, UserID: "user-1", State: models.StatePayed}, nil).Once()

	_, err := svc.ReportPayment(context.Background(), "user-1", 11, models.PaymentReport{})

	le := order.AsLifecycleError(err)
	assert.Equal(t, order.CodeStateConflict, le.Code)
	assert.Equal(t, 409, le.StatusCode)
	assert.Contains(t, le.Message, "PAYED")
	publisher.AssertNotCalled(t, "PublishOrderEvent", mock.Anything, mock.Anything)
}

func TestConfirmSkipsOwnership(t *testing.T) {
	svc, store, _, _, publisher, _ := newService()
	store.On("GetOrderByID", mock.Anything, int64(12)).Return(&models.Order{OrderID: 12, UserID: "buyer", State: models.StateMessaged}, nil)
	store.On("TransitionState", mock.Anything, mock.Anything).Return(true, nil)
	publisher.On("PublishOrderEvent", mock.Anything, mock.Anything).Return(nil)

	o, err := svc.Confirm(context.Background(), 12)

	require.NoError(t, err)
	assert.Equal(t, models.StateConfirmed, o.State)
}

func TestGetOrderView(t *testing.T) {
	svc, store, _, _, _, _ := newService()
	created := fixedNow.Add(-25 * time.Hour)
	store.On("GetOrderByID", mock.Anything, int64(5002)).Return(&models.Order{OrderID: 5002, UserID: "user-1", State: models.StateCreated, CreatedAt: created}, nil)

	view, err := svc.GetOrder(context.Background(), "user-1", 5002)

	require.NoError(t, err)
	assert.True(t, view.Overdue)
	assert.Equal(t, models.StateCreated, view.State, "display-only policy never cancels")
	assert.Equal(t, created.Add(models.PaymentWindow), view.PaymentDeadline)
	assert.Equal(t, int64(86400), view.PaymentWindowSeconds)
}

func TestListOrders(t *testing.T) {
	svc, store, _, _, _, _ := newService()
	store.On("ListOrdersByUser", mock.Anything, "user-1").Return([]models.Order{
		{OrderID: 1, UserID: "user-1", State: models.StatePayed, CreatedAt: fixedNow.Add(-48 * time.Hour)},
		{OrderID: 2, UserID: "user-1", State: models.StateCreated, CreatedAt: fixedNow.Add(-time.Hour)},
	}, nil)

	views, err := svc.ListOrders(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.False(t, views[0].Overdue, "paid orders are never overdue")
	assert.False(t, views[1].Overdue)
}
