package notify_test

import (
	"context"
	"sync"
	"time"

	"ms-enrollment/internal/config"
	"ms-enrollment/internal/mailer"
	"ms-enrollment/internal/messaging"
	"ms-enrollment/internal/models"
	"ms-enrollment/internal/notify"

	"github.com/stretchr/testify/mock"
)

var site = config.SiteConfig{BaseURL: "https://academy.test", PaymentPath: "/orders/%d/payment", Timezone: "UTC"}

var createdAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func emailProfile() models.Profile {
	return models.Profile{UserID: "user-1", StudentID: 42, FullName: "Lin Mei", AuthProvider: models.AuthProviderEmail}
}

func pushProfile() models.Profile {
	return models.Profile{UserID: "user-2", StudentID: 43, FullName: "Chen Wei", AuthProvider: models.AuthProviderPush, PushChannelID: "U-chen"}
}

func dispatchFor(p models.Profile) notify.Dispatch {
	o := models.Order{OrderID: 5001, UserID: p.UserID, CourseID: "pilates-101", CourseVariant: models.VariantGroup, Total: 10000, State: models.StateCreated, CreatedAt: createdAt}
	c := models.Course{ID: "pilates-101", Title: "Pilates", Subtitle: "Foundations", PriceGroup: 10000}
	return notify.Dispatch{
		ID:       "test-dispatch",
		Order:    o,
		Profile:  p,
		Email:    "mei@example.com",
		Course:   c,
		Reminder: notify.BuildReminder(o, p, c, site),
	}
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg mailer.Message) (*mailer.Result, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailer.Result), args.Error(1)
}

type MockPlatform struct {
	mock.Mock
}

func (m *MockPlatform) CheckRelationship(ctx context.Context, to string) (bool, error) {
	args := m.Called(ctx, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockPlatform) Push(ctx context.Context, to string, messages ...messaging.Message) error {
	args := m.Called(ctx, to, messages)
	return args.Error(0)
}

// countingRecorder is a telemetry.Recorder that remembers increments.
type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecorder() *countingRecorder {
	return &countingRecorder{counts: map[string]int{}}
}

func (r *countingRecorder) Incr(_ context.Context, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name]++
}

func (r *countingRecorder) get(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}
