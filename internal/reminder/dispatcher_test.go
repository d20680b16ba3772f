package reminder_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/reminder"
	"ms-enrollment/internal/telemetry"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
)

type triggerLog struct {
	mu      sync.Mutex
	ids     []int64
	origins []string
	tokens  []string
}

func (l *triggerLog) add(r *http.Request, id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
	l.origins = append(l.origins, r.Header.Get("Origin"))
	l.tokens = append(l.tokens, r.Header.Get(reminder.InternalTokenHeader))
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingRecorder) Incr(_ context.Context, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[name]++
}

func (c *countingRecorder) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

func (l *triggerLog) snapshot() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64(nil), l.ids...)
}

func TestDispatcher_DeliversScheduledJobs(t *testing.T) {
	got := &triggerLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			OrderID int64 `json:"orderId"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got.add(r, body.OrderID)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := reminder.NewDispatcher(reminder.DispatcherOptions{
		TriggerURL:    srv.URL + "/reminders/payment",
		Origin:        "https://academy.test",
		InternalToken: "service-token",
		Workers:       2,
		QueueSize:     8,
	}, resty.New(), logger.Discard())
	d.Start()

	assert.True(t, d.Schedule(5001))
	assert.True(t, d.Schedule(5002))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Shutdown(ctx)

	assert.ElementsMatch(t, []int64{5001, 5002}, got.snapshot())
	for _, o := range got.origins {
		assert.Equal(t, "https://academy.test", o)
	}
	for _, tok := range got.tokens {
		assert.Equal(t, "service-token", tok)
	}
}

func TestDispatcher_ScheduleNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	d := reminder.NewDispatcher(reminder.DispatcherOptions{TriggerURL: srv.URL, Workers: 1, QueueSize: 1}, resty.New(), logger.Discard())
	d.Start()

	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 10; i++ {
			d.Schedule(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Schedule blocked on a saturated queue")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Shutdown(ctx)
}

func TestDispatcher_RejectsAfterShutdown(t *testing.T) {
	d := reminder.NewDispatcher(reminder.DispatcherOptions{TriggerURL: "http://127.0.0.1:1"}, resty.New(), logger.Discard())
	d.Start()
	d.Shutdown(context.Background())

	assert.False(t, d.Schedule(1))
	// second shutdown is a no-op
	d.Shutdown(context.Background())
}

func TestDispatcher_TriggerFailureIsSwallowed(t *testing.T) {
	rec := &countingRecorder{}
	d := reminder.NewDispatcher(reminder.DispatcherOptions{TriggerURL: "http://127.0.0.1:1/reminders/payment", QueueSize: 2, Telemetry: rec}, resty.New().SetTimeout(time.Second), logger.Discard())
	d.Start()
	assert.True(t, d.Schedule(7))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Shutdown(ctx)

	assert.Equal(t, 1, rec.get(telemetry.ReminderTriggerFailed))
}

func TestDispatcher_CountsRejectedTriggers(t *testing.T) {
	statuses := []int{http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusOK}
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		status := statuses[0]
		statuses = statuses[1:]
		mu.Unlock()
		w.WriteHeader(status)
	}))
	defer srv.Close()

	rec := &countingRecorder{}
	d := reminder.NewDispatcher(reminder.DispatcherOptions{TriggerURL: srv.URL, Workers: 1, QueueSize: 4, Telemetry: rec}, resty.New(), logger.Discard())
	d.Start()
	for i := int64(1); i <= 3; i++ {
		assert.True(t, d.Schedule(i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Shutdown(ctx)

	assert.Equal(t, 2, rec.get(telemetry.ReminderTriggerFailed))
}
