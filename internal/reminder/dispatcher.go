package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/telemetry"

	"github.com/go-resty/resty/v2"
)

// InternalTokenHeader carries the dispatcher's credential on trigger calls.
const InternalTokenHeader = "X-Reminder-Token"

type DispatcherOptions struct {
	TriggerURL    string
	Origin        string
	InternalToken string
	Workers       int
	QueueSize     int
	Telemetry     telemetry.Recorder
}

// Dispatcher realizes the fire-and-forget reminder call made when an order
// is created. Schedule never blocks; a full queue drops the job with a
// warning. There is no completion guarantee: jobs still queued at shutdown
// are abandoned once the drain deadline passes.
type Dispatcher struct {
	opts   DispatcherOptions
	client *resty.Client
	logger *logger.Logger

	queue  chan int64
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewDispatcher(opts DispatcherOptions, client *resty.Client, log *logger.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Nop{}
	}
	return &Dispatcher{
		opts:   opts,
		client: client,
		logger: log,
		queue:  make(chan int64, opts.QueueSize),
	}
}

// Start launches the workers. They run until Shutdown.
func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Info("REMINDER", fmt.Sprintf("Dispatcher started with %d worker(s), queue size %d", d.opts.Workers, d.opts.QueueSize))
}

func (d *Dispatcher) Schedule(orderID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- orderID:
		return true
	default:
		d.logger.Warn("REMINDER", fmt.Sprintf("Queue full, dropping reminder for order #%d", orderID))
		return false
	}
}

// Shutdown stops accepting jobs and gives the workers until ctx expires to
// drain the queue. Whatever is left is abandoned.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("REMINDER", "Dispatcher drained")
	case <-ctx.Done():
		d.logger.Warn("REMINDER", fmt.Sprintf("Abandoning %d queued reminder(s) at shutdown", len(d.queue)))
	}
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for orderID := range d.queue {
		if ctx.Err() != nil {
			return
		}
		d.trigger(ctx, orderID)
	}
	d.logger.Debug("REMINDER", fmt.Sprintf("Worker %d stopped", id))
}

func (d *Dispatcher) trigger(ctx context.Context, orderID int64) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("REMINDER", fmt.Sprintf("Recovered panic triggering order #%d: %v", orderID, r))
		}
	}()

	start := time.Now()
	req := d.client.R().
		SetContext(ctx).
		SetHeader("Origin", d.opts.Origin).
		SetBody(map[string]int64{"orderId": orderID})
	if d.opts.InternalToken != "" {
		req.SetHeader(InternalTokenHeader, d.opts.InternalToken)
	}

	resp, err := req.Post(d.opts.TriggerURL)
	if err != nil {
		d.opts.Telemetry.Incr(context.WithoutCancel(ctx), telemetry.ReminderTriggerFailed)
		d.logger.Warn("REMINDER", fmt.Sprintf("Trigger for order #%d failed: %v", orderID, err))
		return
	}
	if resp.IsError() {
		d.opts.Telemetry.Incr(context.WithoutCancel(ctx), telemetry.ReminderTriggerFailed)
		d.logger.Warn("REMINDER", fmt.Sprintf("Trigger for order #%d rejected with %d: %s", orderID, resp.StatusCode(), resp.String()))
		return
	}
	d.logger.LogOrder("REMINDER", orderID, fmt.Sprintf("trigger answered %d in %s", resp.StatusCode(), time.Since(start).Round(time.Millisecond)))
}
