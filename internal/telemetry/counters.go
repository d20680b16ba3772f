package telemetry

import (
	"context"
	"fmt"
	"strconv"

	"ms-enrollment/internal/logger"

	"github.com/go-redis/redis/v8"
)

const countersKey = "enrollment:telemetry:counters"

// Counter names recorded by the notification path.
const (
	ReminderDispatched    = "reminder.dispatched"
	ReminderRejected      = "reminder.rejected"
	ReminderTriggerFailed = "reminder.trigger_failed"
	EmailSent             = "email.sent"
	EmailFailed           = "email.failed"
	EmailSkipped          = "email.skipped"
	PushSent              = "push.sent"
	PushFailed            = "push.failed"
	PushNotFriend         = "push.not_friend"
	PushRetry             = "push.retry"
	AdminFailed           = "admin.failed"
)

type Recorder interface {
	Incr(ctx context.Context, name string)
}

// Counters keeps monotonically increasing counters in a Redis hash so every
// replica contributes to the same totals.
type Counters struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewCounters(client *redis.Client, log *logger.Logger) *Counters {
	return &Counters{Client: client, Logger: log}
}

// Incr never fails the caller; a lost increment is only logged.
func (c *Counters) Incr(ctx context.Context, name string) {
	if c == nil || c.Client == nil {
		return
	}
	if err := c.Client.HIncrBy(ctx, countersKey, name, 1).Err(); err != nil {
		c.Logger.Warn("TELEMETRY", fmt.Sprintf("Failed to increment %s: %v", name, err))
	}
}

func (c *Counters) Snapshot(ctx context.Context) (map[string]int64, error) {
	raw, err := c.Client.HGetAll(ctx, countersKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Nop discards everything.
type Nop struct{}

func (Nop) Incr(context.Context, string) {}
