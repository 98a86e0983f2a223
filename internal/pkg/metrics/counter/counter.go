package counter

import (
	"context"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const webhookEventsKey = "webhook:counters:events"

// Counter keeps webhook outcome counts in a Redis hash so every instance
// contributes to the same totals.
type Counter struct {
	client *redis.Client
}

func New(client *redis.Client) *Counter {
	return &Counter{client: client}
}

// AddWebhookEvent increments the counter for eventType/action.
func (c *Counter) AddWebhookEvent(ctx context.Context, eventType, action string) error {
	return c.client.HIncrBy(ctx, webhookEventsKey, field(eventType, action), 1).Err()
}

// WebhookEvents returns all counters keyed by "<event type>|<action>".
func (c *Counter) WebhookEvents(ctx context.Context) (map[string]int64, error) {
	data, err := c.client.HGetAll(ctx, webhookEventsKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

func field(eventType, action string) string {
	t := strings.TrimSpace(eventType)
	if t == "" {
		t = "unknown"
	}
	return t + "|" + action
}
