package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher adapts a MessageQueue to ports.EventPublisher, marshalling
// events to JSON.
type Publisher struct {
	queue MessageQueue
}

func NewPublisher(queue MessageQueue) *Publisher {
	return &Publisher{queue: queue}
}

func (p *Publisher) Publish(ctx context.Context, subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.queue.Publish(subject, data)
}
