package queue

// MessageQueue is the broker-agnostic fan-out surface. NATS and RabbitMQ
// both implement it; the server picks one from configuration.
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	Close() error
}
