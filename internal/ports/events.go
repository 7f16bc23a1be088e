package ports

import "context"

// EventPublisher fans domain events out to the message queue and the live
// updates hub. Publishing is best effort; engines log failures and move on.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event interface{}) error
}

// Event subjects.
const (
	SubjectSessionEvents = "session.events"
	SubjectPaymentEvents = "payment.events"
	SubjectTicketEvents  = "ticket.events"
	SubjectChargerEvents = "charger.events"
)
