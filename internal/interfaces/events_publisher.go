package interfaces

// EventPublisher emits domain events to the message broker after a
// settlement's database transaction commits.
type EventPublisher interface {
	Publish(topic string, event any) error
}
