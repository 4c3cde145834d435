package queue

import (
	"context"
	"fmt"
)

// Message is one delivery from the managed queue. Ack confirms processing;
// Nack returns the message for redelivery.
type Message interface {
	Data() []byte
	Attribute(key string) string
	Ack()
	Nack()
}

// Handler processes one delivered message. The queue runtime may invoke it
// concurrently; the handler owns the ack/nack decision.
type Handler func(ctx context.Context, msg Message)

// Subscriber delivers messages from every tracked topic to a handler.
type Subscriber interface {
	Run(ctx context.Context, handler Handler) error
}

// Address builds the webhook destination for a queue topic, in the form the
// upstream registration API expects: pubsub://<project>:<topic>.
func Address(project, topic string) string {
	return fmt.Sprintf("pubsub://%s:%s", project, topic)
}
