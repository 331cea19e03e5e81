package mailer

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue publishes EmailJobs to a durable RabbitMQ queue.
type Queue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	Name string
}

// Dial opens a connection and channel and declares the durable queue.
func Dial(url, queue string) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Queue{conn: conn, ch: ch, Name: queue}, nil
}

func (q *Queue) Close() {
	if q == nil {
		return
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		_ = q.conn.Close()
	}
}

// Enqueue publishes a persistent JSON message on the default exchange.
func (q *Queue) Enqueue(ctx context.Context, job EmailJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.ch.PublishWithContext(ctx, "", q.Name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         b,
	})
}

// Consume starts a manual-ack consumer with the given prefetch.
func (q *Queue) Consume(prefetch int) (<-chan amqp.Delivery, error) {
	if err := q.ch.Qos(prefetch, 0, false); err != nil {
		return nil, err
	}
	return q.ch.Consume(q.Name, "", false, false, false, false, nil)
}
