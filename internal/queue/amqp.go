// internal/queue/amqp.go
package queue

import (
	"encoding/json"

	"github.com/streadway/amqp"
)

// AMQPQueue publishes and consumes dispatch jobs on a durable RabbitMQ
// queue.
type AMQPQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewAMQPQueue(url, queueName string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPQueue{conn: conn, ch: ch, queue: queueName}, nil
}

func (q *AMQPQueue) PublishDispatchJob(id string) error {
	body, err := json.Marshal(DispatchJob{ScheduledMessageID: id})
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		q.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Consume registers a consumer with manual acks.
func (q *AMQPQueue) Consume() (<-chan amqp.Delivery, error) {
	return q.ch.Consume(q.queue, "", false, false, false, false, nil)
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var _ JobPublisher = (*AMQPQueue)(nil)
