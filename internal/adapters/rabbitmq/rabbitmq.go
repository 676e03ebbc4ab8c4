// Package rabbitmq implements spec §2's "Job runner" contract: a
// single-threaded worker pulling from a durable queue with at-least-once
// delivery. It backs two queues — settlement jobs (scheduled at
// challenge end_at) and webhook-ingestion retries (spec §4.3's "handler
// returns non-2xx so the processor retries" applies to the inbound HTTP
// call; this queue is for internal re-delivery when a settlement or
// webhook job's own 30-second outer timeout, spec §5, expires).
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// jobTimeout is the outer timeout spec §5 assigns to background jobs
// (settlement, webhook processing): on timeout the transaction rolls back
// and the job is re-enqueued.
const jobTimeout = 30 * time.Second

// Queue wraps one AMQP channel bound to a single durable queue.
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	name    string
}

// Dial connects to uri and declares the durable queue named queueName.
func Dial(uri, queueName string) (*Queue, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declaring queue %s: %w", queueName, err)
	}

	return &Queue{conn: conn, channel: ch, name: queueName}, nil
}

// Publish enqueues payload as a persistent message.
func (q *Queue) Publish(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling job payload: %w", err)
	}

	return q.channel.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Handler processes one job's body. Returning an error naks the delivery
// for requeue (at-least-once delivery, spec §2); returning nil acks it.
type Handler func(ctx context.Context, body []byte) error

// Consume starts a single-threaded worker pulling from the queue, matching
// spec §9's "webhook handlers and settlement jobs are ordinary procedures;
// they may be invoked from a worker pool" — here the pool has one worker
// per Queue, and concurrency comes from running multiple Queue instances,
// not from interleaving deliveries on one channel.
func (q *Queue) Consume(ctx context.Context, handler Handler) error {
	deliveries, err := q.channel.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("starting consumer on %s: %w", q.name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", q.name)
			}
			q.handleOne(ctx, handler, d)
		}
	}
}

func (q *Queue) handleOne(ctx context.Context, handler Handler, d amqp.Delivery) {
	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	if err := handler(jobCtx, d.Body); err != nil {
		_ = d.Nack(false, true) // requeue: at-least-once delivery carries safety via downstream idempotency
		return
	}
	_ = d.Ack(false)
}

// Close tears down the channel and connection.
func (q *Queue) Close() error {
	if err := q.channel.Close(); err != nil {
		return err
	}
	return q.conn.Close()
}
