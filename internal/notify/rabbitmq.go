package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/safar/fashion-store/internal/metrics"
)

const attemptHeader = "x-attempt"

type RabbitMQSettings struct {
	Exchange        string
	Queue           string
	DeadLetterQueue string
}

func (s RabbitMQSettings) deadLetterExchange() string {
	return s.DeadLetterQueue + "_exchange"
}

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     RabbitMQSettings

	mu sync.Mutex
}

func NewRabbitMQ(url string, cfg RabbitMQSettings) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return &RabbitMQ{conn: conn, channel: ch, cfg: cfg}, nil
}

// SetupQueues declares the task exchange and queue plus a dead-letter
// exchange and queue for tasks that exhausted their retries.
func (r *RabbitMQ) SetupQueues() error {
	if err := r.channel.ExchangeDeclare(
		r.cfg.deadLetterExchange(),
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(
		r.cfg.DeadLetterQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-queue-type": "classic"},
	); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}

	if err := r.channel.QueueBind(r.cfg.DeadLetterQueue, r.cfg.DeadLetterQueue, r.cfg.deadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	if err := r.channel.ExchangeDeclare(r.cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare task exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(
		r.cfg.Queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    r.cfg.deadLetterExchange(),
			"x-dead-letter-routing-key": r.cfg.DeadLetterQueue,
		},
	); err != nil {
		return fmt.Errorf("declare task queue: %w", err)
	}

	if err := r.channel.QueueBind(r.cfg.Queue, "", r.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind task queue: %w", err)
	}

	return nil
}

func (r *RabbitMQ) Enqueue(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		MessageId:    task.ID,
		Type:         task.Type,
		Body:         body,
		Headers:      amqp.Table{attemptHeader: int32(task.Attempt)},
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.channel.PublishWithContext(ctx, r.cfg.Exchange, "", false, false, msg); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Consume handles deliveries until ctx is cancelled or the channel closes.
// A failed task is republished with its attempt bumped after a backoff; once
// the policy gives up it is rejected into the dead-letter queue.
func (r *RabbitMQ) Consume(ctx context.Context, handler Handler, policy RetryPolicy) error {
	msgs, err := r.channel.Consume(
		r.cfg.Queue,
		"fashion-store", // consumer tag
		false,           // auto-ack
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.process(ctx, msg, handler, policy)
		}
	}
}

func (r *RabbitMQ) process(ctx context.Context, msg amqp.Delivery, handler Handler, policy RetryPolicy) {
	var task Task
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		log.Printf("notify: invalid task message %s: %v", msg.MessageId, err)
		msg.Nack(false, false)
		return
	}

	err := safeHandle(ctx, handler, task)
	if err == nil {
		metrics.RecordTask(task.Type, "done")
		msg.Ack(false)
		return
	}

	if !policy.ShouldRetry(task.Attempt) {
		metrics.RecordTask(task.Type, "dead")
		log.Printf("notify: task %s (%s) dead-lettered after %d attempts: %v", task.ID, task.Type, task.Attempt+1, err)
		msg.Nack(false, false)
		return
	}

	log.Printf("notify: task %s (%s) attempt %d failed, retrying: %v", task.ID, task.Type, task.Attempt+1, err)

	select {
	case <-time.After(policy.Delay(task.Attempt)):
	case <-ctx.Done():
		msg.Nack(false, true)
		return
	}

	task.Attempt++
	if err := r.Enqueue(ctx, task); err != nil {
		log.Printf("notify: republish task %s: %v", task.ID, err)
		msg.Nack(false, true)
		return
	}
	metrics.RecordTask(task.Type, "retried")
	msg.Ack(false)
}

func (r *RabbitMQ) Close() {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}
