package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authx"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue the mail worker consumes.
const DefaultQueue = "email_jobs"

// EmailJob is the JSON body published for each notification.
type EmailJob struct {
	ID        string                 `json:"id"`
	Kind      authx.NotificationKind `json:"kind"`
	AccountID string                 `json:"account_id"`
	To        string                 `json:"to"`
	Username  string                 `json:"username"`
	Code      string                 `json:"code,omitempty"`
	ResetURL  string                 `json:"reset_url,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// publisher is satisfied by *amqp.Channel.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes email jobs to a durable queue.
type AMQPNotifier struct {
	ch    publisher
	queue string
	now   func() time.Time
	close func() error
}

var _ authx.Notifier = (*AMQPNotifier)(nil)

// DialAMQP connects to url, declares queue as durable and returns a notifier that owns
// the connection.
func DialAMQP(url, queue string) (*AMQPNotifier, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", queue, err)
	}

	n := newAMQPNotifier(ch, queue)
	n.close = func() error {
		return errors.Join(ch.Close(), conn.Close())
	}
	return n, nil
}

func newAMQPNotifier(ch publisher, queue string) *AMQPNotifier {
	return &AMQPNotifier{ch: ch, queue: queue, now: time.Now}
}

// Notify publishes n as a persistent JSON message on the default exchange.
func (a *AMQPNotifier) Notify(ctx context.Context, n authx.Notification) error {
	job := EmailJob{
		ID:        uuid.NewString(),
		Kind:      n.Kind,
		AccountID: n.AccountID,
		To:        n.To,
		Username:  n.Username,
		Code:      n.Code,
		ResetURL:  n.ResetURL,
		CreatedAt: a.now().UTC(),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: encode job: %v", authx.ErrNotificationPermanent, err)
	}

	err = a.ch.PublishWithContext(ctx,
		"",      // exchange
		a.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.ID,
			Timestamp:    job.CreatedAt,
			Type:         string(n.Kind),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", n.Kind, err)
	}
	return nil
}

// Close releases the channel and connection opened by DialAMQP.
func (a *AMQPNotifier) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}
