package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/portfolio-platform/internal/archive"
)

// RetryCountHeader counts how often a delivery went through the retry queue.
const RetryCountHeader = "x-retry-count"

const publishTimeout = 5 * time.Second

var errNotConnected = errors.New("rabbitmq: publisher is not connected")

// Topology names the queues behind one logical turn queue. Rejected
// deliveries on Main land in DLQ; messages parked on Retry expire back
// into Main.
type Topology struct {
	Main  string
	Retry string
	DLQ   string
}

func TopologyFor(queue string) Topology {
	return Topology{Main: queue, Retry: queue + ".retry", DLQ: queue + ".dlq"}
}

// Declare creates the queues. Both the server and the worker call it, so
// either may start first.
func (t Topology) Declare(ch *amqp.Channel) error {
	queues := []struct {
		name string
		args amqp.Table
	}{
		{t.DLQ, nil},
		{t.Retry, amqp.Table{"x-dead-letter-exchange": "", "x-dead-letter-routing-key": t.Main}},
		{t.Main, amqp.Table{"x-dead-letter-exchange": "", "x-dead-letter-routing-key": t.DLQ}},
	}
	for _, q := range queues {
		// durable, not auto-deleted, not exclusive
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return err
		}
	}
	return nil
}

// RetryCount reads RetryCountHeader; a missing or odd value counts as zero.
func RetryCount(h amqp.Table) int {
	switch v := h[RetryCountHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

type Publisher struct {
	mu   sync.Mutex // amqp channels are not safe for concurrent publishes
	conn *amqp.Connection
	ch   *amqp.Channel
	topo Topology
}

// NewPublisher dials url and declares the topology for queue.
func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	topo := TopologyFor(queue)
	if err := topo.Declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, topo: topo}, nil
}

// NewChannelPublisher publishes on a channel owned by the caller. Close is
// then a no-op.
func NewChannelPublisher(ch *amqp.Channel, queue string) *Publisher {
	return &Publisher{ch: ch, topo: TopologyFor(queue)}
}

func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	_ = p.ch.Close()
	return p.conn.Close()
}

// PublishTurn enqueues a finished turn for archiving.
func (p *Publisher) PublishTurn(ctx context.Context, msg archive.Message) error {
	if p == nil {
		return errNotConnected
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.publish(ctx, p.topo.Main, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// Retry parks d on the retry queue for delay, stamped with attempt.
func (p *Publisher) Retry(ctx context.Context, d amqp.Delivery, attempt int, delay time.Duration) error {
	if p == nil {
		return errNotConnected
	}
	return p.publish(ctx, p.topo.Retry, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Body:         d.Body,
		Headers:      amqp.Table{RetryCountHeader: int32(attempt)},
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		Timestamp:    time.Now(),
	})
}

func (p *Publisher) publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	if p.ch == nil {
		return errNotConnected
	}
	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	// default exchange, routing key = queue name
	return p.ch.PublishWithContext(cctx, "", queue, false, false, msg)
}
