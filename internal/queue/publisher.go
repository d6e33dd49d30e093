package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// DefaultQueue is the durable queue auth events are routed to.
const DefaultQueue = "auth.events"

var (
	// ErrPublisherBusy is returned when the buffer is full; the event is dropped.
	ErrPublisherBusy = errors.New("audit publisher buffer full")
	// ErrPublisherClosed is returned after Close.
	ErrPublisherClosed = errors.New("audit publisher closed")
)

// Sender delivers one encoded event to a queue.
type Sender interface {
	Send(ctx context.Context, queue string, body []byte) error
	Close() error
}

// Publisher buffers events and ships them from a single background
// goroutine, so Publish never waits on the broker.
type Publisher struct {
	sender  Sender
	queue   string
	timeout time.Duration
	log     zerolog.Logger

	events chan AuthEvent
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewPublisher starts the delivery goroutine. buffer <= 0 means 256.
func NewPublisher(sender Sender, queue string, buffer int, log zerolog.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if buffer <= 0 {
		buffer = 256
	}
	p := &Publisher{
		sender:  sender,
		queue:   queue,
		timeout: 5 * time.Second,
		log:     log.With().Str("component", "audit-publisher").Logger(),
		events:  make(chan AuthEvent, buffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues ev without blocking.
func (p *Publisher) Publish(_ context.Context, ev AuthEvent) error {
	select {
	case <-p.quit:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrPublisherBusy
	}
}

// Close flushes buffered events and closes the sender.
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.quit) })
	<-p.done
	return p.sender.Close()
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		select {
		case ev := <-p.events:
			p.deliver(ev)
		case <-p.quit:
			for {
				select {
				case ev := <-p.events:
					p.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) deliver(ev AuthEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal auth event failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.sender.Send(ctx, p.queue, body); err != nil {
		p.log.Warn().Err(err).Str("event", ev.Type).Msg("deliver auth event failed")
	}
}

// AMQPSender publishes persistent JSON messages on the default exchange.
// The connection is opened lazily and dropped after any failure so the
// next Send redials.
type AMQPSender struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPSender does not connect; the first Send does.
func NewAMQPSender(url string) *AMQPSender {
	return &AMQPSender{url: url}
}

// Send declares the queue (idempotent) and publishes body to it.
func (s *AMQPSender) Send(ctx context.Context, queue string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(); err != nil {
		return err
	}
	if _, err := s.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		s.reset()
		return fmt.Errorf("rabbitmq: queue declare: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := s.ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		s.reset()
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	return nil
}

// Close releases the connection, if any.
func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *AMQPSender) connect() error {
	if s.conn != nil && !s.conn.IsClosed() && s.ch != nil {
		return nil
	}
	s.reset()
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: channel open: %w", err)
	}
	s.conn, s.ch = conn, ch
	return nil
}

func (s *AMQPSender) reset() {
	if s.ch != nil {
		_ = s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
