package events

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

// ErrNotConnected is returned by Publish while the broker is unreachable and
// the next redial is not due yet.
var ErrNotConnected = errors.New("amqp: not connected")

// redialInterval spaces out reconnect attempts made from Publish.
const redialInterval = 5 * time.Second

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpConn interface {
	Channel() (amqpChannel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// connection adapts *amqp.Connection to amqpConn.
type connection struct {
	*amqp.Connection
}

func (c connection) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string) (amqpConn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return connection{conn}, nil
}

// AMQPPublisher publishes events to a durable topic exchange. When the
// broker drops the connection it is re-established lazily by the next
// Publish.
type AMQPPublisher struct {
	url      string
	exchange string
	logger   zerolog.Logger
	dial     func(url string) (amqpConn, error)
	interval time.Duration

	mu       sync.Mutex
	conn     amqpConn
	ch       amqpChannel
	nextDial time.Time
	closed   bool
}

// Dial connects to the broker, retrying a few times while it starts up, and
// declares the exchange.
func Dial(url, exchange string, logger zerolog.Logger) (*AMQPPublisher, error) {
	p := newPublisher(url, exchange, logger, dialAMQP)

	const attempts = 5
	var err error
	for i := 1; i <= attempts; i++ {
		p.mu.Lock()
		err = p.connectLocked()
		p.mu.Unlock()
		if err == nil {
			return p, nil
		}
		logger.Warn().Err(err).Int("attempt", i).Msg("amqp dial failed")
		if i < attempts {
			time.Sleep(time.Duration(i) * time.Second)
		}
	}
	return nil, err
}

func newPublisher(url, exchange string, logger zerolog.Logger, dial func(string) (amqpConn, error)) *AMQPPublisher {
	return &AMQPPublisher{
		url:      url,
		exchange: exchange,
		logger:   logger,
		dial:     dial,
		interval: redialInterval,
	}
}

// connectLocked dials, opens a channel, declares the exchange and starts
// watching the connection. p.mu must be held.
func (p *AMQPPublisher) connectLocked() error {
	conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	p.conn, p.ch = conn, ch
	p.watch(conn)
	return nil
}

func (p *AMQPPublisher) watch(conn amqpConn) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		amqpErr := <-closed
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.conn != conn {
			return
		}
		p.conn, p.ch = nil, nil
		if amqpErr != nil {
			p.logger.Warn().Str("reason", amqpErr.Reason).Int("code", amqpErr.Code).Msg("amqp connection lost")
		}
	}()
}

// Publish sends evt as persistent JSON with its type as routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	msg, err := message(evt)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return amqp.ErrClosed
	}
	if err := p.ensureLocked(); err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, evt.Type, false, false, msg)
	if errors.Is(err, amqp.ErrClosed) {
		// The close notification has not arrived yet; reconnect now.
		p.dropLocked()
		p.nextDial = time.Time{}
		if err = p.ensureLocked(); err != nil {
			return err
		}
		err = p.ch.PublishWithContext(ctx, p.exchange, evt.Type, false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

// ensureLocked reconnects when there is no open channel, at most once per
// interval. p.mu must be held.
func (p *AMQPPublisher) ensureLocked() error {
	if p.ch != nil {
		return nil
	}
	if time.Now().Before(p.nextDial) {
		return ErrNotConnected
	}
	if err := p.connectLocked(); err != nil {
		p.nextDial = time.Now().Add(p.interval)
		return err
	}
	p.logger.Info().Str("exchange", p.exchange).Msg("amqp reconnected")
	return nil
}

func (p *AMQPPublisher) dropLocked() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func message(evt Event) (amqp.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event %s: %w", evt.Type, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Timestamp:    evt.OccurredAt,
		Type:         evt.Type,
		Body:         body,
	}, nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.conn == nil {
		return nil
	}
	conn, ch := p.conn, p.ch
	p.conn, p.ch = nil, nil
	if err := ch.Close(); err != nil {
		conn.Close()
		return fmt.Errorf("close amqp channel: %w", err)
	}
	return conn.Close()
}
