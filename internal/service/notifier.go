package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/pkg/logger"
	"go.uber.org/zap"
)

// Notifier delivers booking and show notifications to downstream consumers
type Notifier interface {
	// BookingConfirmed is sent after a booking commits as success
	BookingConfirmed(ctx context.Context, event *domain.BookingConfirmedEvent) error

	// ShowUpdated is sent to the attendees of a changed show
	ShowUpdated(ctx context.Context, event *domain.ShowUpdatedEvent) error

	// Close releases the underlying transport
	Close() error
}

// JSONProducer publishes a JSON value to a Kafka topic
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error
	Close()
}

// KafkaNotifier publishes notifications to a Kafka topic keyed by the aggregate id
type KafkaNotifier struct {
	producer    JSONProducer
	topic       string
	serviceName string
}

// NewKafkaNotifier creates a Kafka notifier
func NewKafkaNotifier(producer JSONProducer, topic, serviceName string) (*KafkaNotifier, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if topic == "" {
		topic = "showtime-notifications"
	}
	return &KafkaNotifier{producer: producer, topic: topic, serviceName: serviceName}, nil
}

// BookingConfirmed implements Notifier
func (n *KafkaNotifier) BookingConfirmed(ctx context.Context, event *domain.BookingConfirmedEvent) error {
	return n.publish(ctx, event.EventType, event.BookingID, event)
}

// ShowUpdated implements Notifier
func (n *KafkaNotifier) ShowUpdated(ctx context.Context, event *domain.ShowUpdatedEvent) error {
	return n.publish(ctx, event.EventType, event.ShowID, event)
}

func (n *KafkaNotifier) publish(ctx context.Context, eventType, key string, value interface{}) error {
	headers := map[string]string{
		"event_type":   eventType,
		"source":       n.serviceName,
		"content_type": "application/json",
	}
	if err := n.producer.ProduceJSON(ctx, n.topic, key, value, headers); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

// Close implements Notifier
func (n *KafkaNotifier) Close() error {
	n.producer.Close()
	return nil
}

// QueuePublisher publishes a typed JSON message to a queue
type QueuePublisher interface {
	PublishJSON(ctx context.Context, messageType string, value interface{}) error
	Close() error
}

// RabbitMQNotifier publishes notifications to a durable RabbitMQ queue
type RabbitMQNotifier struct {
	publisher QueuePublisher
}

// NewRabbitMQNotifier creates a RabbitMQ notifier
func NewRabbitMQNotifier(publisher QueuePublisher) (*RabbitMQNotifier, error) {
	if publisher == nil {
		return nil, fmt.Errorf("rabbitmq publisher is required")
	}
	return &RabbitMQNotifier{publisher: publisher}, nil
}

// BookingConfirmed implements Notifier
func (n *RabbitMQNotifier) BookingConfirmed(ctx context.Context, event *domain.BookingConfirmedEvent) error {
	if err := n.publisher.PublishJSON(ctx, event.EventType, event); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.EventType, err)
	}
	return nil
}

// ShowUpdated implements Notifier
func (n *RabbitMQNotifier) ShowUpdated(ctx context.Context, event *domain.ShowUpdatedEvent) error {
	if err := n.publisher.PublishJSON(ctx, event.EventType, event); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.EventType, err)
	}
	return nil
}

// Close implements Notifier
func (n *RabbitMQNotifier) Close() error {
	return n.publisher.Close()
}

// NoOpNotifier discards notifications
type NoOpNotifier struct{}

// NewNoOpNotifier creates a notifier that does nothing
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

func (n *NoOpNotifier) BookingConfirmed(ctx context.Context, event *domain.BookingConfirmedEvent) error {
	return nil
}

func (n *NoOpNotifier) ShowUpdated(ctx context.Context, event *domain.ShowUpdatedEvent) error {
	return nil
}

func (n *NoOpNotifier) Close() error {
	return nil
}

// ErrNotifierClosed is returned once AsyncNotifier has been closed
var ErrNotifierClosed = errors.New("notifier closed")

// AsyncNotifier hands notifications to a background goroutine so callers never
// wait on the transport. Each delivery runs on a context detached from the
// caller's cancellation and bounded by timeout. Failures are logged only.
type AsyncNotifier struct {
	next    Notifier
	timeout time.Duration
	log     *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncNotifier wraps next. A non-positive timeout defaults to 5s.
func NewAsyncNotifier(next Notifier, timeout time.Duration) *AsyncNotifier {
	if next == nil {
		next = NewNoOpNotifier()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncNotifier{
		next:    next,
		timeout: timeout,
		log:     logger.Get().Named("notifier"),
	}
}

// BookingConfirmed implements Notifier
func (n *AsyncNotifier) BookingConfirmed(ctx context.Context, event *domain.BookingConfirmedEvent) error {
	return n.dispatch(ctx, event.EventType, func(ctx context.Context) error {
		return n.next.BookingConfirmed(ctx, event)
	})
}

// ShowUpdated implements Notifier
func (n *AsyncNotifier) ShowUpdated(ctx context.Context, event *domain.ShowUpdatedEvent) error {
	return n.dispatch(ctx, event.EventType, func(ctx context.Context) error {
		return n.next.ShowUpdated(ctx, event)
	})
}

func (n *AsyncNotifier) dispatch(ctx context.Context, eventType string, send func(ctx context.Context) error) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNotifierClosed
	}
	n.wg.Add(1)
	n.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := context.WithTimeout(detached, n.timeout)
		defer cancel()

		if err := send(sendCtx); err != nil {
			n.log.Warn("failed to deliver notification",
				zap.String("event_type", eventType),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Wait blocks until in-flight deliveries finish
func (n *AsyncNotifier) Wait() {
	n.wg.Wait()
}

// Close stops accepting notifications, drains in-flight ones and closes the transport
func (n *AsyncNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	n.wg.Wait()
	return n.next.Close()
}
