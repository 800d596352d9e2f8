// Package events publishes domain and mailbox state changes to RabbitMQ.
// Publishing is best-effort from the caller's perspective: callers log a
// failed publish and move on, the broker is not part of any write path.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

const (
	ExchangeDirect     = "crmhost-direct"
	ExchangeDeadLetter = "crmhost-dead-letter"

	QueueEmailReceived = "crmhost-email-received"
	QueueDomainStatus  = "crmhost-domain-status"

	RoutingKeyEmailReceived = "email-received"
	RoutingKeyDomainStatus  = "domain-status"
	RoutingKeyDeadLetter    = "dead-letter"

	defaultMessageTTL     = 240 * time.Hour
	defaultPublishRetries = 3
	defaultPublishTimeout = 5 * time.Second
)

type EmailReceivedEvent struct {
	OrganizationID string    `json:"organizationId"`
	EmailID        string    `json:"emailId"`
	MessageID      string    `json:"messageId"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type DomainStatusChangedEvent struct {
	OrganizationID string            `json:"organizationId"`
	DomainID       string            `json:"domainId"`
	Status         enum.DomainStatus `json:"status"`
	OccurredAt     time.Time         `json:"occurredAt"`
}

type RabbitMQPublisher struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	publishChannel  *amqp091.Channel
	publishMutex    sync.Mutex
	confirms        chan amqp091.Confirmation
	url             string
	log             logger.Logger
	closed          chan struct{}
}

func NewRabbitMQPublisher(rabbitmqURL string, log logger.Logger) (*RabbitMQPublisher, error) {
	publisher := &RabbitMQPublisher{
		url:    rabbitmqURL,
		log:    log,
		closed: make(chan struct{}),
	}
	if err := publisher.connect(); err != nil {
		return nil, err
	}
	return publisher, nil
}

func (r *RabbitMQPublisher) PublishEmailReceived(ctx context.Context, organizationID, emailID, messageID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishEmailReceived")
	defer span.Finish()
	tracing.TagOrganization(span, organizationID)
	tracing.TagEntity(span, emailID)

	event := EmailReceivedEvent{
		OrganizationID: organizationID,
		EmailID:        emailID,
		MessageID:      messageID,
		OccurredAt:     utils.Now(),
	}
	err := r.publishMessage(ctx, event, RoutingKeyEmailReceived)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *RabbitMQPublisher) PublishDomainStatusChanged(ctx context.Context, organizationID, domainID string, status enum.DomainStatus) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishDomainStatusChanged")
	defer span.Finish()
	tracing.TagOrganization(span, organizationID)
	tracing.TagEntity(span, domainID)
	span.LogKV("status", status.String())

	event := DomainStatusChangedEvent{
		OrganizationID: organizationID,
		DomainID:       domainID,
		Status:         status,
		OccurredAt:     utils.Now(),
	}
	err := r.publishMessage(ctx, event, RoutingKeyDomainStatus)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *RabbitMQPublisher) publishMessage(ctx context.Context, message any, routingKey string) error {
	for attempt := 1; attempt <= defaultPublishRetries; attempt++ {
		err := r.publishWithConfirm(ctx, message, routingKey)
		if err == nil {
			return nil
		}
		r.log.Warnf("publish attempt %d failed on %s: %v", attempt, routingKey, err)
		if attempt < defaultPublishRetries {
			time.Sleep(100 * time.Millisecond * time.Duration(attempt))
		}
	}
	return errors.Errorf("failed to publish on %s after %d attempts", routingKey, defaultPublishRetries)
}

func (r *RabbitMQPublisher) publishWithConfirm(ctx context.Context, message any, routingKey string) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.ensureChannel(); err != nil {
		return err
	}

	jsonBody, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	err = r.publishChannel.Publish(
		ExchangeDirect,
		routingKey,
		true,  // mandatory
		false, // immediate
		amqp091.Publishing{
			DeliveryMode: amqp091.Persistent,
			ContentType:  "application/json",
			Body:         jsonBody,
			Timestamp:    utils.Now(),
		})
	if err != nil {
		return errors.Wrap(err, "failed to publish event")
	}

	select {
	case confirm := <-r.confirms:
		if !confirm.Ack {
			return errors.New("event was not confirmed by broker")
		}
	case <-time.After(defaultPublishTimeout):
		return errors.New("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (r *RabbitMQPublisher) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	r.connection, err = amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "failed to connect to RabbitMQ")
	}

	if err := r.setupTopology(); err != nil {
		return errors.Wrap(err, "failed to set up exchanges and queues")
	}
	if err := r.setupPublishChannel(); err != nil {
		return errors.Wrap(err, "failed to set up publish channel")
	}

	go r.handleReconnection()
	return nil
}

func (r *RabbitMQPublisher) setupPublishChannel() error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "failed to open publish channel")
	}
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		return errors.Wrap(err, "failed to enable publisher confirms")
	}
	r.confirms = channel.NotifyPublish(make(chan amqp091.Confirmation, 1))
	r.publishChannel = channel
	return nil
}

func (r *RabbitMQPublisher) setupTopology() error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "failed to open setup channel")
	}
	defer channel.Close()

	if err := channel.ExchangeDeclare(ExchangeDeadLetter, "direct", true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "failed to declare dead letter exchange")
	}
	if err := channel.ExchangeDeclare(ExchangeDirect, "direct", true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "failed to declare direct exchange")
	}

	queues := map[string]string{
		QueueEmailReceived: RoutingKeyEmailReceived,
		QueueDomainStatus:  RoutingKeyDomainStatus,
	}
	for queue, routingKey := range queues {
		_, err := channel.QueueDeclare(queue, true, false, false, false, amqp091.Table{
			"x-message-ttl":             int32(defaultMessageTTL.Milliseconds()),
			"x-dead-letter-exchange":    ExchangeDeadLetter,
			"x-dead-letter-routing-key": RoutingKeyDeadLetter,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to declare queue %s", queue)
		}
		if err := channel.QueueBind(queue, routingKey, ExchangeDirect, false, nil); err != nil {
			return errors.Wrapf(err, "failed to bind queue %s", queue)
		}
	}

	return nil
}

func (r *RabbitMQPublisher) ensureChannel() error {
	if r.connection == nil || r.connection.IsClosed() {
		if err := r.connect(); err != nil {
			return err
		}
	}
	if r.publishChannel == nil || r.publishChannel.IsClosed() {
		if err := r.setupPublishChannel(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RabbitMQPublisher) handleReconnection() {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		notifyClose := r.connection.NotifyClose(make(chan *amqp091.Error))
		select {
		case <-r.closed:
			return
		case err := <-notifyClose:
			if err == nil {
				return
			}
			r.log.Warnf("RabbitMQ connection closed: %v, reconnecting", err)
		}

		for {
			if err := r.connect(); err == nil {
				r.log.Info("reconnected to RabbitMQ")
				break
			} else {
				r.log.Errorf("failed to reconnect to RabbitMQ: %v, retrying in %v", err, backoff)
			}
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
		backoff = time.Second
	}
}

func (r *RabbitMQPublisher) Close() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	close(r.closed)

	var err error
	if r.publishChannel != nil {
		if closeErr := r.publishChannel.Close(); closeErr != nil {
			r.log.Errorf("error closing publish channel: %v", closeErr)
			err = closeErr
		}
	}
	if r.connection != nil {
		if closeErr := r.connection.Close(); closeErr != nil {
			r.log.Errorf("error closing connection: %v", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}
	return err
}

var _ interfaces.EventPublisher = (*RabbitMQPublisher)(nil)
