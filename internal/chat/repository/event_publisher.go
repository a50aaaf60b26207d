package repository

import (
	"context"
	"encoding/json"
	"time"

	"quickchat/internal/chat/domain"
	"quickchat/pkg/database"

	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
)

// EventPublisher push activity records to a broker
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.StreamEvent) error
	Close() error
}

// KafkaWriter the part of *kafka.Writer used by the publisher
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	writer KafkaWriter
}

// NewKafkaPublisher publish events keyed by conversation
func NewKafkaPublisher(w KafkaWriter) EventPublisher {
	return &kafkaPublisher{writer: w}
}

func (p *kafkaPublisher) Publish(ctx context.Context, ev domain.StreamEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Key()),
		Value: body,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

type rabbitPublisher struct {
	repo  database.RabbitRepo
	queue string
}

// NewRabbitPublisher publish events to queue through the default exchange
func NewRabbitPublisher(repo database.RabbitRepo, queue string) EventPublisher {
	return &rabbitPublisher{repo: repo, queue: queue}
}

func (p *rabbitPublisher) Publish(_ context.Context, ev domain.StreamEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.repo.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.At,
		Type:         string(ev.Type),
		Body:         body,
	})
}

func (p *rabbitPublisher) Close() error {
	if ch := p.repo.GetRabbit(); ch != nil {
		return ch.Close()
	}
	return nil
}

type nopPublisher struct{}

// NewNopPublisher drop every event, used when no broker is configured
func NewNopPublisher() EventPublisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, domain.StreamEvent) error { return nil }
func (nopPublisher) Close() error                                      { return nil }

// NewStreamEvent fill the common fields of an activity record
func NewStreamEvent(t domain.StreamEventType, ids []string, sender, receiver string) domain.StreamEvent {
	return domain.StreamEvent{
		Type:       t,
		MessageIDs: ids,
		Sender:     sender,
		Receiver:   receiver,
		At:         time.Now().UTC(),
	}
}
