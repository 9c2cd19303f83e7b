// Package notifier publishes alert record changes to a Kafka topic for the
// notification/dashboard tier. Publishing is an optional side effect of a
// tick: failures are the caller's to log, never to roll back.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/PedroRgz/Episcopio/internal/alerts"
	"github.com/PedroRgz/Episcopio/internal/lifecycle"
	"github.com/PedroRgz/Episcopio/pkg/kafka"
)

// AlertChanged is the event published for every alert record transition.
type AlertChanged struct {
	SchemaVersion int            `json:"schema_version"`
	Action        string         `json:"action"` // created, retriggered, resolved
	EventTS       int64          `json:"event_ts"`
	Alert         *alerts.Record `json:"alerta"`
}

// Producer publishes alert changes to Kafka.
type Producer struct {
	writer *kafkago.Writer
	topic  string
}

// NewProducer creates a Kafka producer for the alert changes topic.
func NewProducer(brokers, topic string) (*Producer, error) {
	if err := kafka.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}

	brokerList := kafka.ParseBrokers(brokers)

	slog.Info("Initializing alert change producer",
		"brokers", brokerList,
		"topic", topic,
	)

	return &Producer{
		writer: kafka.NewWriter(brokerList, topic),
		topic:  topic,
	}, nil
}

// Publish publishes one alert record change. Messages are keyed by the
// lifecycle key so all changes for a (rule, entity) pair stay ordered on one
// partition.
func (p *Producer) Publish(ctx context.Context, change lifecycle.Change) error {
	if change.Record == nil {
		return nil
	}

	event := AlertChanged{
		SchemaVersion: 1,
		Action:        change.Action.String(),
		EventTS:       time.Now().UTC().Unix(),
		Alert:         change.Record,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert change event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(change.Record.RuleID + "|" + change.Record.EntityCode),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish alert change to %s: %w", p.topic, err)
	}

	slog.Debug("Published alert change",
		"alert_id", change.Record.ID,
		"action", event.Action,
		"topic", p.topic,
	)
	return nil
}

// Close closes the underlying Kafka writer.
func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
