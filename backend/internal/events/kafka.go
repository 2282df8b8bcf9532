// Package events publishes committed board changes to Kafka for downstream
// consumers (audit, search indexing, notifications).
package events

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
)

// BoardEvent is the Kafka record value. Key is the board id so one board's
// events stay on one partition in order.
type BoardEvent struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	BoardID    string          `json:"boardId"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewSyncProducer dials brokers with settings suitable for the dispatcher.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	// SyncProducer requires Return.Successes
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	return sarama.NewSyncProducer(brokers, cfg)
}
