package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanbanServer/backend/internal/protocol"
	"kanbanServer/backend/internal/semaphore"
)

var ErrClosed = errors.New("dispatcher closed")

// KafkaDispatcher buffers events in a bounded local queue and sends them from
// a pool of workers with bounded retry. Enqueue never waits on Kafka itself.
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string

	queue chan BoardEvent
	sem   *semaphore.Control

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type KafkaDispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, sem *semaphore.Control, opt KafkaDispatcherOptions) *KafkaDispatcher {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 1024
	}
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	d := &KafkaDispatcher{
		producer:    producer,
		topic:       topic,
		queue:       make(chan BoardEvent, opt.QueueSize),
		sem:         sem,
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	d.start()
	return d
}

// Publish wraps a realtime event and enqueues it.
func (d *KafkaDispatcher) Publish(ctx context.Context, boardID string, evt protocol.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return d.Enqueue(ctx, BoardEvent{
		EventID:    uuid.NewString(),
		EventType:  evt.EventName(),
		BoardID:    boardID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	})
}

// Enqueue waits for queue space until ctx is done. Delivery is best effort,
// so callers log and move on when it fails.
func (d *KafkaDispatcher) Enqueue(ctx context.Context, evt BoardEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for the queue to drain.
func (d *KafkaDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *KafkaDispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

func (d *KafkaDispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, evt BoardEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		err := d.sendLimited(evt)
		if err == nil {
			return
		}
		if attempt == d.maxRetry {
			log.WithError(err).WithFields(log.Fields{
				"board":  evt.BoardID,
				"event":  evt.EventType,
				"id":     evt.EventID,
				"worker": workerID,
			}).Error("kafka send failed, event dropped")
			return
		}
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if d.maxBackoff > 0 && backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

// sendLimited holds a limiter slot for the duration of one send.
func (d *KafkaDispatcher) sendLimited(evt BoardEvent) error {
	if d.sem == nil {
		return d.sendOnce(evt)
	}
	if err := d.sem.Acquire(context.Background()); err != nil {
		return err
	}
	defer func() {
		if err := d.sem.Release(); err != nil {
			log.WithError(err).WithField("board", evt.BoardID).Warn("kafka limiter release failed")
		}
	}()
	return d.sendOnce(evt)
}

func (d *KafkaDispatcher) sendOnce(evt BoardEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, _, err = d.producer.SendMessage(&sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.BoardID),
		Value: sarama.ByteEncoder(b),
	})
	return err
}
