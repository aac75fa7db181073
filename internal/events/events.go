package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	kgo "github.com/segmentio/kafka-go"

	"github.com/unclebandit/mailqueue-backend/internal/model"
)

// JobEvent is emitted on every job status transition.
type JobEvent struct {
	JobID  int64           `json:"job_id"`
	Status model.JobStatus `json:"status"`
	Sent   int             `json:"sent"`
	Failed int             `json:"failed"`
	At     time.Time       `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev JobEvent) error
}

// Nop drops events.
type Nop struct{}

func (Nop) Publish(ctx context.Context, ev JobEvent) error { return nil }

// KafkaPublisher writes events keyed by job id so one job's events stay ordered.
type KafkaPublisher struct {
	writer  *kgo.Writer
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.Hash{},
		RequiredAcks: kgo.RequireOne,
	}
	return &KafkaPublisher{writer: w, timeout: 3 * time.Second}
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

func (p *KafkaPublisher) Publish(ctx context.Context, ev JobEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	// small timeout so a dispatcher tick doesn't hang if Kafka is down
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(strconv.FormatInt(ev.JobID, 10)),
		Value: b,
		Time:  ev.At,
	})
}
