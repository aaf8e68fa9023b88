package publisher

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes every message to one topic, keyed by the dotted
// track subject so a track's updates stay on one partition.
type KafkaPublisher struct {
	w           *kafka.Writer
	logSubjects bool
	metrics     PublisherMetrics
}

func NewKafkaPublisher(brokers []string, topic, clientID string, logSubjects bool, m PublisherMetrics) *KafkaPublisher {
	p := &KafkaPublisher{logSubjects: logSubjects, metrics: m}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Transport:    &kafka.Transport{ClientID: clientID},
		Completion:   p.completed,
	}
	if m != nil {
		m.SetConnected(true)
	}
	return p
}

func (p *KafkaPublisher) completed(msgs []kafka.Message, err error) {
	if err != nil {
		log.Printf("kafka write error (%d messages): %v", len(msgs), err)
	}
	if p.metrics == nil {
		return
	}
	for range msgs {
		if err != nil {
			p.metrics.PublishErrInc()
		} else {
			p.metrics.PublishedInc()
		}
	}
}

func (p *KafkaPublisher) Close() {
	if err := p.w.Close(); err != nil {
		log.Printf("kafka close: %v", err)
	}
	if p.metrics != nil {
		p.metrics.SetConnected(false)
	}
}

// Publish enqueues msg; delivery outcome is reported asynchronously.
func (p *KafkaPublisher) Publish(topic Topic, msg TrackMessage) error {
	key := join(topic, ".")
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("kafka publish key=%s action=%s", key, msg.Action)
	}
	start := time.Now()
	err = p.w.WriteMessages(context.Background(), kafka.Message{Key: []byte(key), Value: b})
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.PublishErrInc()
		}
	}
	return err
}
