package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	domoutbox "github.com/Zhima-Mochi/paylink/internal/domain/outbox"
	"github.com/Zhima-Mochi/paylink/internal/observability"
	"github.com/Zhima-Mochi/paylink/internal/observability/logctx"
)

const peerKafka = "kafka"

// KafkaPublisher writes each event as JSON to the topic <prefix><event name>,
// keyed by the aggregate id when the event provides one.
type KafkaPublisher struct {
	producer    sarama.SyncProducer
	topicPrefix string
	log         observability.Logger
	requests    observability.Counter
	latency     observability.Histogram
	now         func() time.Time
}

// NewKafkaConfig returns the producer settings used in production: all in-sync
// replicas acknowledge, successes are reported back to the sync producer.
func NewKafkaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_8_0_0
	return cfg
}

// DialKafka connects a SyncProducer to brokers.
func DialKafka(brokers []string, clientID string) (sarama.SyncProducer, error) {
	p, err := sarama.NewSyncProducer(brokers, NewKafkaConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return p, nil
}

func NewKafkaPublisher(producer sarama.SyncProducer, topicPrefix string, tel observability.Observability) *KafkaPublisher {
	if tel == nil {
		tel = observability.Nop()
	}
	return &KafkaPublisher{
		producer:    producer,
		topicPrefix: topicPrefix,
		log:         tel.Logger().With(observability.F("component", "kafka_publisher")),
		requests:    tel.Metrics().Counter(observability.MExternalRequests),
		latency:     tel.Metrics().Histogram(observability.MExternalRequestDuration),
		now:         time.Now,
	}
}

// Topic maps an event name to its Kafka topic.
func (p *KafkaPublisher) Topic(eventName string) string {
	return p.topicPrefix + strings.ReplaceAll(eventName, "/", ".")
}

func (p *KafkaPublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	name := e.EventName()
	logger := logctx.FromOr(ctx, p.log).With(observability.F("event", name))

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.Topic(name),
		Value:     sarama.ByteEncoder(data),
		Timestamp: p.now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_name"), Value: []byte(name)},
		},
	}
	if k, ok := e.(domoutbox.Keyed); ok && k.EventKey() != "" {
		msg.Key = sarama.StringEncoder(k.EventKey())
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.requests.Add(1,
		observability.L("peer", peerKafka),
		observability.L("endpoint", msg.Topic),
		observability.L("outcome", outcome),
	)
	p.latency.Observe(time.Since(start).Seconds(),
		observability.L("peer", peerKafka),
		observability.L("endpoint", msg.Topic),
	)

	if err != nil {
		logger.Warn("kafka_publish_failed", observability.F("topic", msg.Topic), observability.F("error", err))
		return fmt.Errorf("publish %s: %w", name, err)
	}
	logger.Debug("kafka_published",
		observability.F("topic", msg.Topic),
		observability.F("partition", partition),
		observability.F("offset", offset),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
