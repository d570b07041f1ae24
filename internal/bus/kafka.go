package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/lusochat/smart-search/internal/pkg/errors"
	"github.com/lusochat/smart-search/internal/pkg/logger"
)

// KafkaBus is a Kafka-based event bus. Every replica of the server joins the
// same consumer group, so each event is handled once per group.
type KafkaBus struct {
	config   KafkaConfig
	producer sarama.SyncProducer
	consumer sarama.ConsumerGroup
	client   sarama.Client
	log      *logger.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool

	// Consumer coordination. One loop consumes every subscribed topic;
	// sessionCancel ends the current session when the topic set grows.
	consumerWg     sync.WaitGroup
	consumerCtx    context.Context
	consumerCancel context.CancelFunc
	consuming      bool
	sessionCancel  context.CancelFunc
}

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers       []string // Kafka broker addresses
	ConsumerGroup string   // Consumer group ID
	ClientID      string   // Client identifier
	Version       string   // Kafka version (e.g., "2.8.0")
}

// withDefaults validates cfg and fills in optional fields.
func (cfg KafkaConfig) withDefaults() (KafkaConfig, error) {
	if len(cfg.Brokers) == 0 {
		return cfg, errors.New(errors.CodeValidation, "kafka brokers cannot be empty")
	}
	if cfg.ConsumerGroup == "" {
		return cfg, errors.New(errors.CodeValidation, "kafka consumer group cannot be empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "smart-search-bus"
	}
	if cfg.Version == "" {
		cfg.Version = "2.8.0"
	}
	return cfg, nil
}

// saramaConfig builds the client configuration. Producer acks are relaxed
// to the leader: events are telemetry and the filter never waits on them.
func (cfg KafkaConfig) saramaConfig() (*sarama.Config, error) {
	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid kafka version", err)
	}

	sc := sarama.NewConfig()
	sc.Version = version
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 3
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true
	sc.Net.DialTimeout = 10 * time.Second
	sc.Net.ReadTimeout = 10 * time.Second
	sc.Net.WriteTimeout = 10 * time.Second
	return sc, nil
}

// NewKafkaBus connects to the brokers and creates a producer and a consumer
// group.
func NewKafkaBus(cfg KafkaConfig, log *logger.Logger) (*KafkaBus, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	sc, err := cfg.saramaConfig()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}

	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka client", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka producer", err)
	}

	consumer, err := sarama.NewConsumerGroupFromClient(cfg.ConsumerGroup, client)
	if err != nil {
		producer.Close()
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka consumer group", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaBus{
		config:         cfg,
		producer:       producer,
		consumer:       consumer,
		client:         client,
		log:            log.WithComponent("kafka-bus"),
		handlers:       make(map[string][]Handler),
		consumerCtx:    ctx,
		consumerCancel: cancel,
	}, nil
}

// Publish publishes an event to a Kafka topic, keyed by correlation ID so
// events of one request land on the same partition.
func (b *KafkaBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	msg, err := encodeMessage(topic, event)
	if err != nil {
		return err
	}

	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return errors.BusError("failed to publish to kafka", err)
	}

	return nil
}

// encodeMessage serializes an event into a producer message.
func encodeMessage(topic string, event Event) (*sarama.ProducerMessage, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "failed to marshal event", err)
	}

	key := event.CorrelationID
	if key == "" {
		key = event.ID
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}
	if event.CorrelationID != "" {
		msg.Headers = []sarama.RecordHeader{
			{Key: []byte("correlation_id"), Value: []byte(event.CorrelationID)},
		}
	}
	return msg, nil
}

// Subscribe registers a handler for events on a Kafka topic. The first
// subscription starts the consumer loop; a new topic makes the loop rejoin
// the group with the larger topic set.
func (b *KafkaBus) Subscribe(_ context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	isNewTopic := len(b.handlers[topic]) == 0
	b.handlers[topic] = append(b.handlers[topic], handler)
	if !isNewTopic {
		return nil
	}

	if !b.consuming {
		b.consuming = true
		b.consumerWg.Add(1)
		go b.consumeLoop()
	} else if b.sessionCancel != nil {
		b.sessionCancel()
	}
	return nil
}

// subscribedTopics returns the topics with handlers, sorted. Callers hold mu.
func (b *KafkaBus) subscribedTopics() []string {
	topics := make([]string, 0, len(b.handlers))
	for topic, hs := range b.handlers {
		if len(hs) > 0 {
			topics = append(topics, topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// consumeLoop runs consumer group sessions over all subscribed topics until
// the bus is closed. A ConsumerGroup allows one Consume call at a time.
func (b *KafkaBus) consumeLoop() {
	defer b.consumerWg.Done()

	handler := &consumerGroupHandler{bus: b}

	for {
		// Reading the topics and installing the session cancel under one
		// lock means a concurrent Subscribe either is seen here or ends
		// this session.
		b.mu.Lock()
		topics := b.subscribedTopics()
		sessionCtx, cancel := context.WithCancel(b.consumerCtx)
		b.sessionCancel = cancel
		b.mu.Unlock()

		err := b.consumer.Consume(sessionCtx, topics, handler)
		resubscribe := sessionCtx.Err() != nil
		cancel()

		if b.consumerCtx.Err() != nil {
			return
		}
		if err != nil {
			b.log.Warn("Kafka consumer error", "topics", topics, "error", err)
		}
		if resubscribe {
			continue
		}

		select {
		case <-b.consumerCtx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// dispatch runs every handler of topic on event.
func (b *KafkaBus) dispatch(ctx context.Context, topic string, event Event) {
	b.mu.RLock()
	handlers := b.handlers[topic]
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.log.Warn("Event handler failed", "topic", topic, "event_id", event.ID, "error", err)
		}
	}
}

// Close stops the consumers and releases the Kafka resources.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.consumerCancel != nil {
		b.consumerCancel()
	}
	b.consumerWg.Wait()

	var errs []string
	if b.consumer != nil {
		if err := b.consumer.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("close consumer: %v", err))
		}
	}
	if b.producer != nil {
		if err := b.producer.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("close producer: %v", err))
		}
	}
	if b.client != nil && !b.client.Closed() {
		if err := b.client.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("close client: %v", err))
		}
	}

	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()

	if len(errs) > 0 {
		return errors.New(errors.CodeBusError, "errors during close: "+strings.Join(errs, "; "))
	}

	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler. Messages
// are dispatched by their own topic.
type consumerGroupHandler struct {
	bus *KafkaBus
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, after all ConsumeClaim goroutines have exited.
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a Kafka partition.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok || msg == nil {
				return nil
			}

			var event Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				h.bus.log.Warn("Dropping undecodable kafka message",
					"topic", msg.Topic, "offset", msg.Offset, "error", err)
				session.MarkMessage(msg, "")
				continue
			}

			h.bus.dispatch(session.Context(), msg.Topic, event)
			session.MarkMessage(msg, "")
		}
	}
}

// ParseKafkaBrokers parses a comma-separated string of Kafka brokers.
func ParseKafkaBrokers(brokersStr string) []string {
	var brokers []string
	for _, b := range strings.Split(brokersStr, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
