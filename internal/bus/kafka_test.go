package bus

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/go-cmp/cmp"

	"github.com/lusochat/smart-search/internal/pkg/logger"
)

func TestKafkaConfig_WithDefaults(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KafkaConfig
		wantErr bool
	}{
		{"no brokers", KafkaConfig{ConsumerGroup: "g"}, true},
		{"no group", KafkaConfig{Brokers: []string{"localhost:9092"}}, true},
		{"valid", KafkaConfig{Brokers: []string{"localhost:9092"}, ConsumerGroup: "g"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.withDefaults()
			if (err != nil) != tt.wantErr {
				t.Fatalf("withDefaults() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (got.ClientID != "smart-search-bus" || got.Version != "2.8.0") {
				t.Errorf("defaults not applied: %+v", got)
			}
		})
	}
}

func TestKafkaConfig_SaramaConfig(t *testing.T) {
	cfg, _ := KafkaConfig{Brokers: []string{"b:9092"}, ConsumerGroup: "g"}.withDefaults()

	sc, err := cfg.saramaConfig()
	if err != nil {
		t.Fatalf("saramaConfig() error = %v", err)
	}
	if sc.ClientID != "smart-search-bus" {
		t.Errorf("ClientID = %s", sc.ClientID)
	}
	if !sc.Producer.Return.Successes {
		t.Error("sync producer requires Return.Successes")
	}
	if sc.Consumer.Offsets.Initial != sarama.OffsetNewest {
		t.Error("consumers should start from the newest offset")
	}

	cfg.Version = "not-a-version"
	if _, err := cfg.saramaConfig(); err == nil {
		t.Error("expected error for invalid version")
	}
}

func TestEncodeMessage(t *testing.T) {
	ev := Event{ID: "ev-1", Type: TopicDecision, CorrelationID: "req-7", Payload: DecisionPayload{Reason: "mode_off"}}

	msg, err := encodeMessage(TopicDecision, ev)
	if err != nil {
		t.Fatalf("encodeMessage() error = %v", err)
	}

	if msg.Topic != TopicDecision {
		t.Errorf("Topic = %s", msg.Topic)
	}
	key, _ := msg.Key.Encode()
	if string(key) != "req-7" {
		t.Errorf("Key = %s, want correlation id", key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "req-7" {
		t.Errorf("Headers = %+v", msg.Headers)
	}

	value, _ := msg.Value.Encode()
	var decoded Event
	if err := json.Unmarshal(value, &decoded); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if decoded.ID != "ev-1" {
		t.Errorf("decoded ID = %s", decoded.ID)
	}

	msg, _ = encodeMessage(TopicStatus, Event{ID: "ev-2"})
	key, _ = msg.Key.Encode()
	if string(key) != "ev-2" || len(msg.Headers) != 0 {
		t.Errorf("uncorrelated event should be keyed by ID without headers")
	}
}

func TestParseKafkaBrokers(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"localhost:9092", []string{"localhost:9092"}},
		{" kafka-1:9092 , kafka-2:9092", []string{"kafka-1:9092", "kafka-2:9092"}},
		{"a:1,,b:2,", []string{"a:1", "b:2"}},
	}

	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ParseKafkaBrokers(tt.input)); diff != "" {
			t.Errorf("ParseKafkaBrokers(%q) mismatch (-want +got):\n%s", tt.input, diff)
		}
	}
}

func TestKafkaBus_Interface(t *testing.T) {
	var _ Bus = (*KafkaBus)(nil)
}

func TestKafkaBus_ClosedOperations(t *testing.T) {
	b := &KafkaBus{
		handlers: make(map[string][]Handler),
		closed:   true,
	}

	if err := b.Publish(context.Background(), TopicDecision, Event{ID: "x"}); err == nil {
		t.Error("Publish() after Close() should return error")
	}
	if err := b.Subscribe(context.Background(), TopicDecision, func(context.Context, Event) error { return nil }); err == nil {
		t.Error("Subscribe() after Close() should return error")
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close() on closed bus error = %v", err)
	}
}

// fakeConsumerGroup records Consume calls and blocks each until its
// context ends.
type fakeConsumerGroup struct {
	mu      sync.Mutex
	active  int
	overlap bool
	calls   chan []string
}

func (g *fakeConsumerGroup) Consume(ctx context.Context, topics []string, _ sarama.ConsumerGroupHandler) error {
	g.mu.Lock()
	g.active++
	if g.active > 1 {
		g.overlap = true
	}
	g.mu.Unlock()

	g.calls <- append([]string(nil), topics...)
	<-ctx.Done()

	g.mu.Lock()
	g.active--
	g.mu.Unlock()
	return nil
}

func (g *fakeConsumerGroup) Errors() <-chan error      { return nil }
func (g *fakeConsumerGroup) Close() error              { return nil }
func (g *fakeConsumerGroup) Pause(map[string][]int32)  {}
func (g *fakeConsumerGroup) Resume(map[string][]int32) {}
func (g *fakeConsumerGroup) PauseAll()                 {}
func (g *fakeConsumerGroup) ResumeAll()                {}

func newFakeKafkaBus(g sarama.ConsumerGroup) *KafkaBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaBus{
		consumer:       g,
		log:            logger.Discard(),
		handlers:       make(map[string][]Handler),
		consumerCtx:    ctx,
		consumerCancel: cancel,
	}
}

func nextConsume(t *testing.T, g *fakeConsumerGroup) []string {
	t.Helper()
	select {
	case topics := <-g.calls:
		return topics
	case <-time.After(2 * time.Second):
		t.Fatal("Consume was not called")
		return nil
	}
}

func TestKafkaBus_OneConsumeLoopForAllTopics(t *testing.T) {
	g := &fakeConsumerGroup{calls: make(chan []string, 8)}
	b := newFakeKafkaBus(g)
	ctx := context.Background()
	noop := func(context.Context, Event) error { return nil }

	if err := b.Subscribe(ctx, TopicDecision, noop); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if diff := cmp.Diff([]string{TopicDecision}, nextConsume(t, g)); diff != "" {
		t.Errorf("first session topics (-want +got):\n%s", diff)
	}

	// A second handler on a known topic does not restart the session.
	if err := b.Subscribe(ctx, TopicDecision, noop); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := b.Subscribe(ctx, TopicSettingsChanged, noop); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	want := []string{TopicDecision, TopicSettingsChanged}
	slices.Sort(want)
	if diff := cmp.Diff(want, nextConsume(t, g)); diff != "" {
		t.Errorf("second session topics (-want +got):\n%s", diff)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(g.calls) != 0 {
		t.Errorf("unexpected extra sessions: %d", len(g.calls))
	}
	if g.overlap {
		t.Error("Consume was called concurrently")
	}
}

type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "m" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	msgs chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func TestConsumerGroupHandler_DispatchesByMessageTopic(t *testing.T) {
	b := newFakeKafkaBus(nil)
	var got []string
	record := func(topic string) Handler {
		return func(_ context.Context, e Event) error {
			got = append(got, topic+":"+e.ID)
			return nil
		}
	}
	b.handlers[TopicDecision] = []Handler{record(TopicDecision)}
	b.handlers[TopicStatus] = []Handler{record(TopicStatus)}

	encode := func(topic, id string, offset int64) *sarama.ConsumerMessage {
		data, err := json.Marshal(Event{ID: id, Type: topic})
		if err != nil {
			t.Fatal(err)
		}
		return &sarama.ConsumerMessage{Topic: topic, Value: data, Offset: offset}
	}

	claim := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage, 3)}
	claim.msgs <- encode(TopicDecision, "d1", 1)
	claim.msgs <- &sarama.ConsumerMessage{Topic: TopicStatus, Value: []byte("{"), Offset: 2}
	claim.msgs <- encode(TopicStatus, "s1", 3)
	close(claim.msgs)

	session := &fakeSession{ctx: context.Background()}
	if err := (&consumerGroupHandler{bus: b}).ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim() error = %v", err)
	}

	if diff := cmp.Diff([]string{TopicDecision + ":d1", TopicStatus + ":s1"}, got); diff != "" {
		t.Errorf("dispatched (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, session.marked); diff != "" {
		t.Errorf("marked offsets (-want +got):\n%s", diff)
	}
}
