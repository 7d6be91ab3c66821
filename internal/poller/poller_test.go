package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/orders"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"gotest.tools/v3/assert"
)

type mockConfirmer struct {
	m         sync.RWMutex
	confirmed []string
	err       error
}

func (c *mockConfirmer) ConfirmPayment(_ context.Context, orderID string) error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.err != nil {
		return c.err
	}
	c.confirmed = append(c.confirmed, orderID)
	return nil
}

func (c *mockConfirmer) got() []string {
	c.m.RLock()
	defer c.m.RUnlock()
	out := make([]string, len(c.confirmed))
	copy(out, c.confirmed)
	return out
}

type mockReader struct {
	m         sync.RWMutex
	msgs      chan kafkaGo.Message
	committed []int64
	closed    bool
}

func newMockReader() *mockReader {
	return &mockReader{msgs: make(chan kafkaGo.Message, 16)}
}

func (r *mockReader) FetchMessage(ctx context.Context) (kafkaGo.Message, error) {
	select {
	case <-ctx.Done():
		return kafkaGo.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *mockReader) CommitMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	r.m.Lock()
	defer r.m.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *mockReader) Close() error {
	r.m.Lock()
	defer r.m.Unlock()
	r.closed = true
	return nil
}

func (r *mockReader) commits() int {
	r.m.RLock()
	defer r.m.RUnlock()
	return len(r.committed)
}

func eventJSON(t *testing.T, orderID, status string) []byte {
	t.Helper()
	b, err := json.Marshal(PaymentEvent{OrderID: orderID, Status: status})
	require.NoError(t, err)
	return b
}

func TestHandle_PaidConfirmsOrder(t *testing.T) {
	c := &mockConfirmer{}
	p := NewPaymentPoller(newMockReader(), c, nil, nil)

	for _, status := range []string{"paid", "SUCCESS", " completed "} {
		assert.NilError(t, p.Handle(context.Background(), eventJSON(t, "FN1", status)))
	}
	assert.DeepEqual(t, []string{"FN1", "FN1", "FN1"}, c.got())
}

func TestHandle_FailedNotifies(t *testing.T) {
	c := &mockConfirmer{}
	bus := events.NewBus()
	rec := &events.Recorder{}
	bus.Subscribe(rec.Handle)
	p := NewPaymentPoller(newMockReader(), c, bus, nil)

	assert.NilError(t, p.Handle(context.Background(), eventJSON(t, "FN2", "failed")))
	assert.Equal(t, 0, len(c.got()))
	notes := events.Of[events.Notification](rec)
	assert.Equal(t, 1, len(notes))
	assert.Equal(t, events.LevelError, notes[0].Level)
}

func TestHandle_UnknownStatusIgnored(t *testing.T) {
	c := &mockConfirmer{}
	p := NewPaymentPoller(newMockReader(), c, nil, nil)

	assert.NilError(t, p.Handle(context.Background(), eventJSON(t, "FN3", "pending")))
	assert.Equal(t, 0, len(c.got()))
}

func TestHandle_Malformed(t *testing.T) {
	p := NewPaymentPoller(newMockReader(), &mockConfirmer{}, nil, nil)

	err := p.Handle(context.Background(), []byte("not json"))
	assert.Assert(t, errors.Is(err, ErrMalformedEvent))

	err = p.Handle(context.Background(), []byte(`{"status":"paid"}`))
	assert.Assert(t, errors.Is(err, ErrMalformedEvent))
}

func TestHandle_UnknownOrderIsNotAnError(t *testing.T) {
	c := &mockConfirmer{err: fmt.Errorf("confirm payment FN9: %w", orders.ErrOrderNotFound)}
	p := NewPaymentPoller(newMockReader(), c, nil, nil)

	assert.NilError(t, p.Handle(context.Background(), eventJSON(t, "FN9", "paid")))
}

func TestHandle_ConfirmErrorIsReturned(t *testing.T) {
	c := &mockConfirmer{err: errors.New("disk full")}
	p := NewPaymentPoller(newMockReader(), c, nil, nil)

	err := p.Handle(context.Background(), eventJSON(t, "FN1", "paid"))
	assert.ErrorContains(t, err, "disk full")
}

func TestRun_CommitsEveryMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := newMockReader()
	c := &mockConfirmer{}
	p := NewPaymentPoller(reader, c, nil, nil)

	reader.msgs <- kafkaGo.Message{Offset: 1, Value: eventJSON(t, "FN1", "paid")}
	reader.msgs <- kafkaGo.Message{Offset: 2, Value: []byte("garbage")}
	reader.msgs <- kafkaGo.Message{Offset: 3, Value: eventJSON(t, "FN2", "paid")}

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return reader.commits() == 3
	}, time.Second, 10*time.Millisecond)
	assert.DeepEqual(t, []string{"FN1", "FN2"}, c.got())

	cancel()
	<-done
	p.Close()
	assert.Assert(t, reader.closed)
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestPaymentPoller_Kafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker, cleanup := setupKafka(t)
	defer cleanup()
	topic := "payment-events"
	createTopic(t, broker, topic)

	c := &mockConfirmer{}
	p := NewPaymentPoller(NewKafkaReader([]string{broker}, topic, "storefront-test"), c, nil, nil)
	defer p.Close()

	w := &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafkaGo.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	err := w.WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte("FN42"),
		Value: eventJSON(t, "FN42", "paid"),
	})
	require.NoError(t, err)
	w.Close()

	go p.Run(ctx)
	require.Eventually(t, func() bool {
		return len(c.got()) == 1
	}, 30*time.Second, 500*time.Millisecond)
	assert.Equal(t, "FN42", c.got()[0])
}
