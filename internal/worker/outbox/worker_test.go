package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderlabs/order-svc/internal/service/models/outbox"
)

type fakeOutboxRepo struct {
	pending    []outbox.OutboxMessage
	pendingErr error

	deleted []int64

	retriedIDs    []int64
	retriedCounts []int
	retriedNextAt []time.Time
}

func (f *fakeOutboxRepo) Insert(_ context.Context, _ outbox.OutboxMessage) error { return nil }

func (f *fakeOutboxRepo) GetPendingMessages(_ context.Context, _ int) ([]outbox.OutboxMessage, error) {
	return f.pending, f.pendingErr
}

func (f *fakeOutboxRepo) Delete(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)

	return nil
}

func (f *fakeOutboxRepo) UpdateRetry(_ context.Context, id int64, retryCount int, _ string, nextRetryAt time.Time) error {
	f.retriedIDs = append(f.retriedIDs, id)
	f.retriedCounts = append(f.retriedCounts, retryCount)
	f.retriedNextAt = append(f.retriedNextAt, nextRetryAt)

	return nil
}

type fakePublisher struct {
	err       error
	published []amqp.Publishing
	keys      []string
}

func (f *fakePublisher) Publish(_, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	f.keys = append(f.keys, key)

	return nil
}

func pendingMessage(id int64) outbox.OutboxMessage {
	return outbox.OutboxMessage{
		ID:          id,
		RoutingKey:  "orders.created",
		Payload:     []byte(`{"orderId":"ORD-1A2B3C4D"}`),
		ContentType: "application/json",
		MaxRetries:  5,
	}
}

func TestProcessMessages_PublishesAndDeletes(t *testing.T) {
	repo := &fakeOutboxRepo{pending: []outbox.OutboxMessage{pendingMessage(1), pendingMessage(2)}}
	pub := &fakePublisher{}
	w := NewWorker(repo, pub)

	w.processMessages(context.Background())

	require.Len(t, pub.published, 2)
	assert.Equal(t, []string{"orders.created", "orders.created"}, pub.keys)
	assert.Equal(t, "application/json", pub.published[0].ContentType)
	assert.Equal(t, []int64{1, 2}, repo.deleted)
	assert.Empty(t, repo.retriedIDs)
}

func TestProcessMessages_PublishFailureSchedulesRetry(t *testing.T) {
	msg := pendingMessage(7)
	msg.RetryCount = 1
	repo := &fakeOutboxRepo{pending: []outbox.OutboxMessage{msg}}
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	w := NewWorker(repo, pub)

	w.processMessages(context.Background())

	assert.Empty(t, repo.deleted)
	require.Equal(t, []int64{7}, repo.retriedIDs)
	assert.Equal(t, []int{2}, repo.retriedCounts)
}

func TestProcessMessages_BackoffUsesConfiguredInterval(t *testing.T) {
	viper.Set("rabbitmq.outbox.retry_interval_seconds", 5)
	t.Cleanup(func() {
		viper.Set("rabbitmq.outbox.retry_interval_seconds", 0)
	})

	repo := &fakeOutboxRepo{pending: []outbox.OutboxMessage{pendingMessage(3)}}
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	w := NewWorker(repo, pub)

	before := time.Now()
	w.processMessages(context.Background())

	// First retry backs off 2 * base = 10s.
	require.Len(t, repo.retriedNextAt, 1)
	delay := repo.retriedNextAt[0].Sub(before)
	assert.GreaterOrEqual(t, delay, 9*time.Second)
	assert.LessOrEqual(t, delay, 11*time.Second)
}

func TestProcessMessages_RepoErrorPublishesNothing(t *testing.T) {
	repo := &fakeOutboxRepo{pendingErr: errors.New("db down")}
	pub := &fakePublisher{}
	w := NewWorker(repo, pub)

	w.processMessages(context.Background())

	assert.Empty(t, pub.published)
}

func TestWorker_StopEndsRunLoop(t *testing.T) {
	repo := &fakeOutboxRepo{}
	pub := &fakePublisher{}
	w := NewWorker(repo, pub)

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
