package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	claimed   []Message
	claimErr  error
	published []int64
	failed    []int64
	retries   []int
}

func (s *fakeStore) ClaimOutboxMessages(_ context.Context, _ int, _ int) ([]Message, error) {
	return s.claimed, s.claimErr
}

func (s *fakeStore) MarkOutboxPublished(_ context.Context, id int64) error {
	s.published = append(s.published, id)
	return nil
}

func (s *fakeStore) MarkOutboxFailed(_ context.Context, id int64, retryAfterSeconds int, _ string) error {
	s.failed = append(s.failed, id)
	s.retries = append(s.retries, retryAfterSeconds)
	return nil
}

type fakePublisher struct {
	failFor   map[string]error
	published []string
}

func (p *fakePublisher) PublishRaw(_ context.Context, _, _, messageID string, _ []byte) error {
	if err, ok := p.failFor[messageID]; ok {
		return err
	}
	p.published = append(p.published, messageID)
	return nil
}

func TestFlushOnce_PublishesAndMarks(t *testing.T) {
	store := &fakeStore{claimed: []Message{
		{ID: 1, Exchange: "transfer.saga", RoutingKey: "event.transfer_initiated", MessageID: "transfer-initiated-a", Payload: []byte(`{}`)},
		{ID: 2, Exchange: "transfer.saga", RoutingKey: "event.balance_reserved", MessageID: "balance-reserved-b", Payload: []byte(`{}`)},
	}}
	pub := &fakePublisher{}

	d := NewDispatcher(store, pub)
	require.NoError(t, d.FlushOnce(context.Background()))

	assert.Equal(t, []string{"transfer-initiated-a", "balance-reserved-b"}, pub.published)
	assert.Equal(t, []int64{1, 2}, store.published)
	assert.Empty(t, store.failed)
}

func TestFlushOnce_FailedPublishSchedulesRetryAndContinues(t *testing.T) {
	store := &fakeStore{claimed: []Message{
		{ID: 1, MessageID: "bad", Attempts: 3},
		{ID: 2, MessageID: "good"},
	}}
	pub := &fakePublisher{failFor: map[string]error{"bad": errors.New("channel closed")}}

	d := NewDispatcher(store, pub)
	require.NoError(t, d.FlushOnce(context.Background()))

	assert.Equal(t, []int64{1}, store.failed)
	assert.Equal(t, []int{8}, store.retries)
	assert.Equal(t, []int64{2}, store.published)
}

func TestFlushOnce_ClaimErrorIsReturned(t *testing.T) {
	store := &fakeStore{claimErr: errors.New("db down")}
	d := NewDispatcher(store, &fakePublisher{})
	assert.Error(t, d.FlushOnce(context.Background()))
}

func TestRetryDelaySeconds_BackoffIsCapped(t *testing.T) {
	assert.Equal(t, 1, retryDelaySeconds(0))
	assert.Equal(t, 2, retryDelaySeconds(1))
	assert.Equal(t, 32, retryDelaySeconds(5))
	assert.Equal(t, 256, retryDelaySeconds(8))
	assert.Equal(t, 300, retryDelaySeconds(9))
	assert.Equal(t, 300, retryDelaySeconds(50))
}
