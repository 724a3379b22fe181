package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/docflow/pkg/common/logger"
)

type countPublisher struct{ events []*Event }

func (p *countPublisher) Publish(e *Event) { p.events = append(p.events, e) }

func TestRedisPublisherFansOutPerTenant(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	inner := &countPublisher{}
	pub := NewRedisPublisher(inner, client, "", logger.Noop())

	sub := client.Subscribe(context.Background(), "docflow:events:tenant-1")
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	e := New(TypeJobCompleted, "tenant-1")
	e.JobID = "job-1"
	pub.Publish(e)

	msg, err := sub.ReceiveTimeout(context.Background(), 2*time.Second)
	require.NoError(t, err)
	m, ok := msg.(*redis.Message)
	require.True(t, ok)

	var got Event
	require.NoError(t, json.Unmarshal([]byte(m.Payload), &got))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, TypeJobCompleted, got.Type)
	assert.Equal(t, "job-1", got.JobID)

	// The in-process stream still sees the event.
	require.Len(t, inner.events, 1)
	assert.Same(t, e, inner.events[0])
}

func TestRedisPublisherSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	inner := &countPublisher{}
	pub := NewRedisPublisher(inner, client, "", logger.Noop())

	// Redis being down is advisory only; the in-process delivery proceeds.
	pub.Publish(New(TypeJobFailed, "tenant-1"))
	assert.Len(t, inner.events, 1)
}
