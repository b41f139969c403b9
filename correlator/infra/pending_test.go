package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"click-reply-correlator/correlator/domain"
)

func pendingWebhook(id string, at time.Time) domain.PendingWebhook {
	return domain.PendingWebhook{
		Event:     domain.WebhookEvent{ID: id, EventType: "link_clicked"},
		ArrivedAt: at,
	}
}

func TestPendingStore_DrainReturnsOldestFirst(t *testing.T) {
	clock := newFakeClock()
	p := NewPendingStore(2*time.Minute, clock.Now)
	id := domain.Identity("a@x.com")

	queued, _ := p.Add(id, pendingWebhook("w1", clock.Now()))
	assert.Equal(t, 1, queued)
	clock.Advance(10 * time.Second)
	queued, _ = p.Add(id, pendingWebhook("w2", clock.Now()))
	assert.Equal(t, 2, queued)

	got := p.Drain(id)
	require.Len(t, got, 2)
	assert.Equal(t, "w1", got[0].Event.ID)
	assert.Equal(t, "w2", got[1].Event.ID)

	assert.Empty(t, p.Drain(id), "drain removes the entry")
}

func TestPendingStore_ItemsExpireIndividually(t *testing.T) {
	clock := newFakeClock()
	p := NewPendingStore(2*time.Minute, clock.Now)
	id := domain.Identity("a@x.com")

	p.Add(id, pendingWebhook("old", clock.Now()))
	clock.Advance(90 * time.Second)
	p.Add(id, pendingWebhook("new", clock.Now()))
	clock.Advance(40 * time.Second)

	got := p.Drain(id)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Event.ID)
}

func TestPendingStore_AddPreservesOriginalArrival(t *testing.T) {
	clock := newFakeClock()
	p := NewPendingStore(2*time.Minute, clock.Now)
	id := domain.Identity("a@x.com")

	arrived := clock.Now()
	clock.Advance(time.Minute)
	p.Add(id, pendingWebhook("w", arrived))
	clock.Advance(61 * time.Second)

	assert.Empty(t, p.Drain(id))
}

func TestPendingStore_AddStampsZeroArrival(t *testing.T) {
	clock := newFakeClock()
	p := NewPendingStore(2*time.Minute, clock.Now)
	id := domain.Identity("a@x.com")

	p.Add(id, domain.PendingWebhook{Event: domain.WebhookEvent{ID: "w"}})
	got := p.Drain(id)
	require.Len(t, got, 1)
	assert.Equal(t, clock.Now(), got[0].ArrivedAt)
}

func TestPendingStore_PruneExpired(t *testing.T) {
	clock := newFakeClock()
	p := NewPendingStore(2*time.Minute, clock.Now)

	p.Add("a@x.com", pendingWebhook("w1", clock.Now()))
	p.Add("b@x.com", pendingWebhook("w2", clock.Now()))
	clock.Advance(3 * time.Minute)

	assert.Equal(t, 2, p.PruneExpired(clock.Now()))
	assert.Equal(t, 0, p.Len())
}
