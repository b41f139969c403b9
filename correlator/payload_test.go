package correlator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"click-reply-correlator/correlator/domain"
)

func TestParseWebhook_PrimaryFields(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	payload := map[string]any{
		"event_type":    "link_clicked",
		"lead_email":    " A@X.com ",
		"email_account": "sender@x.com",
		"campaign_id":   "camp-1",
		"email_id":      "e-1",
		"subject":       "Your loan",
		"step":          float64(2),
	}

	ev, err := ParseWebhook(payload, "evt-1", now)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, "link_clicked", ev.EventType)
	assert.Equal(t, "A@X.com", ev.Identity)
	assert.Equal(t, "sender@x.com", ev.Account)
	assert.Equal(t, "camp-1", ev.Campaign)
	assert.Equal(t, "e-1", ev.EmbeddedTargetID)
	assert.Equal(t, "Your loan", ev.EmbeddedSubject)
	assert.Equal(t, 2, ev.Step)
	assert.Equal(t, now, ev.ReceivedAt)
	assert.True(t, ev.IsClick())
}

func TestParseWebhook_AlternateFields(t *testing.T) {
	ev, err := ParseWebhook(map[string]any{
		"event":      "email_link_clicked",
		"email":      "a@x.com",
		"email_uuid": "e-2",
		"step":       "3",
	}, "evt", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "email_link_clicked", ev.EventType)
	assert.Equal(t, "a@x.com", ev.Identity)
	assert.Equal(t, "e-2", ev.EmbeddedTargetID)
	assert.Equal(t, 3, ev.Step)

	ev, err = ParseWebhook(map[string]any{"type": "reply", "recipient": "b@x.com", "uuid": "e-3"}, "evt", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "reply", ev.EventType)
	assert.Equal(t, "b@x.com", ev.Identity)
	assert.Equal(t, "e-3", ev.EmbeddedTargetID)
}

func TestParseWebhook_Defaults(t *testing.T) {
	ev, err := ParseWebhook(map[string]any{"lead_email": "a@x.com", "step": "abc"}, "evt", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "unknown", ev.EventType)
	assert.Equal(t, 0, ev.Step)

	ev, err = ParseWebhook(map[string]any{"lead_email": "a@x.com", "step": 1.5}, "evt", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Step)
}

func TestParseWebhook_EmptyPayload(t *testing.T) {
	_, err := ParseWebhook(map[string]any{}, "evt", time.Now())
	assert.ErrorIs(t, err, domain.ErrMalformed)

	_, err = ParseWebhook(nil, "evt", time.Now())
	assert.ErrorIs(t, err, domain.ErrMalformed)
}
