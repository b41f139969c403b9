package correlator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"click-reply-correlator/correlator/domain"
)

// ParseWebhook extrai o WebhookEvent do JSON da Instantly. Os nomes de campo
// variam entre versões do webhook, então cada um tem alternativas.
func ParseWebhook(payload map[string]any, id string, now time.Time) (domain.WebhookEvent, error) {
	if len(payload) == 0 {
		return domain.WebhookEvent{}, fmt.Errorf("empty payload: %w", domain.ErrMalformed)
	}

	ev := domain.WebhookEvent{
		ID:               id,
		EventType:        firstString(payload, "event_type", "event", "type"),
		Identity:         firstString(payload, "lead_email", "email", "recipient"),
		Account:          firstString(payload, "email_account"),
		Campaign:         firstString(payload, "campaign_id"),
		EmbeddedTargetID: firstString(payload, "email_id", "email_uuid", "uuid"),
		EmbeddedSubject:  firstString(payload, "subject"),
		Step:             intField(payload["step"]),
		RawPayload:       payload,
		ReceivedAt:       now,
	}
	if ev.EventType == "" {
		ev.EventType = "unknown"
	}
	return ev, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// intField aceita número JSON ou string numérica; o resto vira 0 (sem step).
func intField(v any) int {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0
		}
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
