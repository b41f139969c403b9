package correlator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"click-reply-correlator/correlator/domain"
	"click-reply-correlator/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingCore struct {
	mu       sync.Mutex
	clicks   []domain.ClickEvent
	webhooks []domain.WebhookEvent
}

func (c *recordingCore) RecordClick(_ context.Context, ev domain.ClickEvent) domain.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clicks = append(c.clicks, ev)
	return domain.Decision{Outcome: domain.OutcomeRecorded, Choice: ev.Choice}
}

func (c *recordingCore) Submit(_ context.Context, ev domain.WebhookEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.webhooks = append(c.webhooks, ev)
}

func newTestRouter(t *testing.T) (*Router, *recordingCore, *logging.Ring, *zap.Logger) {
	t.Helper()
	ring := logging.NewRing(50)
	log, err := logging.New("development", ring)
	require.NoError(t, err)

	core := &recordingCore{}
	r := NewRouter(RouterOptions{
		Core:  core,
		Ring:  ring,
		Log:   log,
		NewID: func() string { return "evt-1" },
		Now:   func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		Status: func() Status {
			return Status{Clicks: 2, PendingWebhooks: 1, LookupLimit: 18, RetryQueueCap: 1000}
		},
		RedirectHosts: []string{"Links.Example.com"},
	})
	return r, core, ring, log
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRouter_WebhookAccepted(t *testing.T) {
	r, core, _, _ := newTestRouter(t)

	w := serve(r, http.MethodPost, "/webhook/instantly",
		`{"event_type":"link_clicked","lead_email":"a@x.com","email_account":"s@x.com","step":2}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"status":"accepted","event_id":"evt-1"}`, w.Body.String())

	require.Len(t, core.webhooks, 1)
	ev := core.webhooks[0]
	assert.Equal(t, "a@x.com", ev.Identity)
	assert.Equal(t, "s@x.com", ev.Account)
	assert.Equal(t, 2, ev.Step)
	assert.Equal(t, "evt-1", ev.ID)
}

func TestRouter_WebhookBadBodiesStill200(t *testing.T) {
	r, core, _, _ := newTestRouter(t)

	w := serve(r, http.MethodPost, "/webhook/instantly", `{not json`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"error":"invalid_json"}`, w.Body.String())

	w = serve(r, http.MethodPost, "/webhook/instantly", `{}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"error":"empty_payload"}`, w.Body.String())

	assert.Empty(t, core.webhooks)
}

func TestRouter_ClickRecordsAndReturns204(t *testing.T) {
	r, core, _, _ := newTestRouter(t)

	w := serve(r, http.MethodGet, "/settle?email=A%40X.com", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(r, http.MethodGet, "/human?lead_email=b@x.com", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	require.Len(t, core.clicks, 2)
	assert.Equal(t, "A@X.com", core.clicks[0].Identity)
	assert.Equal(t, domain.SettleLoan, core.clicks[0].Choice)
	assert.Equal(t, "10.0.0.1", core.clicks[0].SourceIP)
	assert.Equal(t, domain.NeedMoreTime, core.clicks[1].Choice)
}

func TestRouter_ClickWithoutEmailOrUnknownPath(t *testing.T) {
	r, core, ring, _ := newTestRouter(t)

	for _, target := range []string{"/settle", "/favicon.ico", "/robots.txt", "/.well-known/security.txt", "/whatever?email=a@x.com"} {
		w := serve(r, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNoContent, w.Code, target)
	}
	assert.Empty(t, core.clicks)

	found := false
	for _, e := range ring.Snapshot() {
		if strings.Contains(e.Message, "without email") {
			found = true
		}
	}
	assert.True(t, found, "missing-email warning should be logged")
}

func TestRouter_TrackingRedirect(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	w := serve(r, http.MethodGet, "/lt/abc?url=https%3A%2F%2Flinks.example.com%2Fclose%3Femail%3Da%40x.com", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://links.example.com/close?email=a@x.com", w.Header().Get("Location"))

	// só o host dos links de escolha
	w = serve(r, http.MethodGet, "/lt/abc?url=https%3A%2F%2Fevil.example.net%2Fphish", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Location"))

	w = serve(r, http.MethodGet, "/lt/abc?destination=https%3A%2F%2Flinks.example.com.evil.net%2F", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(r, http.MethodGet, "/lt/abc?url=javascript:alert(1)", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(r, http.MethodGet, "/lt/abc", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_StatusAndLogs(t *testing.T) {
	r, _, ring, log := newTestRouter(t)
	log.Info("first")
	log.Warn("second")

	w := serve(r, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Clicks)
	assert.Equal(t, 1, st.PendingWebhooks)
	assert.Equal(t, 18, st.LookupLimit)
	require.NotEmpty(t, st.RecentEvents)
	assert.Equal(t, "second", st.RecentEvents[len(st.RecentEvents)-1].Message)

	w = serve(r, http.MethodGet, "/logs/recent?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []logging.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)

	w = serve(r, http.MethodGet, "/logs/recent?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, http.MethodPost, "/logs/clear", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, ring.Len())

	w = serve(r, http.MethodGet, "/logs", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRouter_UnknownMultiSegmentPathIs404(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	w := serve(r, http.MethodGet, "/a/b/c", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
