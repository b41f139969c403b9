package infra

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"click-reply-correlator/correlator/domain"
)

const DefaultInstantlyBaseURL = "https://api.instantly.ai"

// InstantlyClient fala com a API v2 da Instantly: busca de e-mails do lead,
// leitura de um e-mail por id e envio de resposta.
//
// Não aplica limite de taxa: quem chama adquire a vaga antes.
type InstantlyClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	log     *zap.Logger

	listTimeout  time.Duration
	getTimeout   time.Duration
	replyTimeout time.Duration
}

type InstantlyOption func(*InstantlyClient)

func WithHTTPClient(hc *http.Client) InstantlyOption {
	return func(c *InstantlyClient) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithTimeouts define o timeout por chamada de busca, leitura e resposta.
func WithTimeouts(list, get, reply time.Duration) InstantlyOption {
	return func(c *InstantlyClient) {
		c.listTimeout = list
		c.getTimeout = get
		c.replyTimeout = reply
	}
}

func WithClientLogger(l *zap.Logger) InstantlyOption {
	return func(c *InstantlyClient) {
		if l != nil {
			c.log = l
		}
	}
}

func NewInstantlyClient(baseURL, apiKey string, opts ...InstantlyOption) *InstantlyClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultInstantlyBaseURL
	}
	c := &InstantlyClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		hc:           &http.Client{},
		log:          zap.NewNop(),
		listTimeout:  15 * time.Second,
		getTimeout:   10 * time.Second,
		replyTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// flexInt aceita número ou string numérica ("2").
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// step não numérico conta como ausente
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

type emailItem struct {
	ID               string          `json:"id"`
	LeadEmail        string          `json:"lead_email"`
	Lead             string          `json:"lead"`
	To               json.RawMessage `json:"to"`
	Subject          string          `json:"subject"`
	EmailSubject     string          `json:"email_subject"`
	SubjectLine      string          `json:"subject_line"`
	Title            string          `json:"title"`
	Step             flexInt         `json:"step"`
	CampaignID       string          `json:"campaign_id"`
	TimestampCreated string          `json:"timestamp_created"`
	TimestampEmail   string          `json:"timestamp_email"`
}

func (it emailItem) candidate() domain.Candidate {
	lead := firstNonEmpty(it.LeadEmail, it.Lead)
	if lead == "" && len(it.To) > 0 {
		var to string
		if err := json.Unmarshal(it.To, &to); err == nil {
			lead = to
		}
	}
	return domain.Candidate{
		ID:         it.ID,
		Lead:       lead,
		Subject:    firstNonEmpty(it.Subject, it.EmailSubject, it.SubjectLine, it.Title),
		Step:       int(it.Step),
		CampaignID: it.CampaignID,
		CreatedAt:  parseTimestamp(firstNonEmpty(it.TimestampCreated, it.TimestampEmail)),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// decodeItems aceita {"items":[...]} ou um array direto.
func decodeItems(body []byte) ([]emailItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []emailItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode email list: %w", err)
		}
		return items, nil
	}
	var page struct {
		Items []emailItem `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("decode email page: %w", err)
	}
	return page.Items, nil
}

func (c *InstantlyClient) do(ctx context.Context, timeout time.Duration, method, path string, q url.Values, body any) (int, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, b, nil
}

func snippet(b []byte) string {
	const max = 500
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}

// ListEmails implementa domain.LookupClient. Os candidatos voltam do mais
// recente para o mais antigo.
func (c *InstantlyClient) ListEmails(ctx context.Context, req domain.ResolveRequest) ([]domain.Candidate, error) {
	q := url.Values{}
	q.Set("eaccount", req.Account)
	q.Set("lead", req.Identity.String())
	if req.Campaign != "" {
		q.Set("campaign_id", req.Campaign)
	}

	status, body, err := c.do(ctx, c.listTimeout, http.MethodGet, "/api/v2/emails", q, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusTooManyRequests:
		return nil, fmt.Errorf("list emails: %w", domain.ErrThrottled)
	case status != http.StatusOK:
		return nil, fmt.Errorf("list emails: status %d: %s", status, snippet(body))
	}

	items, err := decodeItems(body)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Candidate, 0, len(items))
	for _, it := range items {
		out = append(out, it.candidate())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	c.log.Debug("Email lookup finished",
		zap.String("identity", req.Identity.String()),
		zap.Int("results", len(out)))
	return out, nil
}

// GetEmail implementa domain.LookupClient.
func (c *InstantlyClient) GetEmail(ctx context.Context, id, account string) (domain.Candidate, error) {
	q := url.Values{}
	q.Set("eaccount", account)

	status, body, err := c.do(ctx, c.getTimeout, http.MethodGet, "/api/v2/emails/"+url.PathEscape(id), q, nil)
	if err != nil {
		return domain.Candidate{}, err
	}
	switch {
	case status == http.StatusTooManyRequests:
		return domain.Candidate{}, fmt.Errorf("get email: %w", domain.ErrThrottled)
	case status != http.StatusOK:
		return domain.Candidate{}, fmt.Errorf("get email: status %d: %s", status, snippet(body))
	}

	var it emailItem
	if err := json.Unmarshal(body, &it); err != nil {
		return domain.Candidate{}, fmt.Errorf("decode email: %w", err)
	}
	cand := it.candidate()
	if cand.ID == "" {
		cand.ID = id
	}
	return cand, nil
}

type replyPayload struct {
	EAccount    string    `json:"eaccount"`
	ReplyToUUID string    `json:"reply_to_uuid"`
	Subject     string    `json:"subject"`
	Body        replyBody `json:"body"`
	To          string    `json:"to,omitempty"`
	LeadEmail   string    `json:"lead_email,omitempty"`
}

type replyBody struct {
	HTML string `json:"html"`
}

// ReplySubject prefixa "Re: " quando ainda não existe.
func ReplySubject(subject string) string {
	if strings.TrimSpace(subject) == "" {
		subject = domain.FallbackSubject
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// SendReply implementa domain.ReplySender. Uma única tentativa.
func (c *InstantlyClient) SendReply(ctx context.Context, r domain.Reply) error {
	if strings.TrimSpace(r.TargetID) == "" {
		return fmt.Errorf("send reply: empty reply target: %w", domain.ErrReplyRejected)
	}
	if strings.TrimSpace(r.Account) == "" {
		return fmt.Errorf("send reply: empty sending account: %w", domain.ErrReplyRejected)
	}

	payload := replyPayload{
		EAccount:    r.Account,
		ReplyToUUID: r.TargetID,
		Subject:     ReplySubject(r.Subject),
		Body:        replyBody{HTML: r.Body},
		To:          r.Recipient,
		LeadEmail:   r.Recipient,
	}

	start := time.Now()
	status, body, err := c.do(ctx, c.replyTimeout, http.MethodPost, "/api/v2/emails/reply", nil, payload)
	if err != nil {
		return err
	}
	c.log.Info("Reply API answered",
		zap.Int("status", status),
		zap.Duration("took", time.Since(start)),
		zap.String("target_id", r.TargetID))

	return checkReplyResponse(status, body)
}

var (
	failedStatuses = map[string]bool{"error": true, "failed": true, "rejected": true, "bounced": true}
	failedStates   = map[string]bool{"error": true, "failed": true, "rejected": true}
)

// checkReplyResponse aplica as regras de rejeição do fornecedor, inclusive
// quando o HTTP é 2xx mas o corpo diz que falhou.
func checkReplyResponse(status int, body []byte) error {
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("send reply: %w", domain.ErrThrottled)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("send reply: status %d: %s: %w", status, snippet(body), domain.ErrReplyRejected)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	var doc map[string]any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		lower := strings.ToLower(string(trimmed))
		if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
			return fmt.Errorf("send reply: non-json error body: %s: %w", snippet(trimmed), domain.ErrReplyRejected)
		}
		return nil
	}

	for _, k := range []string{"error", "message", "errors", "error_message", "error_detail"} {
		if v, ok := doc[k]; ok && truthy(v) {
			return fmt.Errorf("send reply: %s=%v: %w", k, v, domain.ErrReplyRejected)
		}
	}
	if v, ok := doc["success"].(bool); ok && !v {
		return fmt.Errorf("send reply: success=false: %w", domain.ErrReplyRejected)
	}
	if s, ok := doc["status"].(string); ok && failedStatuses[strings.ToLower(s)] {
		return fmt.Errorf("send reply: status=%s: %w", s, domain.ErrReplyRejected)
	}
	if s, ok := doc["state"].(string); ok && failedStates[strings.ToLower(s)] {
		return fmt.Errorf("send reply: state=%s: %w", s, domain.ErrReplyRejected)
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
