package correlator

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"click-reply-correlator/correlator/domain"
	"click-reply-correlator/logging"
)

// Core é o que as rotas usam do application.Correlator.
type Core interface {
	RecordClick(ctx context.Context, ev domain.ClickEvent) domain.Decision
	Submit(ctx context.Context, ev domain.WebhookEvent)
}

// Status é o retrato devolvido em GET /status.
type Status struct {
	Clicks          int                      `json:"clicks"`
	PendingWebhooks int                      `json:"pending_webhooks"`
	Resolutions     int                      `json:"resolutions"`
	LookupsInWindow int                      `json:"lookups_in_window"`
	LookupLimit     int                      `json:"lookup_limit"`
	RetryQueueLen   int                      `json:"retry_queue_len"`
	RetryQueueCap   int                      `json:"retry_queue_cap"`
	RetryDropped    int64                    `json:"retry_dropped"`
	Outcomes        map[domain.Outcome]int64 `json:"outcomes,omitempty"`
	RecentEvents    []logging.Entry          `json:"recent_events"`
}

type RouterOptions struct {
	Core   Core
	Ring   *logging.Ring
	Status func() Status
	Log    *zap.Logger
	NewID  func() string
	Now    func() time.Time
	// RedirectHosts são os únicos hosts aceitos em /lt/ (normalmente o host
	// de LINK_BASE_URL). Vazio recusa todo redirecionamento.
	RedirectHosts []string
}

type Router struct {
	core   Core
	ring   *logging.Ring
	status func() Status
	log    *zap.Logger
	newID  func() string
	now    func() time.Time
	engine *gin.Engine

	redirectHosts map[string]struct{}
}

var skipPaths = []string{"favicon.ico", "robots.txt", ".well-known"}

func NewRouter(opts RouterOptions) *Router {
	r := &Router{
		core:   opts.Core,
		ring:   opts.Ring,
		status: opts.Status,
		log:    opts.Log,
		newID:  opts.NewID,
		now:    opts.Now,
		engine: gin.New(),

		redirectHosts: make(map[string]struct{}, len(opts.RedirectHosts)),
	}
	for _, h := range opts.RedirectHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.redirectHosts[h] = struct{}{}
		}
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.ring == nil {
		r.ring = logging.NewRing(logging.DefaultRingSize)
	}

	r.engine.Use(gin.Recovery(), r.requestLog())
	r.registerRoutes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

func (r *Router) registerRoutes() {
	r.engine.GET("/health", r.health)
	r.engine.GET("/status", r.getStatus)
	r.engine.GET("/logs", r.getLogs)
	r.engine.GET("/logs/recent", r.getRecentLogs)
	r.engine.POST("/logs/clear", r.clearLogs)
	r.engine.POST("/webhook/instantly", r.webhook)
	r.engine.GET("/lt/*tracking", r.trackingRedirect)
	r.engine.GET("/:choice", r.click)
	r.engine.NoRoute(r.noRoute)
}

// requestLog registra só cliques e webhooks; o resto é ruído.
func (r *Router) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		_, isClick := domain.ChoiceFromPath(path)
		isWebhook := path == "/webhook/instantly"
		if !isClick && !isWebhook {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		r.log.Info("Request served",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func (r *Router) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) getStatus(c *gin.Context) {
	var st Status
	if r.status != nil {
		st = r.status()
	}
	st.RecentEvents = r.ring.Last(10)
	c.JSON(http.StatusOK, st)
}

func (r *Router) getLogs(c *gin.Context) {
	c.JSON(http.StatusOK, r.ring.Snapshot())
}

func (r *Router) getRecentLogs(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, r.ring.Last(limit))
}

func (r *Router) clearLogs(c *gin.Context) {
	r.ring.Clear()
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Logs cleared"})
}

// webhook valida o JSON e devolve 200 antes de qualquer processamento. O
// remetente nunca recebe erro, só "accepted" ou o motivo do descarte.
func (r *Router) webhook(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		r.log.Warn("Invalid webhook JSON", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": true, "error": "invalid_json"})
		return
	}

	ev, err := ParseWebhook(payload, r.newID(), r.now())
	if err != nil {
		r.log.Warn("Empty webhook payload")
		c.JSON(http.StatusOK, gin.H{"ok": true, "error": "empty_payload"})
		return
	}

	r.log.Info("Webhook accepted",
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.EventType),
		zap.String("identity", ev.Identity),
		zap.String("account", ev.Account),
		zap.String("campaign", ev.Campaign),
		zap.Int("step", ev.Step))

	r.core.Submit(c.Request.Context(), ev)
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": "accepted", "event_id": ev.ID})
}

// trackingRedirect segue o redirecionamento de rastreio da Instantly (/lt/...).
func (r *Router) trackingRedirect(c *gin.Context) {
	dest := c.Query("url")
	if dest == "" {
		dest = c.Query("destination")
	}
	if dest == "" {
		dest = c.Query("redirect")
	}
	if dest == "" {
		c.Status(http.StatusNoContent)
		return
	}
	u, err := url.Parse(dest)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		c.Status(http.StatusNoContent)
		return
	}
	if _, ok := r.redirectHosts[strings.ToLower(u.Hostname())]; !ok {
		r.log.Warn("Refusing tracking redirect to foreign host", zap.String("host", u.Host))
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusFound, dest)
}

// noRoute cobre caminhos com mais de um segmento (ex.: /.well-known/...).
func (r *Router) noRoute(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/.well-known/") {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func (r *Router) click(c *gin.Context) {
	raw := strings.ToLower(c.Param("choice"))
	for _, skip := range skipPaths {
		if strings.HasPrefix(raw, skip) {
			c.Status(http.StatusNoContent)
			return
		}
	}

	choice, ok := domain.ChoiceFromPath(raw)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	email := c.Query("email")
	if email == "" {
		email = c.Query("lead_email")
	}
	if email == "" {
		email = c.Query("recipient")
	}
	if strings.TrimSpace(email) == "" {
		r.log.Warn("Click without email parameter, reply will not be sent",
			zap.String("choice", string(choice)),
			zap.String("client", c.ClientIP()))
		c.Status(http.StatusNoContent)
		return
	}

	r.core.RecordClick(c.Request.Context(), domain.ClickEvent{
		Identity: email,
		Choice:   choice,
		SourceIP: c.ClientIP(),
	})
	c.Status(http.StatusNoContent)
}
