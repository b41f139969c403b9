package main

// Servidor falso da API do Instantly para testar o correlator localmente:
//
//	INSTANTLY_BASE_URL=http://localhost:8081 go run ./cmd/correlator serve
//
// FAKE_THROTTLE=N faz as primeiras N listagens responderem 429.

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type email struct {
	ID         string `json:"id"`
	Lead       string `json:"lead"`
	Subject    string `json:"subject"`
	Step       int    `json:"step"`
	CampaignID string `json:"campaign_id"`
	Account    string `json:"eaccount"`
	CreatedAt  string `json:"timestamp_created"`
}

type fakeAPI struct {
	mu       sync.Mutex
	emails   []email
	replies  []map[string]any
	throttle atomic.Int64
	log      *zap.Logger
}

func main() {
	log, _ := zap.NewDevelopment()
	defer func() { _ = log.Sync() }()

	api := &fakeAPI{log: log}
	if v := os.Getenv("FAKE_THROTTLE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatal("Invalid FAKE_THROTTLE", zap.String("value", v))
		}
		api.throttle.Store(int64(n))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/api/v2/emails", api.list)
	r.GET("/api/v2/emails/:id", api.get)
	r.POST("/api/v2/emails/reply", api.reply)
	// seed cria um e-mail enviado para o lead informado.
	r.POST("/seed", api.seed)
	r.GET("/replies", func(c *gin.Context) {
		api.mu.Lock()
		defer api.mu.Unlock()
		c.JSON(http.StatusOK, api.replies)
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	log.Info("Fake Instantly API listening", zap.String("address", addr))
	if err := r.Run(addr); err != nil {
		log.Fatal("Server error", zap.Error(err))
	}
}

func (a *fakeAPI) throttled(c *gin.Context) bool {
	if a.throttle.Load() <= 0 {
		return false
	}
	a.throttle.Add(-1)
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
	return true
}

func (a *fakeAPI) list(c *gin.Context) {
	if a.throttled(c) {
		return
	}
	lead := strings.ToLower(c.Query("lead"))
	campaign := c.Query("campaign_id")

	a.mu.Lock()
	defer a.mu.Unlock()

	items := make([]email, 0)
	for _, e := range a.emails {
		if lead != "" && strings.ToLower(e.Lead) != lead {
			continue
		}
		if campaign != "" && e.CampaignID != campaign {
			continue
		}
		items = append(items, e)
	}
	a.log.Info("List emails", zap.String("lead", lead), zap.Int("items", len(items)))
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *fakeAPI) get(c *gin.Context) {
	id := c.Param("id")

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range a.emails {
		if e.ID == id {
			c.JSON(http.StatusOK, e)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func (a *fakeAPI) reply(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	a.mu.Lock()
	a.replies = append(a.replies, body)
	a.mu.Unlock()

	a.log.Info("Reply received",
		zap.Any("reply_to_uuid", body["reply_to_uuid"]),
		zap.Any("subject", body["subject"]))
	c.JSON(http.StatusOK, gin.H{"id": uuid.NewString(), "status": "sent"})
}

func (a *fakeAPI) seed(c *gin.Context) {
	var e email
	if err := c.ShouldBindJSON(&e); err != nil || e.Lead == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lead is required"})
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt == "" {
		e.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	a.mu.Lock()
	a.emails = append(a.emails, e)
	a.mu.Unlock()
	c.JSON(http.StatusCreated, e)
}
