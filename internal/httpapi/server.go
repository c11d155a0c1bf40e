// Package httpapi implements the ops HTTP surface: a small gin
// router exposing manual-approval resolution, health, and metrics
// endpoints alongside the live event websocket.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/hyperionlabs/mergebot/internal/aggregator"
	"github.com/hyperionlabs/mergebot/internal/events"
)

// ApprovalDecision is what a POST /v1/approvals/{sessionId} body carries.
type ApprovalDecision struct {
	Approved bool `json:"approved"`
	Reason string `json:"reason"`
}

// pendingApproval is a single in-flight awaitApproval suspension, resolved exactly once by the matching POST.
type pendingApproval struct {
	resolved chan ApprovalDecision
}

// ApprovalRegistry lets the Engine's manual-mode awaitApproval block on an
// external HTTP call resolving it, and lets the HTTP handler deliver that
// resolution exactly once.
type ApprovalRegistry struct {
	mu sync.Mutex
	pending map[string]*pendingApproval
}

func NewApprovalRegistry() *ApprovalRegistry {
	return &ApprovalRegistry{pending: make(map[string]*pendingApproval)}
}

// Await registers sessionID and blocks until Resolve is called for it or
// ctx is done.
func (r *ApprovalRegistry) Await(ctx context.Context, sessionID string) (ApprovalDecision, error) {
	r.mu.Lock()
	p, ok := r.pending[sessionID]
	if !ok {
		p = &pendingApproval{resolved: make(chan ApprovalDecision, 1)}
		r.pending[sessionID] = p
	}
	r.mu.Unlock()

	select {
	case d := <-p.resolved:
		r.mu.Lock()
		delete(r.pending, sessionID)
		r.mu.Unlock()
		return d, nil
	case <-ctx.Done():
		return ApprovalDecision{}, ctx.Err()
	}
}

// Resolve delivers a decision to whichever Await call is waiting on
// sessionID; it registers the slot itself if no one is waiting yet, so
// resolution order relative to Await's caller doesn't matter.
func (r *ApprovalRegistry) Resolve(sessionID string, decision ApprovalDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[sessionID]
	if !ok {
		p = &pendingApproval{resolved: make(chan ApprovalDecision, 1)}
		r.pending[sessionID] = p
	}
	select {
	case p.resolved <- decision:
	default: // already resolved; later decisions are dropped
	}
}

// Server wires the gin router /
type Server struct {
	engine *gin.Engine
	approval *ApprovalRegistry
	bus *events.Bus
	jwtKey []byte
	log *zap.Logger
	startedAt time.Time

	aggMetrics func() aggregator.Snapshot
}

// Config configures the HTTP surface; JWTSecret empty disables auth
// middleware entirely (dev-mode default).
type Config struct {
	JWTSecret string
	AllowOrigins []string
}

func NewServer(cfg Config, approval *ApprovalRegistry, bus *events.Bus, aggMetrics func() aggregator.Snapshot, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsCfg))

	s := &Server{
		engine: r,
		approval: approval,
		bus: bus,
		jwtKey: []byte(cfg.JWTSecret),
		log: log,
		startedAt: time.Now(),
		aggMetrics: aggMetrics,
	}

	if cfg.JWTSecret != "" {
		r.Use(s.jwtMiddleware)
	}

	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", s.handleMetrics)
	r.POST("/v1/approvals/:sessionId", s.handleResolveApproval)

	if bus != nil {
		broadcaster := events.NewBroadcaster(bus, log)
		r.GET("/v1/events", broadcaster.HandleWebSocket)
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	if s.aggMetrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.aggMetrics())
}

func (s *Server) handleResolveApproval(c *gin.Context) {
	sessionID := c.Param("sessionId")
	var decision ApprovalDecision
	if err := c.ShouldBindJSON(&decision); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.approval.Resolve(sessionID, decision)
	c.JSON(http.StatusAccepted, gin.H{"sessionId": sessionID, "approved": decision.Approved})
}

// jwtMiddleware rejects requests without a bearer token signed with an
// HMAC method (HS256/384/512) under the configured secret. When a secret
// is configured it guards every route, /healthz included; with no secret
// it is not installed and every route is open.
func (s *Server) jwtMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	tokenStr := header[len(prefix):]
	_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.jwtKey, nil
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Next()
}
