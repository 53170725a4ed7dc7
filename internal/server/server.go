// Package server exposes the meeting pipeline over HTTP: workflow
// submission, run lookup, free-slot queries and live progress streams.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"meetflow/internal/calendar"
	"meetflow/internal/logging"
	"meetflow/internal/orchestrator"
	"meetflow/internal/progress"
)

// Runner executes one workflow.
type Runner interface {
	Run(ctx context.Context, in orchestrator.Input) (orchestrator.Result, error)
}

// Config tunes the HTTP surface.
type Config struct {
	AllowedOrigins    []string
	MaxConcurrentRuns int64
	RunHistory        int
	HeartbeatInterval time.Duration
	// AutoExecute is used when a submission does not say.
	AutoExecute    bool
	SlotSearchDays int
	Hours          calendar.WorkingHours
	Debug          bool
}

// Dependencies wires the server. Runner and Broadcaster are required.
type Dependencies struct {
	Runner      Runner
	Calendar    calendar.Store
	Broadcaster *progress.Broadcaster
	Health      *HealthChecker
	Gatherer    prometheus.Gatherer
	Logger      logging.Logger
	Config      Config
	Now         func() time.Time
}

// Server owns the gin engine and the background runs it starts.
type Server struct {
	engine      *gin.Engine
	runner      Runner
	calendar    calendar.Store
	broadcaster *progress.Broadcaster
	health      *HealthChecker
	runs        *RunStore
	slots       *semaphore.Weighted
	upgrader    websocket.Upgrader
	cfg         Config
	logger      logging.Logger
	now         func() time.Time
	startTime   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the server and its routes.
func New(deps Dependencies) (*Server, error) {
	if deps.Runner == nil {
		return nil, errors.New("server: runner is required")
	}
	if deps.Broadcaster == nil {
		return nil, errors.New("server: broadcaster is required")
	}
	cfg := deps.Config
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 4
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.SlotSearchDays <= 0 {
		cfg.SlotSearchDays = 14
	}
	if cfg.Hours.Location == nil {
		cfg.Hours = calendar.DefaultWorkingHours()
	}
	runs, err := NewRunStore(cfg.RunHistory)
	if err != nil {
		return nil, err
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	health := deps.Health
	if health == nil {
		health = NewHealthChecker()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	logger := logging.OrNop(deps.Logger)
	engine.Use(gin.Recovery(), requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		engine:      engine,
		runner:      deps.Runner,
		calendar:    deps.Calendar,
		broadcaster: deps.Broadcaster,
		health:      health,
		runs:        runs,
		slots:       semaphore.NewWeighted(cfg.MaxConcurrentRuns),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		cfg:       cfg,
		logger:    logger,
		now:       now,
		startTime: now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := engine.Group("/api")
	{
		api.POST("/workflows", s.handleSubmit)
		api.GET("/workflows", s.handleListRuns)
		api.GET("/workflows/:id", s.handleGetRun)
		api.GET("/calendar/slots", s.handleSlots)
		api.GET("/events", s.handleSSE)
		api.GET("/events/ws", s.handleWebSocket)
	}
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Shutdown cancels background runs and waits for them, or for ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" {
			return
		}
		logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	components := s.health.CheckAll(ctx)
	c.JSON(http.StatusOK, gin.H{
		"status":     overallStatus(components),
		"uptime":     s.now().Sub(s.startTime).Round(time.Second).String(),
		"components": components,
	})
}
