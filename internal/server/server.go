// ABOUTME: Reference time server for netclock clients
// ABOUTME: Serves JSON and trace time endpoints and hosts remote executor sessions over WebSocket
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/netclock-go/internal/discovery"
	"github.com/Resonate-Protocol/netclock-go/internal/executor"
	"github.com/Resonate-Protocol/netclock-go/internal/metrics"
	"github.com/Resonate-Protocol/netclock-go/internal/version"
	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
	"github.com/Resonate-Protocol/netclock-go/pkg/protocol"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// TimePath serves {time, timestamp, serverTime, iso}
	TimePath = "/time"

	// TracePath mimics the Cloudflare trace endpoint
	TracePath = "/cdn-cgi/trace"

	// ExecutorPath upgrades to a remote executor session
	ExecutorPath = "/executor"

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	Debug      bool
	UseTUI     bool

	// Skew is added to every reported time, for demos
	Skew time.Duration

	Logger   logger.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// Now overrides the wall clock (tests)
	Now func() time.Time
}

// Server represents the time server
type Server struct {
	config   Config
	serverID string
	log      logger.Logger
	now      func() time.Time

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// HTTP server
	router     *gin.Engine
	httpServer *http.Server

	// Executor sessions
	sessions   map[string]*Session
	sessionsMu sync.RWMutex
	requests   atomic.Uint64

	// mDNS discovery
	mdnsManager *discovery.Manager

	// TUI
	tui       *ServerTUI
	startTime time.Time

	// Control
	ctx        context.Context
	cancel     context.CancelFunc
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Session is one connected remote executor
type Session struct {
	ID         string
	RemoteAddr string
	Started    time.Time
}

// New creates a new server instance
func New(config Config) *Server {
	if config.Name == "" {
		config.Name = version.Product
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		log:      logger.OrNop(config.Logger),
		now:      config.Now,
		upgrader: websocket.Upgrader{
			// Executor sessions are plain JSON commands with no credentials
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions:  make(map[string]*Session),
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		stopChan:  make(chan struct{}),
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the router, mainly for httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	if !s.config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Cache-Control", "Pragma", "Expires"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(requestLogger(s.log))
	r.Use(s.requestCounter())
	if s.config.Metrics != nil {
		r.Use(requestMetrics(s.config.Metrics))
	}

	r.GET(TimePath, s.handleTime)
	r.GET(TracePath, s.handleTrace)
	r.GET(ExecutorPath, s.handleExecutor)
	r.GET("/health", s.handleHealth)
	if s.config.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))
	}

	return r
}

// Start runs the server until Stop, a TUI quit or a listener failure
func (s *Server) Start() error {
	// Start TUI if enabled
	if s.config.UseTUI {
		s.tui = NewServerTUI()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tui.Start(s.status())
		}()

		// Give TUI time to initialize
		time.Sleep(100 * time.Millisecond)
	}

	s.log.Info("Server starting: %s (ID: %s)", s.config.Name, s.serverID)
	if s.config.Skew != 0 {
		s.log.Warning("Reporting skewed time: %v", s.config.Skew)
	}

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        TimePath,
			Logger:      s.log,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.Error("Failed to start mDNS advertisement: %v", err)
		} else {
			s.log.Info("mDNS advertisement started")
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Info("Time server listening on %s", addr)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		s.log.Info("Server shutting down...")
	case <-tuiQuitChan:
		s.log.Info("TUI quit requested, shutting down...")
	case err := <-errChan:
		s.log.Error("HTTP server error: %v", err)
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	// Hijacked executor connections are not covered by Shutdown
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("HTTP server shutdown error: %v", err)
	}

	s.wg.Wait()
	s.log.Info("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// serverNow returns the reported (possibly skewed) time
func (s *Server) serverNow() time.Time {
	return s.now().Add(s.config.Skew)
}

func (s *Server) handleTime(c *gin.Context) {
	now := s.serverNow()
	ms := now.UnixMilli()

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"time":       ms,
		"timestamp":  ms,
		"serverTime": ms,
		"iso":        now.UTC().Format(isoMillis),
	})
}

// handleTrace writes key=value lines like the Cloudflare trace endpoint
func (s *Server) handleTrace(c *gin.Context) {
	now := s.serverNow()
	seconds := strconv.FormatFloat(float64(now.UnixMilli())/1000, 'f', 3, 64)

	body := "fl=" + s.serverID[:8] + "\n" +
		"h=" + c.Request.Host + "\n" +
		"ip=" + c.ClientIP() + "\n" +
		"ts=" + seconds + "\n" +
		"visit_scheme=http\n" +
		"uag=" + c.Request.UserAgent() + "\n" +
		"colo=LOCAL\n" +
		"http=" + c.Request.Proto + "\n"

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(body))
}

func (s *Server) handleHealth(c *gin.Context) {
	s.sessionsMu.RLock()
	sessions := len(s.sessions)
	s.sessionsMu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"product":  version.Product,
		"version":  version.Version,
		"serverId": s.serverID,
		"uptime":   time.Since(s.startTime).Round(time.Second).String(),
		"sessions": sessions,
	})
}

// handleExecutor upgrades the request and runs an executor until the peer leaves
func (s *Server) handleExecutor(c *gin.Context) {
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.shutdownMu.RUnlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade error: %v", err)
		return
	}

	transport := protocol.NewWSTransport(conn, s.log)
	defer transport.Close()

	opts := executor.Options{Logger: s.log}
	if s.config.Metrics != nil {
		opts.Observer = s.config.Metrics
	}
	exec := executor.New(transport, opts)

	session := &Session{
		ID:         exec.ID(),
		RemoteAddr: c.Request.RemoteAddr,
		Started:    time.Now(),
	}
	s.addSession(session)
	defer s.removeSession(session.ID)

	s.log.Info("Executor session %s opened from %s", session.ID, session.RemoteAddr)

	if err := exec.Run(s.ctx); err != nil && err != context.Canceled {
		s.log.Error("Executor session %s ended: %v", session.ID, err)
	}
}

func (s *Server) addSession(session *Session) {
	s.sessionsMu.Lock()
	s.sessions[session.ID] = session
	s.sessionsMu.Unlock()

	s.updateTUI()
}

func (s *Server) removeSession(id string) {
	s.sessionsMu.Lock()
	delete(s.sessions, id)
	s.sessionsMu.Unlock()

	s.log.Info("Executor session %s closed", id)
	s.updateTUI()
}

// Sessions returns a snapshot of connected executor sessions
func (s *Server) Sessions() []Session {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()

	out := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	return out
}
