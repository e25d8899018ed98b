// Package httpServer implements the HTTP/WebSocket surface (C7): the
// WebSocket upgrade route that attaches a Subscriber Session, and the small
// REST surface around the stream registry.
package httpServer

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rtsp2ws/internal/loglevel"
	"rtsp2ws/internal/metrics"
	"rtsp2ws/internal/registry"
	"rtsp2ws/internal/wsrelay"
)

// Version is the build-time version string, overridable via
// -ldflags="-X rtsp2ws/httpServer.Version=...".
var Version = "dev"

// Server wraps the HTTP server with its dependencies.
type Server struct {
	router   *gin.Engine
	registry registry.Registry
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// New creates a new HTTP server bound to the given stream registry.
func New(reg registry.Registry, m *metrics.Metrics) *Server {
	s := &Server{
		registry: reg,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	router := gin.New()
	router.Use(gin.Recovery(), s.instrument())

	api := router.Group("/api")
	{
		api.GET("/streams", s.handleListStreams)
		api.GET("/version", s.handleVersion)
		api.GET("/log", s.handleLog)
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	router.GET("/:name", s.handleSubscribe)

	s.router = router
}

// instrument records request counts and latency for every route, per the
// teacher's `HTTPRequests`/`HTTPDuration` metrics shape.
func (s *Server) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start).Seconds())
	}
}

// Run starts the HTTP server and blocks until it stops, listening plain or
// TLS depending on whether certFile/keyFile are non-empty; the server
// performs its own graceful shutdown when ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr, certFile, keyFile string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownErr <- srv.Shutdown(context.Background())
	}()

	var err error
	if certFile != "" && keyFile != "" {
		err = srv.ListenAndServeTLS(certFile, keyFile)
	} else {
		err = srv.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return <-shutdownErr
}

// handleSubscribe upgrades GET /<name> to a WebSocket and attaches a new
// Subscriber Session to that stream; 404 if the path is not registered.
func (s *Server) handleSubscribe(c *gin.Context) {
	path := "/" + c.Param("name")

	stream, ok := s.registry.Lookup(path)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		loglevel.Logf(loglevel.Warn, "httpServer: websocket upgrade failed for %s: %v", path, err)
		return
	}

	wsrelay.New(conn, stream, s.metrics).Serve(c.Request.Context())
}

// streamInfo is the per-stream shape returned by GET /api/streams.
type streamInfo struct {
	Count int64 `json:"count"`
}

// handleListStreams reports the live subscriber count for every registered
// stream.
func (s *Server) handleListStreams(c *gin.Context) {
	out := make(map[string]streamInfo, len(s.registry))
	for path, stream := range s.registry {
		out[path] = streamInfo{Count: stream.Count()}
	}
	c.JSON(http.StatusOK, out)
}

// handleVersion reports the build version.
func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, Version)
}

// handleLog gets or sets the process's log verbosity via ?level=.
func (s *Server) handleLog(c *gin.Context) {
	if name := c.Query("level"); name != "" {
		lvl, err := loglevel.Parse(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		loglevel.Set(lvl)
	}
	c.JSON(http.StatusOK, gin.H{"level": loglevel.Current().String()})
}
