// Package api exposes a MIDI session over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leandrodaf/midiport/sdk/contracts"
)

// Server serves one MIDI session. The session's event buffer has a single
// consumer, so at most one of the events endpoints runs at a time.
type Server struct {
	client   contracts.ClientMIDI
	logger   contracts.Logger
	consumer sync.Mutex
	router   *gin.Engine
}

// NewServer builds the router for client.
func NewServer(client contracts.ClientMIDI, logger contracts.Logger) *Server {
	s := &Server{client: client, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), corsMiddleware())

	r.GET("/health", s.healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/ports", s.listPorts)
		v1.GET("/selection", s.getSelection)
		v1.PUT("/selection", s.putSelection)
		v1.DELETE("/selection", s.deleteSelection)
		v1.GET("/events", s.drainEvents)
		v1.GET("/events/stream", s.streamEvents)
	}

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", s.logger.Field().String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			s.logger.Field().String("method", c.Request.Method),
			s.logger.Field().String("path", c.FullPath()),
			s.logger.Field().Int("status", c.Writer.Status()),
			s.logger.Field().Duration("latency", time.Since(start)),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// statusFor maps client errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, contracts.ErrInvalidSelection):
		return http.StatusBadRequest
	case errors.Is(err, contracts.ErrPortUnavailable):
		return http.StatusNotFound
	case errors.Is(err, contracts.ErrPortBusy):
		return http.StatusConflict
	case errors.Is(err, contracts.ErrSessionStopped):
		return http.StatusGone
	case errors.Is(err, contracts.ErrDeviceEnumeration):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	s.failWith(c, err, gin.H{})
}

// failWith answers with the status for err and body plus the error text.
func (s *Server) failWith(c *gin.Context, err error, body gin.H) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", s.logger.Field().Error("error", err))
	}
	body["error"] = err.Error()
	c.JSON(status, body)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "midiport",
		"state":   s.client.State().String(),
	})
}

// listPorts refreshes the port list. A failed refresh still returns the
// previous list next to the error.
func (s *Server) listPorts(c *gin.Context) {
	ports, err := s.client.Enumerate()
	if err != nil {
		s.failWith(c, err, gin.H{"ports": ports})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ports": ports})
}

type selectionResponse struct {
	State    string                    `json:"state"`
	Selected bool                      `json:"selected"`
	Port     *contracts.PortDescriptor `json:"port,omitempty"`
}

func (s *Server) selection() selectionResponse {
	resp := selectionResponse{State: s.client.State().String()}
	if port, ok := s.client.Selected(); ok {
		resp.Selected = true
		resp.Port = &port
	}
	return resp
}

func (s *Server) getSelection(c *gin.Context) {
	c.JSON(http.StatusOK, s.selection())
}

// selectionRequest picks a port by list index or by display name.
type selectionRequest struct {
	Index *int   `json:"index"`
	Name  string `json:"name"`
}

func (s *Server) putSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	switch {
	case req.Index != nil:
		err = s.client.Select(*req.Index)
	case req.Name != "":
		err = s.client.SelectByName(req.Name)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "index or name is required"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.selection())
}

func (s *Server) deleteSelection(c *gin.Context) {
	if err := s.client.Close(); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// drainEvents returns the buffered events, at most ?max of them.
func (s *Server) drainEvents(c *gin.Context) {
	limit := 0
	if v := c.Query("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max must be a positive integer"})
			return
		}
		limit = n
	}

	if !s.consumer.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "an event stream is active"})
		return
	}
	defer s.consumer.Unlock()

	events := []contracts.MIDIEvent{}
	for ev := range s.client.Drain() {
		events = append(events, ev)
		if len(events) == limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "dropped": s.client.Dropped()})
}

// streamEvents pushes events as server-sent events until the client
// disconnects.
func (s *Server) streamEvents(c *gin.Context) {
	if !s.consumer.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "an event stream is active"})
		return
	}
	defer s.consumer.Unlock()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	events := s.client.Events(ctx)

	s.logger.Debug("event stream opened")
	c.Stream(func(_ io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent("midi", ev)
		return true
	})
	s.logger.Debug("event stream closed")
}
