// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package admin exposes a running telepathy Manager over HTTP.
//
//	GET    /stats                  statistics, pools and host memory
//	GET    /clients                live connections
//	DELETE /clients/:id            force-close a connection
//	POST   /clients/:id/messages   send the request body as one frame
package admin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/mem"
	"github.com/sirupsen/logrus"
	"github.com/someonegg/telepathy"
)

type Server struct {
	m      *telepathy.Manager
	log    logrus.FieldLogger
	engine *gin.Engine
	srv    *http.Server
}

func New(m *telepathy.Manager, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(logger(log))
	engine.Use(gin.Recovery())

	s := &Server{m: m, log: log, engine: engine}
	engine.GET("/stats", s.getStats)
	engine.GET("/clients", s.getClients)
	engine.DELETE("/clients/:id", s.deleteClient)
	engine.POST("/clients/:id/messages", s.postMessage)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until Shutdown, it returns nil after a clean
// shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.WithField("addr", addr).Info("admin: listening")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func logger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"status":    c.Writer.Status(),
			"latency":   time.Since(start),
			"client_ip": c.ClientIP(),
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
		})
		if c.Writer.Status() >= 400 {
			entry.Warn("admin: request")
		} else {
			entry.Debug("admin: request")
		}
	}
}

type memoryStatus struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

type statsResponse struct {
	Connections struct {
		Accepted int64 `json:"accepted"`
		Closed   int64 `json:"closed"`
		Rejected int64 `json:"rejected"`
		Active   int64 `json:"active"`
	} `json:"connections"`

	Frames struct {
		Received      int64   `json:"received"`
		ReceivedBytes int64   `json:"received_bytes"`
		ReceivedRate  float64 `json:"received_rate"`
		Sent          int64   `json:"sent"`
		SentBytes     int64   `json:"sent_bytes"`
		SentRate      float64 `json:"sent_rate"`
		Oversized     int64   `json:"oversized"`
	} `json:"frames"`

	Pool struct {
		Capacity int `json:"capacity"`
		Idle     int `json:"idle"`
	} `json:"pool"`

	Memory *memoryStatus `json:"memory,omitempty"`

	SystemTime string `json:"system_time"`
}

func (s *Server) getStats(c *gin.Context) {
	st := s.m.Statistics()

	var resp statsResponse
	resp.Connections.Accepted = st.Accepted
	resp.Connections.Closed = st.Closed
	resp.Connections.Rejected = st.Rejected
	resp.Connections.Active = st.Active
	resp.Frames.Received = st.ReceivedCount
	resp.Frames.ReceivedBytes = st.ReceivedBytes
	resp.Frames.ReceivedRate = st.ReceivedRate
	resp.Frames.Sent = st.SentCount
	resp.Frames.SentBytes = st.SentBytes
	resp.Frames.SentRate = st.SentRate
	resp.Frames.Oversized = st.Oversized
	resp.Pool.Capacity = st.Capacity
	resp.Pool.Idle = st.IdleContexts

	if vm, err := mem.VirtualMemory(); err == nil {
		resp.Memory = &memoryStatus{
			Total:       vm.Total,
			Used:        vm.Used,
			UsedPercent: vm.UsedPercent,
		}
	} else {
		s.log.WithError(err).Debug("admin: virtual memory unavailable")
	}

	resp.SystemTime = time.Now().Format(time.RFC3339)
	c.JSON(http.StatusOK, resp)
}

type clientInfo struct {
	ID          uint64    `json:"id"`
	Remote      string    `json:"remote"`
	ConnectedAt time.Time `json:"connected_at"`
	Pending     int       `json:"pending"`
}

func (s *Server) getClients(c *gin.Context) {
	conns := s.m.Conns()
	list := make([]clientInfo, 0, len(conns))
	for _, conn := range conns {
		list = append(list, clientInfo{
			ID:          conn.ID(),
			Remote:      conn.RemoteAddr().String(),
			ConnectedAt: conn.ConnectTime(),
			Pending:     conn.Pending(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"clients": list, "total": len(list)})
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
		return 0, false
	}
	return id, true
}

func (s *Server) deleteClient(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if !s.m.CloseClient(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": telepathy.ErrConnNotFound.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) postMessage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	limit := int64(s.m.Config().MaxFrameSize)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch err := s.m.SendMessage(id, body); err {
	case nil:
		c.Status(http.StatusAccepted)
	case telepathy.ErrConnNotFound, telepathy.ErrConnClosed:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case telepathy.ErrFrameTooLarge:
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case telepathy.ErrSendQueueFull:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
