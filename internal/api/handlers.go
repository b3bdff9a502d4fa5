// Package api wires up the Gin HTTP router with all handler functions.
//
// The wire contract:
//
//	POST /message    add a value (master)          → 201 body true
//	PUT  /message    store a replicated value      → 204 No Content
//	GET  /messages   read the consistent prefix    → 200 JSON array
//	GET  /heartbeat  liveness probe                → 200
//	POST /delay      inject a one-shot delay into the next PUT /message
//	GET  /delay      read the pending delay
//
// Mode, validation, and read-only failures all surface as 405 with the
// error string as the body.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"replicated-log/internal/node"
)

// Handler holds all dependencies injected from main.
type Handler struct {
	coordinator *node.Coordinator
	appName     string

	// delay is a one-shot sleep applied to the next PUT /message,
	// settable through /delay to imitate a slow secondary in tests.
	delayMu sync.Mutex
	delay   time.Duration
}

// NewHandler creates a Handler.
func NewHandler(c *node.Coordinator, appName string) *Handler {
	return &Handler{coordinator: c, appName: appName}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/message", h.AddValue)
	r.PUT("/message", h.SetValue)
	r.GET("/messages", h.GetValues)
	r.GET("/heartbeat", h.Heartbeat)

	r.POST("/delay", h.SetDelay)
	r.GET("/delay", h.GetDelay)

	// Operational surface.
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// ─── Log API ──────────────────────────────────────────────────────────────────

// AddValue handles POST /message
// Body: {"value": "<string>", "write_concern": <int|null>}
func (h *Handler) AddValue(c *gin.Context) {
	var body struct {
		Value        string `json:"value" binding:"required"`
		WriteConcern *int   `json:"write_concern"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusMethodNotAllowed, err.Error())
		return
	}

	if err := h.coordinator.AddValue(c.Request.Context(), body.Value, body.WriteConcern); err != nil {
		c.JSON(http.StatusMethodNotAllowed, err.Error())
		return
	}

	c.JSON(http.StatusCreated, true)
}

// SetValue handles PUT /message
// Body: {"key": <int>, "value": "<string>"}
//
// A duplicate key also answers 204: the write was dropped locally but the
// master's retry loop must still see it as acknowledged.
func (h *Handler) SetValue(c *gin.Context) {
	if d := h.takeDelay(); d > 0 {
		time.Sleep(d)
	}

	var body struct {
		Key   uint64 `json:"key" binding:"required"`
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusMethodNotAllowed, err.Error())
		return
	}

	if _, err := h.coordinator.SetValue(body.Key, body.Value); err != nil {
		c.JSON(http.StatusMethodNotAllowed, err.Error())
		return
	}

	c.Status(http.StatusNoContent)
}

// GetValues handles GET /messages — the consistent-prefix list.
func (h *Handler) GetValues(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.GetValues())
}

// Heartbeat handles GET /heartbeat. The status code is the contract.
func (h *Handler) Heartbeat(c *gin.Context) {
	c.String(http.StatusOK, "alive")
}

// ─── Delay injection ──────────────────────────────────────────────────────────

// SetDelay handles POST /delay
// Body: {"value": <seconds>}
func (h *Handler) SetDelay(c *gin.Context) {
	var body struct {
		Value int `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.delayMu.Lock()
	h.delay = time.Duration(body.Value) * time.Second
	h.delayMu.Unlock()

	c.JSON(http.StatusOK, gin.H{"delay": body.Value})
}

// GetDelay handles GET /delay.
func (h *Handler) GetDelay(c *gin.Context) {
	h.delayMu.Lock()
	d := h.delay
	h.delayMu.Unlock()

	c.JSON(http.StatusOK, gin.H{"delay": int(d / time.Second)})
}

// takeDelay returns the pending delay and resets it.
func (h *Handler) takeDelay() time.Duration {
	h.delayMu.Lock()
	defer h.delayMu.Unlock()
	d := h.delay
	h.delay = 0
	return d
}

// ─── Operational ──────────────────────────────────────────────────────────────

// Health handles GET /health — node identity plus follower statuses.
func (h *Handler) Health(c *gin.Context) {
	out := gin.H{
		"node":      h.appName,
		"mode":      h.coordinator.Mode(),
		"read_only": h.coordinator.ReadOnly(),
	}

	if view := h.coordinator.View(); view != nil {
		followers := gin.H{}
		for _, f := range view.Followers() {
			followers[f.Name()] = f.Status().String()
		}
		out["followers"] = followers
		out["alive"] = view.AliveCount()
		out["quorum"] = view.Quorum()
	}

	c.JSON(http.StatusOK, out)
}
