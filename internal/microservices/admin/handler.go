package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"eventcast/internal/microservices/tcp"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EventServer is the part of the TCP server the admin API drives.
type EventServer interface {
	BroadcastEvent(ev tcp.Event) (int, error)
	ConnectionIDs() []string
}

type BroadcastRequest struct {
	Opcode  *uint8 `json:"opcode" binding:"required"`
	Payload string `json:"payload"`
}

type BroadcastResponse struct {
	Attempted int      `json:"attempted"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

type ConnectionsResponse struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

type Handler struct {
	server   EventServer
	gatherer prometheus.Gatherer // nil disables /metrics
	logger   *slog.Logger
}

func NewHandler(server EventServer, gatherer prometheus.Gatherer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{server: server, gatherer: gatherer, logger: logger}
}

// RegisterRoutes mounts the admin endpoints on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/check-conn", h.CheckConn)
	r.GET("/connections", h.ListConnections)
	r.POST("/broadcast", h.Broadcast)
	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

func (h *Handler) CheckConn(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "event server is alive",
	})
}

func (h *Handler) ListConnections(c *gin.Context) {
	ids := h.server.ConnectionIDs()
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, ConnectionsResponse{Count: len(ids), IDs: ids})
}

func (h *Handler) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	attempted, err := h.server.BroadcastEvent(tcp.NewTextEvent(*req.Opcode, req.Payload))
	if errors.Is(err, tcp.ErrServerStopped) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, tcp.ErrFrameTooLarge) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := BroadcastResponse{Attempted: attempted}
	for _, sendErr := range sendErrors(err) {
		resp.Failed++
		resp.Errors = append(resp.Errors, sendErr.Error())
	}

	h.logger.Info("admin_broadcast",
		"opcode", *req.Opcode,
		"attempted", resp.Attempted,
		"failed", resp.Failed,
	)
	c.JSON(http.StatusOK, resp)
}

// sendErrors flattens the joined per-connection failures of a broadcast.
func sendErrors(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
