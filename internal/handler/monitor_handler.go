package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/examtrust/examtrust-backend/internal/config"
	"github.com/examtrust/examtrust-backend/internal/middleware"
	"github.com/examtrust/examtrust-backend/internal/response"
	"github.com/examtrust/examtrust-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	monitorKeepAlive    = 30 * time.Second
	monitorWriteTimeout = 10 * time.Second
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler streams live proctoring events to staff over WebSocket.
type MonitorHandler struct {
	rdb      *redis.Client
	catalog  *service.CatalogService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, catalog *service.CatalogService, log zerolog.Logger, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		rdb:      rdb,
		catalog:  catalog,
		log:      log.With().Str("component", "monitor_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// StreamExamEvents godoc
// WS /ws/proctor/exams/:examId/stream
//
// Upgrades to WebSocket and forwards every proctoring event published
// for the exam. Payloads are relayed verbatim from the Pub/Sub channel.
func (h *MonitorHandler) StreamExamEvents(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, "authentication required")
		return
	}
	if !p.IsStaff() {
		response.Fail(c, http.StatusForbidden, "staff role required")
		return
	}

	examID, err := uuid.Parse(c.Param("examId"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid examId format")
		return
	}

	if _, err := h.catalog.Get(c.Request.Context(), examID); err != nil {
		response.FromError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	reqCtx := c.Request.Context()

	channelName := config.CacheKey.ExamMonitorChannel(examID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	wsLog := h.log.With().
		Str("exam_id", examID.String()).
		Str("viewer_id", p.ID.String()).
		Logger()
	wsLog.Info().Msg("Staff attached to live proctor stream")

	// Drain client frames so close and pong handling keep working.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	keepAliveTicker := time.NewTicker(monitorKeepAlive)
	defer keepAliveTicker.Stop()

	for {
		select {
		case <-reqCtx.Done():
			wsLog.Info().Msg("Staff detached from live proctor stream")
			return

		case <-clientGone:
			wsLog.Debug().Msg("Monitor connection closed by client")
			return

		case msg, ok := <-ch:
			if !ok {
				wsLog.Warn().Msg("Monitor Pub/Sub channel closed")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(monitorWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				wsLog.Debug().Err(err).Msg("Monitor write failed")
				return
			}

		case <-keepAliveTicker.C:
			deadline := time.Now().Add(monitorWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				wsLog.Debug().Err(err).Msg("Monitor keepalive failed")
				return
			}
		}
	}
}
