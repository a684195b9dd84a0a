package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/models"
	"github.com/shibazach/rag-local-dev-sub000/internal/services/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local development tool; no cross-origin policy
	},
}

// WebSocketHandler streams a job's progress events to a client. Detail
// events may be throttled; stage transitions and the terminal event are
// always forwarded.
type WebSocketHandler struct {
	orchestrator  *pipeline.Orchestrator
	eventInterval time.Duration
	logger        arbor.ILogger
}

// NewWebSocketHandler creates the progress streaming handler
func NewWebSocketHandler(orchestrator *pipeline.Orchestrator, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		orchestrator:  orchestrator,
		eventInterval: common.ParseDurationOr(config.PageEventInterval, 0),
		logger:        logger,
	}
}

// HandleProgress upgrades the connection and drains the job's event
// channel until the terminal event closes it.
func (h *WebSocketHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	events, err := h.orchestrator.Events(jobID)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, "failed to open progress stream")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Discard client frames so close handshakes are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var throttler *rate.Limiter
	if h.eventInterval > 0 {
		throttler = rate.NewLimiter(rate.Every(h.eventInterval), 1)
	}

	h.logger.Debug().Str("job_id", jobID).Msg("Progress stream opened")

	for event := range events {
		if h.shouldDrop(event, throttler) {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Debug().Err(err).Str("job_id", jobID).Msg("Progress stream client gone")
			return
		}
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
		time.Now().Add(time.Second))

	h.logger.Debug().Str("job_id", jobID).Msg("Progress stream closed")
}

// shouldDrop throttles intra-stage detail events. Stage transitions,
// stage completions, and the terminal event always pass.
func (h *WebSocketHandler) shouldDrop(event models.ProgressEvent, throttler *rate.Limiter) bool {
	if throttler == nil {
		return false
	}
	if event.Terminal != "" || event.Phase == models.PhaseCompleted || event.Detail == "" {
		return false
	}
	return !throttler.Allow()
}
