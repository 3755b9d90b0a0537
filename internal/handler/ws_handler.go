package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
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

// WSHandler streams attempt timers over WebSocket.
type WSHandler struct {
	attemptService *service.AttemptService
	interval       time.Duration
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler pushing a snapshot every interval.
func NewWSHandler(attemptService *service.AttemptService, interval time.Duration, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		interval:       interval,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// TimerStream godoc
// WS /ws/v1/student/attempts/:attempt_id/timer
// Pushes the authoritative countdown until the attempt ends or the client leaves.
func (h *WSHandler) TimerStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID := c.Param("attempt_id")
	studentID := claims.UserID

	// Reject before upgrading so the client sees a plain HTTP error.
	if _, err := h.attemptService.Timer(c.Request.Context(), studentID, attemptID); err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) || errors.Is(err, service.ErrCourseNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Int("student_id", studentID).Str("attempt_id", attemptID).Logger()
	wsLog.Info().Msg("Timer feed connected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Only this goroutine writes; the reader forwards pings.
	pings := make(chan struct{}, 1)
	go func() {
		defer cancel()
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			if msg.Action == ws.ActionPing {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if !h.pushTimer(ctx, conn, wsLog, studentID, attemptID) {
			return
		}
		select {
		case <-ctx.Done():
			wsLog.Debug().Msg("Timer feed closed")
			return
		case <-pings:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}
		case <-ticker.C:
		}
	}
}

// pushTimer writes one snapshot. It returns false once the feed should end.
func (h *WSHandler) pushTimer(ctx context.Context, conn *websocket.Conn, log zerolog.Logger, studentID int, attemptID string) bool {
	v, err := h.attemptService.Timer(ctx, studentID, attemptID)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to read timer")
			_ = ws.WriteError(conn, "timer unavailable")
		}
		return false
	}
	ev := ws.TimerEvent{
		AttemptID:        attemptID,
		TimeLimitSeconds: v.TimeLimitSeconds,
		RemainingSeconds: v.RemainingSeconds,
		IsExpired:        v.IsExpired,
	}
	if err := ws.WriteTimer(conn, ev); err != nil {
		log.Debug().Err(err).Msg("Timer write failed")
		return false
	}
	return true
}
