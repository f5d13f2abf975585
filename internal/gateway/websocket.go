package gateway

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/promptforge/enhancer-api/internal/models"
	"github.com/promptforge/enhancer-api/internal/orchestration"
)

var wsTracer = otel.Tracer("session-stream")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking for production
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// SessionStream pushes session state events to WebSocket subscribers so the
// client never polls for round progress.
type SessionStream struct {
	service *orchestration.Service
	tracer  trace.Tracer
}

// NewSessionStream creates a new session event stream handler
func NewSessionStream(service *orchestration.Service) *SessionStream {
	return &SessionStream{
		service: service,
		tracer:  wsTracer,
	}
}

// StreamSession handles WebSocket /api/ws/sessions/:id
// @Summary Stream session state events
// @Description WebSocket endpoint pushing state transitions for one session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 101 "Switching Protocols"
// @Failure 404 {object} models.ErrorResponse
// @Router /ws/sessions/{id} [get]
func (s *SessionStream) StreamSession(c *gin.Context) {
	_, span := s.tracer.Start(c.Request.Context(), "session_stream.stream_session")
	defer span.End()

	sessionID := c.Param("id")
	span.SetAttributes(attribute.String("session.id", sessionID))

	machine, ok := s.service.Sessions().Get(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Session not found", Code: models.ErrCodeSessionNotFound})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		log.Printf(`{"level":"error","message":"Failed to upgrade connection","session_id":"%s","error":"%v"}`, sessionID, err)
		return
	}
	defer conn.Close()

	events, cancel := machine.Events.Subscribe()
	defer cancel()

	log.Printf(`{"level":"info","message":"Session stream opened","session_id":"%s"}`, sessionID)

	// Reader goroutine: its only job is to notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Opening event so the client renders current state without waiting for
	// the next transition.
	snap := machine.Snapshot()
	opening := models.SessionEvent{
		SessionID: sessionID,
		EventType: models.EventTypeStateChanged,
		Data: map[string]any{
			"state":          string(snap.State),
			"current_round":  snap.CurrentRound,
			"total_rounds":   snap.TotalRounds,
			"answered_count": snap.AnsweredCount,
		},
		Timestamp: time.Now().UTC(),
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(opening); err != nil {
		span.RecordError(err)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, open := <-events:
			if !open {
				// Session evicted or reset torn down; tell the client.
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				span.RecordError(err)
				log.Printf(`{"level":"warn","message":"Session stream write failed","session_id":"%s","error":"%v"}`, sessionID, err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			log.Printf(`{"level":"info","message":"Session stream closed by client","session_id":"%s"}`, sessionID)
			return
		}
	}
}
