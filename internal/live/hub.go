package live

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rfidattendance/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Hub serves the dashboard websocket.
type Hub struct {
	broker   Broker
	upgrader websocket.Upgrader
}

// NewHub creates a hub. origins lists allowed Origin headers; "*" allows any.
func NewHub(broker Broker, origins []string) *Hub {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Hub{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Filter decides whether a subscriber receives an event. A nil Filter passes everything.
type Filter func(Event) bool

// OwnedBy passes events whose payload names a teacher and subject that allow accepts.
// Events without a readable owner are dropped.
func OwnedBy(allow func(teacherID, subject string) bool) Filter {
	return func(evt Event) bool {
		var owner struct {
			TeacherID string `json:"teacherId"`
			Subject   string `json:"subject"`
		}
		if len(evt.Data) == 0 || json.Unmarshal(evt.Data, &owner) != nil {
			return false
		}
		return allow(owner.TeacherID, owner.Subject)
	}
}

// Serve upgrades the request and streams the events allow passes until either side goes away.
func (h *Hub) Serve(c *gin.Context, allow Filter) {
	logger := logging.FromContext(c.Request.Context())
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.broker.Subscribe(ctx)
	if err != nil {
		logger.Error("live subscribe failed", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeWait))
		return
	}

	// Reader: only needed to observe pongs and the client closing.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if allow != nil && !allow(evt) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				logger.Debug("live client write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
