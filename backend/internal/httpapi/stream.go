package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// streamMessage is one frame pushed to the view layer
type streamMessage struct {
	Type    string `json:"type"`
	Session string `json:"sessionId"`
	View    any    `json:"view,omitempty"`
}

func (h *EditorHandler) sendJSON(ws *websocket.Conn, v any) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := ws.WriteJSON(v)
	if err != nil {
		h.logger.Warn("Failed to write WebSocket JSON", zap.Error(err))
	}
	return err
}

// stream pushes the regenerated view after every change until the client
// goes away or the session is closed.
func (h *EditorHandler) stream(c *gin.Context) {
	s := current(c)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade the websocket", zap.Error(err))
		return
	}
	defer ws.Close()

	views, cancel := s.Store.Subscribe()
	defer cancel()

	log := h.logger.With(zap.String("session", s.ID))
	log.Info("Websocket client connected")

	// The client sends nothing; reading only detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case v, ok := <-views:
			if !ok {
				_ = h.sendJSON(ws, streamMessage{Type: "closed", Session: s.ID})
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := h.sendJSON(ws, streamMessage{Type: "view", Session: s.ID, View: v}); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			log.Info("Websocket client disconnected")
			return
		}
	}
}
