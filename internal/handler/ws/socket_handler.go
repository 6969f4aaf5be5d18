package wshandler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"xconfess-notify/internal/domain"
	"xconfess-notify/internal/middleware"
	"xconfess-notify/internal/usecase"
	"xconfess-notify/pkg/notifier/ws"
)

type WSHandler struct {
	manager *ws.Manager
	uc      *usecase.NotificationUsecase
}

func NewWSHandler(manager *ws.Manager, uc *usecase.NotificationUsecase) *WSHandler {
	return &WSHandler{manager: manager, uc: uc}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleNotifications upgrades HTTP -> WebSocket and registers the
// connection with the fan-out manager. Auth runs before the upgrade, so
// a bad token never reaches websocket framing.
func (h *WSHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	log.Printf("[WS] connected userID=%s", userID)

	c := h.manager.Add(userID, conn)
	defer h.manager.Remove(c)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		c.Touch()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		c.Touch()

		var ev inboundEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.WriteEvent(domain.WSError, map[string]string{"message": "malformed event"})
			continue
		}
		h.dispatch(r, c, userID, ev)
	}
}

// inboundEvent keeps the payload raw so each command can decode its own
// shape.
type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// dispatch handles one client command. Confirmations go only to the
// initiating connection; other live connections of the same user are
// untouched.
func (h *WSHandler) dispatch(r *http.Request, c *ws.Connection, userID string, ev inboundEvent) {
	ctx := r.Context()

	switch ev.Event {
	case domain.WSMarkRead:
		var body struct {
			NotificationID string `json:"notificationId"`
		}
		if err := json.Unmarshal(ev.Data, &body); err != nil || body.NotificationID == "" {
			c.WriteEvent(domain.WSError, map[string]string{"message": "notificationId required"})
			return
		}
		if err := h.uc.MarkAsRead(ctx, body.NotificationID, userID); err != nil {
			c.WriteEvent(domain.WSError, map[string]string{"message": "failed to mark notification read"})
			return
		}
		c.WriteEvent(domain.WSNotificationRead, map[string]string{"notificationId": body.NotificationID})
		h.pushUnreadCount(r, c, userID)

	case domain.WSMarkAllRead:
		if err := h.uc.MarkAllAsRead(ctx, userID); err != nil {
			c.WriteEvent(domain.WSError, map[string]string{"message": "failed to mark all read"})
			return
		}
		c.WriteEvent(domain.WSAllRead, map[string]bool{"success": true})
		h.pushUnreadCount(r, c, userID)

	case domain.WSGetUnreadCount:
		h.pushUnreadCount(r, c, userID)

	default:
		c.WriteEvent(domain.WSError, map[string]string{"message": "unknown event: " + ev.Event})
	}
}

func (h *WSHandler) pushUnreadCount(r *http.Request, c *ws.Connection, userID string) {
	count, err := h.uc.CountUnread(r.Context(), userID)
	if err != nil {
		c.WriteEvent(domain.WSError, map[string]string{"message": "failed to fetch unread count"})
		return
	}
	c.WriteEvent(domain.WSUnreadCount, map[string]int{"count": count})
}
