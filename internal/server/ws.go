package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Event is pushed to "/events" subscribers. Clients refetch what they display on "changed".
type Event struct {
	Type string `json:"type"`
}

const (
	EventSubscribed = "subscribed"
	EventChanged    = "changed"
)

// closeStreams ends every open event stream, it is called on server shutdown
func (h *handler) closeStreams() {
	h.closeOnce.Do(func() {
		close(h.streamsDone)
	})
}

// events handles websocket connections on "/events" endpoint.
// Every change of the user's session is announced with a "changed" event,
// changes happening while a write is pending are coalesced.
func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "Missing Query Parameter \"user\"", http.StatusBadRequest)
		return
	}

	_, s, ok := h.sessionOf(w, r, userID)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		h.logger.Errorf("Cannot upgrade connection of user (id: %s): %v", userID, err)
		return
	}
	defer conn.Close()

	changed := make(chan struct{}, 1)
	cancel := s.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	// the client never sends anything meaningful, reading keeps pongs and close frames flowing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := h.writeEvent(conn, EventSubscribed); err != nil {
		return
	}

	h.logger.Debugf("User (id: %s) subscribed to events", userID)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-changed:
			if err := h.writeEvent(conn, EventChanged); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			h.logger.Debugf("User (id: %s) unsubscribed from events", userID)
			return
		case <-h.streamsDone:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server is shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

func (h *handler) writeEvent(conn *websocket.Conn, eventType string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Event{Type: eventType}); err != nil {
		h.logger.Errorf("Cannot write %q event: %v", eventType, err)
		return err
	}
	return nil
}
