package webchat

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const DefaultRoomID = "default"

// NewWSHTTPHandler upgrades the request and attaches the connection to the
// room named by the "room" query parameter, or defaultRoom when absent.
func NewWSHTTPHandler(rooms *RoomManager, upgrader websocket.Upgrader, defaultRoom string) http.HandlerFunc {
	if strings.TrimSpace(defaultRoom) == "" {
		defaultRoom = DefaultRoomID
	}
	return func(w http.ResponseWriter, req *http.Request) {
		if rooms == nil {
			http.Error(w, "room manager not initialized", http.StatusServiceUnavailable)
			return
		}
		roomID := strings.TrimSpace(req.URL.Query().Get("room"))
		if roomID == "" {
			roomID = defaultRoom
		}

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Debug().Err(err).Str("component", "webchat").Str("room_id", roomID).Msg("ws upgrade failed")
			return
		}
		// the connection outlives the request; attach with a detached context
		if err := rooms.Attach(context.WithoutCancel(req.Context()), roomID, conn); err != nil {
			log.Warn().Err(err).Str("component", "webchat").Str("room_id", roomID).Msg("ws attach failed")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"failed to join room"}`))
			_ = conn.Close()
			return
		}
		log.Info().Str("component", "webchat").Str("room_id", roomID).Str("remote", conn.RemoteAddr().String()).Msg("ws connected")
	}
}
