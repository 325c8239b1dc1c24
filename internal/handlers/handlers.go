package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"github.com/Homeroom-Remote/homeroom-server/internal/models"
	"github.com/Homeroom-Remote/homeroom-server/internal/rooms"
	"github.com/Homeroom-Remote/homeroom-server/internal/store"
	"github.com/Homeroom-Remote/homeroom-server/internal/utils"
)

type Handlers struct {
	manager      *rooms.RoomManager
	store        *store.RedisStore
	upgrader     websocket.Upgrader
	webrtcConfig webrtc.Configuration
}

func NewHandlers(manager *rooms.RoomManager, meetingStore *store.RedisStore) *Handlers {
	return &Handlers{
		manager:      manager,
		store:        meetingStore,
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		webrtcConfig: utils.GetWebRTCConfig(),
	}
}

// Health check endpoint
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// GetWebRTCConfig hands clients the ICE server configuration.
func (h *Handlers) GetWebRTCConfig(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, models.WebRTCConfig{ICEServers: h.webrtcConfig.ICEServers})
}

// GetRoomStatus returns the live view of an open room, falling back to the
// stored meeting record when the room is not open on this instance.
func (h *Handlers) GetRoomStatus(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingId")
	if meetingID == "" {
		utils.WriteError(w, http.StatusBadRequest, "meetingId is required")
		return
	}

	if status, ok := h.manager.RoomStatus(meetingID); ok {
		utils.WriteJSON(w, http.StatusOK, status)
		return
	}

	record, err := h.store.GetMeeting(r.Context(), meetingID)
	if err != nil {
		if errors.Is(err, store.ErrMeetingNotFound) {
			utils.WriteError(w, http.StatusNotFound, "meeting not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "failed to load meeting")
		return
	}
	utils.WriteJSON(w, http.StatusOK, record)
}

// MeetingWS is the websocket endpoint for a meeting room. The token and
// display name arrive as query parameters; the first connection for a meeting
// code opens the room.
func (h *Handlers) MeetingWS(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingId")
	token := r.URL.Query().Get("token")
	name := r.URL.Query().Get("name")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	client := rooms.NewClient(conn)

	// The request context dies with the HTTP handler; room lifecycle
	// operations use their own.
	room, sess, err := h.manager.Connect(context.Background(), meetingID, token, name, client)
	if err != nil {
		client.Send(models.WSFrame{Type: "error", Data: map[string]string{"message": err.Error()}})
		return
	}
	defer h.manager.Disconnect(context.Background(), meetingID, sess.ID)

	for {
		var frame models.ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}
		room.HandleMessage(sess.ID, frame)
	}
}
