package rooms

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Homeroom-Remote/homeroom-server/internal/config"
	"github.com/Homeroom-Remote/homeroom-server/internal/metrics"
	"github.com/Homeroom-Remote/homeroom-server/internal/models"
)

// RoomManager owns every live room on this instance. The first participant to
// connect for a meeting code opens the room (subject to the ownership rule);
// the last one to leave disposes it.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	auth   AuthGateway
	store  MeetingStore
	scorer *ScoringEngine
	cfg    *config.Config
}

func NewRoomManager(auth AuthGateway, store MeetingStore, scorer *ScoringEngine, cfg *config.Config) *RoomManager {
	return &RoomManager{
		rooms:  make(map[string]*Room),
		auth:   auth,
		store:  store,
		scorer: scorer,
		cfg:    cfg,
	}
}

// Connect admits one websocket connection into the meeting, opening the room
// if this is the first participant. Room creation is fully validated and
// awaited; joining is local.
func (m *RoomManager) Connect(ctx context.Context, meetingID, token, name string, client *Client) (*Room, *Session, error) {
	room, err := m.roomFor(ctx, meetingID, token)
	if err != nil {
		return nil, nil, err
	}

	uid, err := room.Authenticate(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	sess, err := room.Join(client, uid, name)
	if err == ErrRoomClosed {
		// The room was disposed between lookup and join (last participant
		// left). Drop it and retry once with a fresh room.
		m.removeRoom(meetingID, room)
		room, err = m.roomFor(ctx, meetingID, token)
		if err != nil {
			return nil, nil, err
		}
		sess, err = room.Join(client, uid, name)
	}
	if err != nil {
		return nil, nil, err
	}

	return room, sess, nil
}

// Disconnect handles a closed connection; the room is disposed and deleted
// when its last participant leaves.
func (m *RoomManager) Disconnect(ctx context.Context, meetingID, sessionID string) {
	m.mu.RLock()
	room, ok := m.rooms[meetingID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	if empty := room.Leave(sessionID); empty {
		m.removeRoom(meetingID, room)
		if err := room.Dispose(ctx); err != nil {
			log.Printf("[manager] dispose of room %s reported: %v", meetingID, err)
		}
	}
}

// RoomStatus returns the live view of a room, if it is open.
func (m *RoomManager) RoomStatus(meetingID string) (*models.RoomStatus, bool) {
	m.mu.RLock()
	room, ok := m.rooms[meetingID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return room.Status(), true
}

// RoomCount returns the number of open rooms.
func (m *RoomManager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// CleanupStaleRooms disposes rooms that are empty and older than maxAge.
// Rooms normally dispose themselves on the last leave; this catches the ones
// that did not. Returns how many rooms were swept.
func (m *RoomManager) CleanupStaleRooms(ctx context.Context, maxAge time.Duration) int {
	m.mu.RLock()
	stale := make([]*Room, 0)
	for _, room := range m.rooms {
		if room.ParticipantCount() == 0 && time.Since(room.StartedAt) > maxAge {
			stale = append(stale, room)
		}
	}
	m.mu.RUnlock()

	for _, room := range stale {
		m.removeRoom(room.ID, room)
		if err := room.Dispose(ctx); err != nil {
			log.Printf("[manager] dispose of stale room %s reported: %v", room.ID, err)
		}
	}
	return len(stale)
}

// Shutdown disposes every room so final logs are flushed before exit.
func (m *RoomManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	for _, room := range rooms {
		metrics.ActiveRooms.Dec()
		if err := room.Dispose(ctx); err != nil {
			log.Printf("[manager] dispose of room %s reported: %v", room.ID, err)
		}
	}
}

func (m *RoomManager) roomFor(ctx context.Context, meetingID, token string) (*Room, error) {
	m.mu.RLock()
	room, ok := m.rooms[meetingID]
	m.mu.RUnlock()
	if ok {
		return room, nil
	}
	return m.openRoom(ctx, meetingID, token)
}

// openRoom validates the creation request and opens the room: the token must
// verify, the code must be six characters, the meeting must exist in the
// store, and the requester must own the meeting (the code is the first six
// characters of the owner's user ID).
func (m *RoomManager) openRoom(ctx context.Context, meetingID, token string) (*Room, error) {
	uid, err := m.auth.Verify(token)
	if err != nil {
		return nil, ErrAuthFailed
	}

	if len(meetingID) != models.MeetingIDLength {
		return nil, ErrInvalidMeetingID
	}

	exists, err := m.store.MeetingExists(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrMeetingNotFound
	}

	if !strings.HasPrefix(uid, meetingID) {
		return nil, ErrNotAuthorized
	}

	room := newRoom(meetingID, uid, m.auth, m.store, m.scorer, m.cfg.CheckpointInterval, m.cfg.LogThresholdSeconds)

	if err := m.store.SetMeetingStatus(ctx, meetingID, true); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.rooms[meetingID]; ok {
		// Lost the creation race to another first joiner; use theirs.
		m.mu.Unlock()
		return existing, nil
	}
	m.rooms[meetingID] = room
	m.mu.Unlock()

	room.startCheckpointLoop()
	metrics.ActiveRooms.Inc()
	log.Printf("[manager] opened meeting %s for %s", meetingID, uid)
	return room, nil
}

func (m *RoomManager) removeRoom(meetingID string, room *Room) {
	m.mu.Lock()
	if current, ok := m.rooms[meetingID]; ok && current == room {
		delete(m.rooms, meetingID)
		metrics.ActiveRooms.Dec()
	}
	m.mu.Unlock()
}
