package rooms

import (
	"time"

	"github.com/Homeroom-Remote/homeroom-server/internal/models"
)

// Session is one connected participant. A user rejoining from another device
// holds a second session with the same UID, so UIDs are not unique here.
type Session struct {
	ID       string // connection key, unique per registry
	UID      string
	Name     string
	JoinedAt time.Time
	Client   *Client
}

// SessionRegistry maps connection keys to sessions, preserving join order.
// Not safe for concurrent use: callers serialize through the room lock.
type SessionRegistry struct {
	sessions map[string]*Session
	order    []string
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

func (r *SessionRegistry) Add(s *Session) {
	if _, exists := r.sessions[s.ID]; exists {
		return
	}
	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
}

func (r *SessionRegistry) Remove(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	for i, key := range r.order {
		if key == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return s, true
}

func (r *SessionRegistry) Get(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// FindByUID returns the first session (in join order) belonging to uid.
func (r *SessionRegistry) FindByUID(uid string) (*Session, bool) {
	for _, id := range r.order {
		if s := r.sessions[id]; s.UID == uid {
			return s, true
		}
	}
	return nil, false
}

func (r *SessionRegistry) Count() int { return len(r.sessions) }

// Snapshot returns participant views in join order.
func (r *SessionRegistry) Snapshot() []models.ParticipantInfo {
	out := make([]models.ParticipantInfo, 0, len(r.order))
	for _, id := range r.order {
		s := r.sessions[id]
		out = append(out, models.ParticipantInfo{SessionID: s.ID, UID: s.UID, Name: s.Name})
	}
	return out
}

// Each calls fn for every session in join order.
func (r *SessionRegistry) Each(fn func(*Session)) {
	for _, id := range r.order {
		fn(r.sessions[id])
	}
}
