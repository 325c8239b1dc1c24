package rooms

import (
	"context"

	"github.com/Homeroom-Remote/homeroom-server/internal/models"
)

// AuthGateway verifies access tokens. The production implementation is
// utils.JWTAuthenticator; tests substitute fakes.
type AuthGateway interface {
	Verify(token string) (uid string, err error)
}

// MeetingStore is the persistence surface a room needs. store.RedisStore is
// the production implementation.
//
// Reads during room creation are awaited and fatal on failure; presence and
// history writes are best-effort; the final session log flush is awaited.
type MeetingStore interface {
	MeetingExists(ctx context.Context, id string) (bool, error)
	SetMeetingStatus(ctx context.Context, id string, online bool) error
	AddParticipant(ctx context.Context, id, uid string) error
	RemoveParticipant(ctx context.Context, id, uid string) error
	RecordHistory(ctx context.Context, uid, meetingID string) error
	RecordSessionLog(ctx context.Context, id string, log *models.SessionLog) error
}
