package models

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v3"
)

// MeetingIDLength is fixed by the platform: a meeting code is the first six
// characters of the owning user's ID.
const MeetingIDLength = 6

// Engagement event tags recorded in the room's engagement log.
const (
	EngagementChat     = "chat"
	EngagementQuestion = "question"
)

// WSFrame is the server-to-client message envelope.
type WSFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ClientFrame is the client-to-server envelope. Data stays raw until the room
// dispatches it to the right handler.
type ClientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParticipantInfo is the public view of a connected participant.
type ParticipantInfo struct {
	SessionID string `json:"sessionId"`
	UID       string `json:"uid"`
	Name      string `json:"name"`
}

// ChatMessage is broadcast for chat-message and echoed back to the sender
// with Me set.
type ChatMessage struct {
	Sender  string `json:"sender"`
	UID     string `json:"uid"`
	Name    string `json:"name"`
	Time    string `json:"time"`
	Message string `json:"message"`
	Me      bool   `json:"me,omitempty"`
}

// SignalPayload addresses an opaque signaling blob to another session.
type SignalPayload struct {
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// SignalRelay is what the target session receives: the payload annotated with
// the sender's session key and identity.
type SignalRelay struct {
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	UID       string          `json:"uid"`
	Name      string          `json:"name"`
}

// RelayMessage is the common shape for hand-gesture and survey relays.
type RelayMessage struct {
	Sender     string          `json:"sender"`
	UID        string          `json:"uid"`
	Name       string          `json:"name"`
	Time       string          `json:"time"`
	Message    json.RawMessage `json:"message"`
	SurveyTime json.RawMessage `json:"surveyTime,omitempty"`
}

// Screen share events.
const (
	ScreenShareStart       = "start"
	ScreenShareStop        = "stop"
	ScreenShareDeniedStart = "denied-start"
	ScreenShareDeniedStop  = "denied-stop"
)

// ShareScreenPayload is the client request for share-screen.
type ShareScreenPayload struct {
	Event string `json:"event"`
}

// ShareScreenNotice is the server-side share-screen message.
type ShareScreenNotice struct {
	Event string `json:"event"`
	User  string `json:"user,omitempty"`
	From  string `json:"from,omitempty"`
	Data  string `json:"data,omitempty"`
}

// QuestionEntry is one waiting participant in the question queue.
type QuestionEntry struct {
	ID          string `json:"id"`
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
}

// QueueUpdate is broadcast on every structural queue change.
type QueueUpdate struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// QueueStatus is the point-to-point reply to queue requests.
type QueueStatus struct {
	Event   string `json:"event"`
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
}

// QueueRef names a queue entry by session key in updates and removal requests.
type QueueRef struct {
	ID string `json:"id"`
}

// ConcentrationPayload carries one attention sample.
type ConcentrationPayload struct {
	Score float64 `json:"score"`
}

// ExpressionVector is one facial-expression sample: per-component
// probabilities in [0,1].
type ExpressionVector struct {
	Neutral   float64 `json:"neutral"`
	Happy     float64 `json:"happy"`
	Sad       float64 `json:"sad"`
	Disgusted float64 `json:"disgusted"`
	Fearful   float64 `json:"fearful"`
	Surprised float64 `json:"surprised"`
}

// Add returns the component-wise sum of v and o.
func (v ExpressionVector) Add(o ExpressionVector) ExpressionVector {
	return ExpressionVector{
		Neutral:   v.Neutral + o.Neutral,
		Happy:     v.Happy + o.Happy,
		Sad:       v.Sad + o.Sad,
		Disgusted: v.Disgusted + o.Disgusted,
		Fearful:   v.Fearful + o.Fearful,
		Surprised: v.Surprised + o.Surprised,
	}
}

// Scale returns v with every component multiplied by f.
func (v ExpressionVector) Scale(f float64) ExpressionVector {
	return ExpressionVector{
		Neutral:   v.Neutral * f,
		Happy:     v.Happy * f,
		Sad:       v.Sad * f,
		Disgusted: v.Disgusted * f,
		Fearful:   v.Fearful * f,
		Surprised: v.Surprised * f,
	}
}

// ConcentrationSummary is the reduced attention view of one checkpoint.
type ConcentrationSummary struct {
	Participants int     `json:"participants"`
	MSamples     float64 `json:"mSamples"`
	Score        float64 `json:"score"`
}

// ExpressionSummary is the reduced expression view of one checkpoint.
type ExpressionSummary struct {
	Participants int              `json:"participants"`
	MSamples     float64          `json:"mSamples"`
	Expressions  ExpressionVector `json:"expressions"`
}

// CheckpointLog is one entry of the room's machine-learning log, produced
// every checkpoint interval and broadcast as face-recognition.
type CheckpointLog struct {
	Concentration *ConcentrationSummary `json:"concentration"`
	Expressions   *ExpressionSummary    `json:"expressions"`
	At            time.Time             `json:"at"`
}

// EngagementEvent is one timestamped chat/question tag.
type EngagementEvent struct {
	Event string    `json:"event"`
	At    time.Time `json:"at"`
}

// ScoreResult is the final engagement score with one tip per dimension.
type ScoreResult struct {
	Score float64  `json:"score"`
	Tips  []string `json:"tips"`
}

// SessionLog is the full meeting record flushed to the store on disposal.
type SessionLog struct {
	MeetingID        string            `json:"meetingId"`
	Checkpoints      []CheckpointLog   `json:"checkpoints"`
	EngagementEvents []EngagementEvent `json:"engagementEvents"`
	StartedAt        time.Time         `json:"startedAt"`
	PeakParticipants int               `json:"peakParticipants"`
	DurationSeconds  float64           `json:"durationSeconds"`
	Score            *ScoreResult      `json:"score,omitempty"`
}

// Meeting statuses kept in the store.
const (
	MeetingStatusOnline  = "online"
	MeetingStatusOffline = "offline"
)

// MeetingRecord is the stored meeting metadata.
type MeetingRecord struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

// RoomStatus is the HTTP view of a live room.
type RoomStatus struct {
	ID               string            `json:"id"`
	Owner            string            `json:"owner"`
	ParticipantCount int               `json:"participantCount"`
	Participants     []ParticipantInfo `json:"participants"`
	StartedAt        time.Time         `json:"startedAt"`
}

// WebRTCConfig is the ICE server configuration handed to clients.
type WebRTCConfig struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

// HistoryEntry is one visited meeting in a user's history.
type HistoryEntry struct {
	MeetingID string    `json:"meetingId"`
	At        time.Time `json:"at"`
}
