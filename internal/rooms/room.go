package rooms

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Homeroom-Remote/homeroom-server/internal/metrics"
	"github.com/Homeroom-Remote/homeroom-server/internal/models"
)

// Room coordinates one live meeting: sessions, chat, signaling relay, the
// question queue, screen share arbitration, telemetry checkpoints and the
// final score. All mutable state sits behind one mutex; message handlers and
// the checkpoint timer serialize on it, so no two handlers for the same room
// ever run concurrently. Rooms for different meetings run fully in parallel.
type Room struct {
	ID        string
	Owner     string
	StartedAt time.Time

	mu          sync.Mutex
	sessions    *SessionRegistry
	queue       *QuestionQueue
	screen      *ScreenShareArbiter
	telemetry   *TelemetryAggregator
	chatLog     []models.ChatMessage
	checkpoints []models.CheckpointLog
	engagement  []models.EngagementEvent
	peak        int
	disposed    bool
	done        chan struct{}

	auth   AuthGateway
	store  MeetingStore
	scorer *ScoringEngine

	checkpointInterval  time.Duration
	logThresholdSeconds float64
}

func newRoom(
	id, owner string,
	auth AuthGateway,
	store MeetingStore,
	scorer *ScoringEngine,
	checkpointInterval time.Duration,
	logThresholdSeconds float64,
) *Room {
	return &Room{
		ID:                  id,
		Owner:               owner,
		StartedAt:           time.Now(),
		sessions:            NewSessionRegistry(),
		queue:               NewQuestionQueue(),
		screen:              NewScreenShareArbiter(),
		telemetry:           NewTelemetryAggregator(),
		done:                make(chan struct{}),
		auth:                auth,
		store:               store,
		scorer:              scorer,
		checkpointInterval:  checkpointInterval,
		logThresholdSeconds: logThresholdSeconds,
	}
}

func (r *Room) startCheckpointLoop() {
	go func() {
		ticker := time.NewTicker(r.checkpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				return
			case now := <-ticker.C:
				r.runCheckpoint(now)
			}
		}
	}()
}

// Authenticate verifies the access token before a connection is admitted and
// records the visit in the user's history (best-effort).
func (r *Room) Authenticate(ctx context.Context, token string) (string, error) {
	uid, err := r.auth.Verify(token)
	if err != nil {
		return "", ErrAuthFailed
	}

	go func() {
		if err := r.store.RecordHistory(context.Background(), uid, r.ID); err != nil {
			log.Printf("[room %s] failed to record history for %s: %v", r.ID, uid, err)
		}
	}()

	return uid, nil
}

// Join registers a session for the connection, notifies the rest of the room
// and sends the newcomer its own key, the question queue and the owner.
func (r *Room) Join(client *Client, uid, name string) (*Session, error) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil, ErrRoomClosed
	}

	sess := &Session{
		ID:       uuid.New().String(),
		UID:      uid,
		Name:     name,
		JoinedAt: time.Now(),
		Client:   client,
	}

	r.broadcastLocked(models.WSFrame{Type: "join", Data: models.ParticipantInfo{
		SessionID: sess.ID, UID: sess.UID, Name: sess.Name,
	}})

	r.sessions.Add(sess)
	if count := r.sessions.Count(); count > r.peak {
		r.peak = count
	}

	client.Send(models.WSFrame{Type: "welcome", Data: map[string]string{"sessionId": sess.ID}})
	client.Send(models.WSFrame{Type: "get-question-queue", Data: map[string]interface{}{"queue": r.queue.Snapshot()}})
	client.Send(models.WSFrame{Type: "get-owner", Data: map[string]string{"owner": r.Owner}})
	r.mu.Unlock()

	metrics.ConnectedParticipants.Inc()
	go func() {
		if err := r.store.AddParticipant(context.Background(), r.ID, uid); err != nil {
			log.Printf("[room %s] failed to add participant %s: %v", r.ID, uid, err)
		}
	}()

	return sess, nil
}

// Leave removes the session, releases anything it held and notifies the room.
// Returns whether the room is now empty.
func (r *Room) Leave(sessionID string) bool {
	r.mu.Lock()

	r.broadcastLocked(models.WSFrame{Type: "leave", Data: map[string]string{"sessionId": sessionID}})

	sess, existed := r.sessions.Remove(sessionID)
	if existed {
		uid := sess.UID
		go func() {
			if err := r.store.RemoveParticipant(context.Background(), r.ID, uid); err != nil {
				log.Printf("[room %s] failed to remove participant %s: %v", r.ID, uid, err)
			}
		}()
	}

	if released, ok := r.screen.ForceRelease(sessionID); ok {
		r.broadcastLocked(models.WSFrame{Type: "share-screen", Data: models.ShareScreenNotice{
			Event: models.ScreenShareStop, From: released,
		}})
	}

	if r.queue.DropIfQueued(sessionID) {
		r.broadcastLocked(models.WSFrame{Type: "question-queue-update", Data: models.QueueUpdate{
			Event: "remove", Data: models.QueueRef{ID: sessionID},
		}})
	}

	empty := r.sessions.Count() == 0
	r.mu.Unlock()

	if existed {
		metrics.ConnectedParticipants.Dec()
	}
	return empty
}

// Dispose stops the checkpoint timer, flushes the session log when the
// meeting ran long enough to be meaningful, and always marks the meeting
// offline. Disposing twice is a no-op.
func (r *Room) Dispose(ctx context.Context) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil
	}
	r.disposed = true
	close(r.done)

	checkpoints := r.checkpoints
	engagement := r.engagement
	peak := r.peak
	r.mu.Unlock()

	durationSeconds := time.Since(r.StartedAt).Seconds()

	var flushErr error
	if len(checkpoints) > 0 && durationSeconds >= r.logThresholdSeconds {
		score := r.scorer.Calculate(checkpoints, engagement, durationSeconds)
		sessionLog := &models.SessionLog{
			MeetingID:        r.ID,
			Checkpoints:      checkpoints,
			EngagementEvents: engagement,
			StartedAt:        r.StartedAt,
			PeakParticipants: peak,
			DurationSeconds:  durationSeconds,
			Score:            score,
		}
		if err := r.store.RecordSessionLog(ctx, r.ID, sessionLog); err != nil {
			log.Printf("[room %s] failed to record session log: %v", r.ID, err)
			flushErr = err
		}
	}

	if err := r.store.SetMeetingStatus(ctx, r.ID, false); err != nil {
		log.Printf("[room %s] failed to mark meeting offline: %v", r.ID, err)
		if flushErr == nil {
			flushErr = err
		}
	}

	log.Printf("[room %s] closed", r.ID)
	return flushErr
}

// ParticipantCount returns the number of live sessions.
func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.Count()
}

// Status returns the HTTP view of the room.
func (r *Room) Status() *models.RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &models.RoomStatus{
		ID:               r.ID,
		Owner:            r.Owner,
		ParticipantCount: r.sessions.Count(),
		Participants:     r.sessions.Snapshot(),
		StartedAt:        r.StartedAt,
	}
}

// HandleMessage dispatches one client frame. Frames from connections without
// a registered session are dropped.
func (r *Room) HandleMessage(sessionID string, frame models.ClientFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions.Get(sessionID)
	if !ok {
		log.Printf("[room %s] message %q from unknown session %s", r.ID, frame.Type, sessionID)
		return
	}

	metrics.MessagesHandled.WithLabelValues(frame.Type).Inc()

	switch frame.Type {
	case "chat-message":
		r.handleChatMessage(sess, frame.Data)
	case "signal":
		r.handleSignal(sess, frame.Data)
	case "hand-gesture":
		r.handleHandGesture(sess, frame.Data)
	case "survey-form":
		r.handleSurveyForm(sess, frame.Data)
	case "survey-answer":
		r.handleSurveyAnswer(sess, frame.Data)
	case "share-screen":
		r.handleShareScreen(sess, frame.Data)
	case "get-owner":
		sess.Client.Send(models.WSFrame{Type: "get-owner", Data: map[string]string{"owner": r.Owner}})
	case "get-chat":
		sess.Client.Send(models.WSFrame{Type: "get-chat", Data: r.chatSnapshotLocked()})
	case "get-question-queue":
		sess.Client.Send(models.WSFrame{Type: "get-question-queue", Data: map[string]interface{}{"queue": r.queue.Snapshot()}})
	case "add-to-question-queue":
		r.handleAddToQuestionQueue(sess)
	case "remove-from-question-queue":
		r.handleRemoveFromQuestionQueue(sess, frame.Data)
	case "concentration":
		r.handleConcentration(sess, frame.Data)
	case "expressions":
		r.handleExpressions(sess, frame.Data)
	default:
		log.Printf("[room %s] unknown message type %q", r.ID, frame.Type)
	}
}

func (r *Room) handleChatMessage(sess *Session, data json.RawMessage) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[room %s] bad chat-message payload: %v", r.ID, err)
		return
	}

	msg := models.ChatMessage{
		Sender:  sess.ID,
		UID:     sess.UID,
		Name:    sess.Name,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Message: payload.Message,
	}

	r.chatLog = append(r.chatLog, msg)
	r.engagement = append(r.engagement, models.EngagementEvent{Event: models.EngagementChat, At: time.Now()})

	r.broadcastExceptLocked(sess.ID, models.WSFrame{Type: "chat-message", Data: msg})

	echo := msg
	echo.Me = true
	sess.Client.Send(models.WSFrame{Type: "chat-message", Data: echo})
}

func (r *Room) handleSignal(sess *Session, data json.RawMessage) {
	var payload models.SignalPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[room %s] bad signal payload: %v", r.ID, err)
		return
	}

	target, ok := r.sessions.Get(payload.SessionID)
	if !ok {
		log.Printf("[room %s] invalid signal target %s", r.ID, payload.SessionID)
		return
	}

	target.Client.Send(models.WSFrame{Type: "signal", Data: models.SignalRelay{
		SessionID: sess.ID,
		Data:      payload.Data,
		UID:       sess.UID,
		Name:      sess.Name,
	}})
}

func (r *Room) handleHandGesture(sess *Session, data json.RawMessage) {
	r.broadcastExceptLocked(sess.ID, models.WSFrame{Type: "hand-gesture", Data: models.RelayMessage{
		Sender:  sess.ID,
		UID:     sess.UID,
		Name:    sess.Name,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Message: data,
	}})
}

func (r *Room) handleSurveyForm(sess *Session, data json.RawMessage) {
	var payload struct {
		Question   json.RawMessage `json:"question"`
		SurveyTime json.RawMessage `json:"surveyTime"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[room %s] bad survey-form payload: %v", r.ID, err)
		return
	}

	r.broadcastExceptLocked(sess.ID, models.WSFrame{Type: "survey-question", Data: models.RelayMessage{
		Sender:     sess.ID,
		UID:        sess.UID,
		Name:       sess.Name,
		Time:       time.Now().UTC().Format(time.RFC3339),
		Message:    payload.Question,
		SurveyTime: payload.SurveyTime,
	}})
}

func (r *Room) handleSurveyAnswer(sess *Session, data json.RawMessage) {
	owner, ok := r.sessions.FindByUID(r.Owner)
	if !ok {
		return
	}

	owner.Client.Send(models.WSFrame{Type: "survey-answer-client", Data: models.RelayMessage{
		Sender:  sess.ID,
		UID:     sess.UID,
		Name:    sess.Name,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Message: data,
	}})
}

func (r *Room) handleShareScreen(sess *Session, data json.RawMessage) {
	var payload models.ShareScreenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[room %s] bad share-screen payload: %v", r.ID, err)
		return
	}

	switch payload.Event {
	case models.ScreenShareStart:
		ok, holder := r.screen.Start(sess.ID)
		if !ok {
			// Deny, then resync the requester with the actual holder.
			sess.Client.Send(models.WSFrame{Type: "share-screen", Data: models.ShareScreenNotice{
				Event: models.ScreenShareDeniedStart, Data: "Screen share already in progress.",
			}})
			sess.Client.Send(models.WSFrame{Type: "share-screen", Data: models.ShareScreenNotice{
				Event: models.ScreenShareStart, User: holder,
			}})
			return
		}
		r.broadcastLocked(models.WSFrame{Type: "share-screen", Data: models.ShareScreenNotice{
			Event: models.ScreenShareStart, User: holder,
		}})

	case models.ScreenShareStop:
		if r.screen.Holder() == "" {
			return
		}
		released, ok := r.screen.Stop(sess.ID, sess.UID == r.Owner)
		if !ok {
			sess.Client.Send(models.WSFrame{Type: "share-screen", Data: models.ShareScreenNotice{
				Event: models.ScreenShareDeniedStop, Data: "Not authorized for that action.",
			}})
			return
		}
		r.broadcastLocked(models.WSFrame{Type: "share-screen", Data: models.ShareScreenNotice{
			Event: models.ScreenShareStop, From: released,
		}})
	}
}

func (r *Room) handleAddToQuestionQueue(sess *Session) {
	entry := models.QuestionEntry{ID: sess.ID, UID: sess.UID, DisplayName: sess.Name}
	if !r.queue.Add(entry) {
		sess.Client.Send(models.WSFrame{Type: "question-queue-status", Data: models.QueueStatus{
			Event: "add", Status: false, Message: "Already in queue.",
		}})
		return
	}

	r.engagement = append(r.engagement, models.EngagementEvent{Event: models.EngagementQuestion, At: time.Now()})
	r.broadcastLocked(models.WSFrame{Type: "question-queue-update", Data: models.QueueUpdate{
		Event: "add", Data: entry,
	}})
	sess.Client.Send(models.WSFrame{Type: "question-queue-status", Data: models.QueueStatus{
		Event: "add", Status: true,
	}})
}

func (r *Room) handleRemoveFromQuestionQueue(sess *Session, data json.RawMessage) {
	var payload models.QueueRef
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Printf("[room %s] bad remove-from-question-queue payload: %v", r.ID, err)
			return
		}
	}

	removed, outcome := r.queue.Remove(payload.ID, sess.ID, sess.UID == r.Owner)
	switch outcome {
	case QueueNotFound:
		sess.Client.Send(models.WSFrame{Type: "question-queue-status", Data: models.QueueStatus{
			Event: "remove", Status: false, Message: "ID wasn't in queue",
		}})
	case QueueUnauthorized:
		sess.Client.Send(models.WSFrame{Type: "question-queue-status", Data: models.QueueStatus{
			Event: "remove", Status: false, Message: "Not authorized",
		}})
	case QueueRemoved:
		r.broadcastLocked(models.WSFrame{Type: "question-queue-update", Data: models.QueueUpdate{
			Event: "remove", Data: models.QueueRef{ID: removed},
		}})
		sess.Client.Send(models.WSFrame{Type: "question-queue-status", Data: models.QueueStatus{
			Event: "remove", Status: true,
		}})
	}
}

func (r *Room) handleConcentration(sess *Session, data json.RawMessage) {
	var payload models.ConcentrationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[room %s] bad concentration payload: %v", r.ID, err)
		return
	}
	r.telemetry.RecordConcentration(sess.ID, payload.Score)
}

func (r *Room) handleExpressions(sess *Session, data json.RawMessage) {
	var vector models.ExpressionVector
	if err := json.Unmarshal(data, &vector); err != nil {
		log.Printf("[room %s] bad expressions payload: %v", r.ID, err)
		return
	}
	r.telemetry.RecordExpressions(sess.ID, vector)
}

// runCheckpoint drains the telemetry accumulators into one snapshot, appends
// it to the machine-learning log and broadcasts it. The drain happens under
// the room lock, so no sample lands in two snapshots.
func (r *Room) runCheckpoint(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := r.telemetry.Checkpoint(now)
	if cp == nil {
		return
	}

	r.checkpoints = append(r.checkpoints, *cp)
	r.broadcastLocked(models.WSFrame{Type: "face-recognition", Data: cp})
	metrics.CheckpointsTaken.Inc()
}

func (r *Room) chatSnapshotLocked() []models.ChatMessage {
	out := make([]models.ChatMessage, len(r.chatLog))
	copy(out, r.chatLog)
	return out
}

func (r *Room) broadcastLocked(frame models.WSFrame) {
	r.sessions.Each(func(s *Session) {
		s.Client.Send(frame)
	})
}

func (r *Room) broadcastExceptLocked(exceptID string, frame models.WSFrame) {
	r.sessions.Each(func(s *Session) {
		if s.ID == exceptID {
			return
		}
		s.Client.Send(frame)
	})
}
