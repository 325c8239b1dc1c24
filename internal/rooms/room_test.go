package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Homeroom-Remote/homeroom-server/internal/models"
)

type fakeAuth struct {
	uids map[string]string
}

func (a fakeAuth) Verify(token string) (string, error) {
	if uid, ok := a.uids[token]; ok {
		return uid, nil
	}
	return "", errors.New("bad token")
}

type fakeStore struct {
	mu           sync.Mutex
	meetings     map[string]bool
	statusCalls  []bool
	sessionLogs  []*models.SessionLog
	addCalls     int
	removeCalls  int
	historyCalls int
}

func newFakeStore(ids ...string) *fakeStore {
	m := make(map[string]bool)
	for _, id := range ids {
		m[id] = true
	}
	return &fakeStore{meetings: m}
}

func (f *fakeStore) MeetingExists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meetings[id], nil
}

func (f *fakeStore) GetMeeting(_ context.Context, id string) (*models.MeetingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.meetings[id] {
		return nil, errors.New("meeting not found")
	}
	return &models.MeetingRecord{ID: id}, nil
}

func (f *fakeStore) SetMeetingStatus(_ context.Context, _ string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, online)
	return nil
}

func (f *fakeStore) AddParticipant(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	return nil
}

func (f *fakeStore) RemoveParticipant(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	return nil
}

func (f *fakeStore) RecordHistory(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	return nil
}

func (f *fakeStore) RecordSessionLog(_ context.Context, _ string, log *models.SessionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionLogs = append(f.sessionLogs, log)
	return nil
}

func (f *fakeStore) statusHistory() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.statusCalls))
	copy(out, f.statusCalls)
	return out
}

func (f *fakeStore) loggedSessions() []*models.SessionLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.SessionLog, len(f.sessionLogs))
	copy(out, f.sessionLogs)
	return out
}

// frameRecorder captures every frame a client would have received.
type frameRecorder struct {
	mu     sync.Mutex
	frames []models.WSFrame
}

func (f *frameRecorder) record(frame models.WSFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *frameRecorder) all() []models.WSFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.WSFrame, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *frameRecorder) byType(frameType string) []models.WSFrame {
	var out []models.WSFrame
	for _, frame := range f.all() {
		if frame.Type == frameType {
			out = append(out, frame)
		}
	}
	return out
}

func (f *frameRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

const (
	testMeetingID = "abc123"
	testOwnerUID  = "abc123-owner"
)

func newTestRoom(store MeetingStore) *Room {
	auth := fakeAuth{uids: map[string]string{"owner-token": testOwnerUID}}
	return newRoom(testMeetingID, testOwnerUID, auth, store, newTestScorer(), time.Hour, 0)
}

func joinTestSession(t *testing.T, r *Room, uid, name string) (*Session, *frameRecorder) {
	t.Helper()
	rec := &frameRecorder{}
	client := NewClient(nil)
	client.SetSendHook(rec.record)
	sess, err := r.Join(client, uid, name)
	require.NoError(t, err)
	return sess, rec
}

func clientFrame(frameType, data string) models.ClientFrame {
	return models.ClientFrame{Type: frameType, Data: json.RawMessage(data)}
}

func TestRoomJoinSequence(t *testing.T) {
	r := newTestRoom(newFakeStore(testMeetingID))

	_, rec1 := joinTestSession(t, r, testOwnerUID, "Owner")

	frames := rec1.all()
	require.Len(t, frames, 3)
	assert.Equal(t, "welcome", frames[0].Type)
	assert.Equal(t, "get-question-queue", frames[1].Type)
	assert.Equal(t, "get-owner", frames[2].Type)
	assert.Equal(t, map[string]string{"owner": testOwnerUID}, frames[2].Data)

	sess2, rec2 := joinTestSession(t, r, "guest-uid", "Guest")

	// The newcomer never sees its own join; the room does, carrying the
	// newcomer's identity.
	assert.Empty(t, rec2.byType("join"))
	joins := rec1.byType("join")
	require.Len(t, joins, 1)
	info, ok := joins[0].Data.(models.ParticipantInfo)
	require.True(t, ok)
	assert.Equal(t, sess2.ID, info.SessionID)
	assert.Equal(t, "guest-uid", info.UID)
	assert.Equal(t, "Guest", info.Name)

	assert.Equal(t, 2, r.ParticipantCount())
	assert.Equal(t, 2, r.peak)
}

func TestRoomPeakIsHighWaterMark(t *testing.T) {
	r := newTestRoom(newFakeStore(testMeetingID))

	sess1, _ := joinTestSession(t, r, testOwnerUID, "Owner")
	joinTestSession(t, r, "guest-uid", "Guest")
	r.Leave(sess1.ID)
	joinTestSession(t, r, "late-uid", "Late")

	// Two concurrent participants was the most the room ever held; a later
	// leave-then-join does not move the mark.
	assert.Equal(t, 2, r.ParticipantCount())
	assert.Equal(t, 2, r.peak)
}

func TestRoomChatEchoAndHistory(t *testing.T) {
	r := newTestRoom(newFakeStore(testMeetingID))
	sess1, rec1 := joinTestSession(t, r, testOwnerUID, "Owner")
	sess2, rec2 := joinTestSession(t, r, "guest-uid", "Guest")

	r.HandleMessage(sess2.ID, clientFrame("chat-message", `{"message":"hi all"}`))

	broadcast := rec1.byType("chat-message")
	require.Len(t, broadcast, 1)
	msg, ok := broadcast[0].Data.(models.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, sess2.ID, msg.Sender)
	assert.Equal(t, "hi all", msg.Message)
	assert.False(t, msg.Me)

	echo := rec2.byType("chat-message")
	require.Len(t, echo, 1)
	echoed, ok := echo[0].Data.(models.ChatMessage)
	require.True(t, ok)
	assert.True(t, echoed.Me)
	assert.Equal(t, "hi all", echoed.Message)

	// Chat history replays to late requests and the event counts as
	// engagement.
	r.HandleMessage(sess1.ID, clientFrame("get-chat", `{}`))
	history := rec1.byType("get-chat")
	require.Len(t, history, 1)
	log, ok := history[0].Data.([]models.ChatMessage)
	require.True(t, ok)
	require.Len(t, log, 1)
	assert.Equal(t, "hi all", log[0].Message)

	require.Len(t, r.engagement, 1)
	assert.Equal(t, models.EngagementChat, r.engagement[0].Event)
}

func TestRoomSignalIsPointToPoint(t *testing.T) {
	r := newTestRoom(newFakeStore(testMeetingID))
	sess1, rec1 := joinTestSession(t, r, testOwnerUID, "Owner")
	sess2, rec2 := joinTestSession(t, r, "guest-uid", "Guest")
	_, rec3 := joinTestSession(t, r, "other-uid", "Other")

	before3 := rec3.count()
	r.HandleMessage(sess1.ID, clientFrame("signal", `{"sessionId":"`+sess2.ID+`","data":{"sdp":"offer"}}`))

	signals := rec2.byType("signal")
	require.Len(t, signals, 1)
	relay, ok := signals[0].Data.(models.SignalRelay)
	require.True(t, ok)
	assert.Equal(t, sess1.ID, relay.SessionID)
	assert.Equal(t, testOwnerUID, relay.UID)
	assert.JSONEq(t, `{"sdp":"offer"}`, string(relay.Data))

	assert.Empty(t, rec1.byType("signal"))
	assert.Equal(t, before3, rec3.count())

	// A vanished target drops the signal without error frames.
	before2 := rec2.count()
	r.HandleMessage(sess1.ID, clientFrame("signal", `{"sessionId":"gone","data":{}}`))
	assert.Equal(t, before2, rec2.count())
}

func TestRoomShareScreenArbitration(t *testing.T) {
	r := newTestRoom(newFakeStore(testMeetingID))
	owner, recOwner := joinTestSession(t, r, testOwnerUID, "Owner")
	guest, recGuest := joinTestSession(t, r, "guest-uid", "Guest")
	bystander, recBystander := joinTestSession(t, r, "other-uid", "Other")

	notices := func(rec *frameRecorder) []models.ShareScreenNotice {
		var out []models.ShareScreenNotice
		for _, frame := range rec.byType("share-screen") {
			notice, ok := frame.Data.(models.ShareScreenNotice)
			require.True(t, ok)
			out = append(out, notice)
		}
		return out
	}

	// Guest takes the share; everyone learns who holds it.
	r.HandleMessage(guest.ID, clientFrame("share-screen", `{"event":"start"}`))
	ownerNotices := notices(recOwner)
	require.Len(t, ownerNotices, 1)
	assert.Equal(t, models.ScreenShareStart, ownerNotices[0].Event)
	assert.Equal(t, guest.ID, ownerNotices[0].User)

	// A competing start is denied, then resynced with the actual holder.
	r.HandleMessage(owner.ID, clientFrame("share-screen", `{"event":"start"}`))
	ownerNotices = notices(recOwner)
	require.Len(t, ownerNotices, 3)
	assert.Equal(t, models.ScreenShareDeniedStart, ownerNotices[1].Event)
	assert.Equal(t, models.ScreenShareStart, ownerNotices[2].Event)
	assert.Equal(t, guest.ID, ownerNotices[2].User)

	// A bystander cannot stop someone else's share.
	r.HandleMessage(bystander.ID, clientFrame("share-screen", `{"event":"stop"}`))
	bystanderNotices := notices(recBystander)
	require.NotEmpty(t, bystanderNotices)
	assert.Equal(t, models.ScreenShareDeniedStop, bystanderNotices[len(bystanderNotices)-1].Event)

	// The room owner can.
	r.HandleMessage(owner.ID, clientFrame("share-screen", `{"event":"stop"}`))
	guestNotices := notices(recGuest)
	last := guestNotices[len(guestNotices)-1]
	assert.Equal(t, models.ScreenShareStop, last.Event)
	assert.Equal(t, guest.ID, last.From)

	// Stopping a free share is silently ignored.
	before := recGuest.count()
	r.HandleMessage(guest.ID, clientFrame("share-screen", `{"event":"stop"}`))
	assert.Equal(t, before, recGuest.count())
}

func TestRoomQuestionQueueFlow(t *testing.T) {
	r := newTestRoom(newFakeStore(testMeetingID))
	owner, recOwner := joinTestSession(t, r, testOwnerUID, "Owner")
	guest, recGuest := joinTestSession(t, r, "guest-uid", "Guest")
	other, recOther := joinTestSession(t, r, "other-uid", "Other")

	lastStatus := func(rec *frameRecorder) models.QueueStatus {
		frames := rec.byType("question-queue-status")
		require.NotEmpty(t, frames)
		status, ok := frames[len(frames)-1].Data.(models.QueueStatus)
		require.True(t, ok)
		return status
	}

	r.HandleMessage(guest.ID, clientFrame("add-to-question-queue", `{}`))
	assert.True(t, lastStatus(recGuest).Status)
	updates := recOwner.byType("question-queue-update")
	require.Len(t, updates, 1)

	// Re-queueing is rejected without a broadcast.
	r.HandleMessage(guest.ID, clientFrame("add-to-question-queue", `{}`))
	status := lastStatus(recGuest)
	assert.False(t, status.Status)
	assert.Equal(t, "Already in queue.", status.Message)
	assert.Len(t, recOwner.byType("question-queue-update"), 1)

	// A non-owner cannot remove someone else.
	r.HandleMessage(other.ID, clientFrame("remove-from-question-queue", `{"id":"`+guest.ID+`"}`))
	status = lastStatus(recOther)
	assert.False(t, status.Status)
	assert.Equal(t, "Not authorized", status.Message)

	// The owner can; the removal is broadcast by connection key.
	r.HandleMessage(owner.ID, clientFrame("remove-from-question-queue", `{"id":"`+guest.ID+`"}`))
	assert.True(t, lastStatus(recOwner).Status)
	updates = recGuest.byType("question-queue-update")
	require.Len(t, updates, 2)
	update, ok := updates[1].Data.(models.QueueUpdate)
	require.True(t, ok)
	assert.Equal(t, "remove", update.Event)
	assert.Equal(t, models.QueueRef{ID: guest.ID}, update.Data)

	// Removing an absent entry while not queued is not-found.
	r.HandleMessage(other.ID, clientFrame("remove-from-question-queue", `{"id":"`+guest.ID+`"}`))
	status = lastStatus(recOther)
	assert.False(t, status.Status)
	assert.Equal(t, "ID wasn't in queue", status.Message)

	// Only the successful add counted as engagement.
	require.Len(t, r.engagement, 1)
	assert.Equal(t, models.EngagementQuestion, r.engagement[0].Event)
}

func TestRoomLeaveReleasesEverything(t *testing.T) {
	r := newTestRoom(newFakeStore(testMeetingID))
	sess1, _ := joinTestSession(t, r, testOwnerUID, "Owner")
	sess2, rec2 := joinTestSession(t, r, "guest-uid", "Guest")

	r.HandleMessage(sess1.ID, clientFrame("share-screen", `{"event":"start"}`))
	r.HandleMessage(sess1.ID, clientFrame("add-to-question-queue", `{}`))

	empty := r.Leave(sess1.ID)
	assert.False(t, empty)

	leaves := rec2.byType("leave")
	require.Len(t, leaves, 1)
	assert.Equal(t, map[string]string{"sessionId": sess1.ID}, leaves[0].Data)

	shares := rec2.byType("share-screen")
	last, ok := shares[len(shares)-1].Data.(models.ShareScreenNotice)
	require.True(t, ok)
	assert.Equal(t, models.ScreenShareStop, last.Event)
	assert.Equal(t, sess1.ID, last.From)

	updates := rec2.byType("question-queue-update")
	lastUpdate, ok := updates[len(updates)-1].Data.(models.QueueUpdate)
	require.True(t, ok)
	assert.Equal(t, "remove", lastUpdate.Event)
	assert.Equal(t, models.QueueRef{ID: sess1.ID}, lastUpdate.Data)

	assert.Empty(t, r.screen.Holder())
	assert.Equal(t, 0, r.queue.Len())

	assert.True(t, r.Leave(sess2.ID))
}

func TestRoomDropsFramesFromUnknownSessions(t *testing.T) {
	r := newTestRoom(newFakeStore(testMeetingID))
	_, rec := joinTestSession(t, r, testOwnerUID, "Owner")

	before := rec.count()
	r.HandleMessage("never-joined", clientFrame("chat-message", `{"message":"x"}`))
	assert.Equal(t, before, rec.count())
	assert.Empty(t, r.chatLog)
}

func TestRoomCheckpointBroadcast(t *testing.T) {
	r := newTestRoom(newFakeStore(testMeetingID))
	sess, rec := joinTestSession(t, r, testOwnerUID, "Owner")

	r.HandleMessage(sess.ID, clientFrame("concentration", `{"score":0.7}`))
	r.runCheckpoint(time.Now())

	frames := rec.byType("face-recognition")
	require.Len(t, frames, 1)
	cp, ok := frames[0].Data.(*models.CheckpointLog)
	require.True(t, ok)
	require.NotNil(t, cp.Concentration)
	assert.InDelta(t, 0.7, cp.Concentration.Score, 1e-9)
	require.Len(t, r.checkpoints, 1)

	// Nothing pending: no snapshot, no broadcast.
	r.runCheckpoint(time.Now())
	assert.Len(t, rec.byType("face-recognition"), 1)
	assert.Len(t, r.checkpoints, 1)
}

func TestRoomDisposeFlushesOnceAndGoesOffline(t *testing.T) {
	store := newFakeStore(testMeetingID)
	r := newTestRoom(store)
	sess, _ := joinTestSession(t, r, testOwnerUID, "Owner")

	r.HandleMessage(sess.ID, clientFrame("concentration", `{"score":0.5}`))
	r.runCheckpoint(time.Now())
	r.Leave(sess.ID)

	require.NoError(t, r.Dispose(context.Background()))
	require.NoError(t, r.Dispose(context.Background()))

	logs := store.loggedSessions()
	require.Len(t, logs, 1)
	assert.Equal(t, testMeetingID, logs[0].MeetingID)
	assert.Equal(t, 1, logs[0].PeakParticipants)
	require.Len(t, logs[0].Checkpoints, 1)

	assert.Equal(t, []bool{false}, store.statusHistory())
}

func TestRoomDisposeSkipsLogWithoutCheckpoints(t *testing.T) {
	store := newFakeStore(testMeetingID)
	r := newTestRoom(store)

	require.NoError(t, r.Dispose(context.Background()))

	assert.Empty(t, store.loggedSessions())
	assert.Equal(t, []bool{false}, store.statusHistory())
}

func TestRoomJoinAfterDisposeFails(t *testing.T) {
	r := newTestRoom(newFakeStore(testMeetingID))
	require.NoError(t, r.Dispose(context.Background()))

	client := NewClient(nil)
	client.SetSendHook(func(models.WSFrame) {})
	_, err := r.Join(client, "guest-uid", "Guest")
	assert.ErrorIs(t, err, ErrRoomClosed)
}
