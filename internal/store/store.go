package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Homeroom-Remote/homeroom-server/internal/models"
)

// Errors returned by the meeting store.
var (
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrMeetingOffline  = errors.New("meeting offline")
)

// Key layout in Redis.
const (
	meetingKeyPrefix      = "meeting:"
	participantsKeySuffix = ":participants"
	logsKeySuffix         = ":logs"
	historyKeyPrefix      = "history:"
)

// RedisStore persists meeting metadata, participant presence, per-user
// meeting history and final session logs in Redis.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func meetingKey(id string) string      { return meetingKeyPrefix + id }
func participantsKey(id string) string { return meetingKeyPrefix + id + participantsKeySuffix }
func logsKey(id string) string         { return meetingKeyPrefix + id + logsKeySuffix }
func historyKey(uid string) string     { return historyKeyPrefix + uid }

// CreateMeeting writes a fresh meeting record. Meeting records are normally
// provisioned by the accounts service; this exists for tooling and tests.
func (s *RedisStore) CreateMeeting(ctx context.Context, id, owner string) error {
	err := s.rdb.HSet(ctx, meetingKey(id), map[string]interface{}{
		"id":        id,
		"owner":     owner,
		"status":    models.MeetingStatusOffline,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to create meeting %s: %w", id, err)
	}
	return nil
}

// MeetingExists reports whether a meeting record exists.
func (s *RedisStore) MeetingExists(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, meetingKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check meeting %s: %w", id, err)
	}
	return n > 0, nil
}

// GetMeeting returns the meeting record, or ErrMeetingNotFound.
func (s *RedisStore) GetMeeting(ctx context.Context, id string) (*models.MeetingRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, meetingKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrMeetingNotFound
	}

	return &models.MeetingRecord{
		ID:        fields["id"],
		Owner:     fields["owner"],
		Status:    fields["status"],
		CreatedAt: fields["createdAt"],
	}, nil
}

// GetOnlineMeeting is GetMeeting plus an online-status check.
func (s *RedisStore) GetOnlineMeeting(ctx context.Context, id string) (*models.MeetingRecord, error) {
	record, err := s.GetMeeting(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != models.MeetingStatusOnline {
		return nil, ErrMeetingOffline
	}
	return record, nil
}

// SetMeetingStatus marks the meeting online or offline. Going offline clears
// the participant set.
func (s *RedisStore) SetMeetingStatus(ctx context.Context, id string, online bool) error {
	status := models.MeetingStatusOffline
	if online {
		status = models.MeetingStatusOnline
	}
	if err := s.rdb.HSet(ctx, meetingKey(id), "status", status).Err(); err != nil {
		return fmt.Errorf("failed to set meeting %s status: %w", id, err)
	}
	if !online {
		if err := s.rdb.Del(ctx, participantsKey(id)).Err(); err != nil {
			return fmt.Errorf("failed to clear participants of %s: %w", id, err)
		}
	}
	return nil
}

// AddParticipant marks uid present in the meeting.
func (s *RedisStore) AddParticipant(ctx context.Context, id, uid string) error {
	if err := s.rdb.SAdd(ctx, participantsKey(id), uid).Err(); err != nil {
		return fmt.Errorf("failed to add participant to %s: %w", id, err)
	}
	return nil
}

// RemoveParticipant marks uid absent from the meeting.
func (s *RedisStore) RemoveParticipant(ctx context.Context, id, uid string) error {
	if err := s.rdb.SRem(ctx, participantsKey(id), uid).Err(); err != nil {
		return fmt.Errorf("failed to remove participant from %s: %w", id, err)
	}
	return nil
}

// Participants lists the user IDs currently marked present.
func (s *RedisStore) Participants(ctx context.Context, id string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, participantsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list participants of %s: %w", id, err)
	}
	return members, nil
}

// RecordHistory appends the meeting to the user's visited-meetings history.
func (s *RedisStore) RecordHistory(ctx context.Context, uid, meetingID string) error {
	entry := models.HistoryEntry{MeetingID: meetingID, At: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}
	if err := s.rdb.LPush(ctx, historyKey(uid), data).Err(); err != nil {
		return fmt.Errorf("failed to record history for %s: %w", uid, err)
	}
	return nil
}

// History returns the user's visited meetings, most recent first.
func (s *RedisStore) History(ctx context.Context, uid string) ([]models.HistoryEntry, error) {
	raw, err := s.rdb.LRange(ctx, historyKey(uid), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", uid, err)
	}
	entries := make([]models.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RecordSessionLog appends the final meeting log. Meetings can run more than
// once, so logs accumulate per meeting ID.
func (s *RedisStore) RecordSessionLog(ctx context.Context, id string, log *models.SessionLog) error {
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal session log: %w", err)
	}
	if err := s.rdb.RPush(ctx, logsKey(id), data).Err(); err != nil {
		return fmt.Errorf("failed to record session log for %s: %w", id, err)
	}
	return nil
}

// SessionLogs returns the stored logs for a meeting, oldest first.
func (s *RedisStore) SessionLogs(ctx context.Context, id string) ([]models.SessionLog, error) {
	raw, err := s.rdb.LRange(ctx, logsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session logs for %s: %w", id, err)
	}
	logs := make([]models.SessionLog, 0, len(raw))
	for _, item := range raw {
		var log models.SessionLog
		if err := json.Unmarshal([]byte(item), &log); err != nil {
			continue
		}
		logs = append(logs, log)
	}
	return logs, nil
}
