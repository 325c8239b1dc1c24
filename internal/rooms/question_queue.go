package rooms

import "github.com/Homeroom-Remote/homeroom-server/internal/models"

// RemovalOutcome is the result of a question-queue removal request.
type RemovalOutcome int

const (
	QueueRemoved RemovalOutcome = iota
	QueueNotFound
	QueueUnauthorized
)

// QuestionQueue is the FIFO waiting list of participants requesting to speak.
// A connection key appears at most once. Not safe for concurrent use: callers
// serialize through the room lock. The queue never broadcasts; the coordinator
// pairs every structural change with a question-queue-update.
type QuestionQueue struct {
	entries []models.QuestionEntry
}

func NewQuestionQueue() *QuestionQueue { return &QuestionQueue{} }

// Contains reports whether the connection key is queued.
func (q *QuestionQueue) Contains(id string) bool {
	for _, e := range q.entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Add appends the entry. Returns false if the connection key is already queued.
func (q *QuestionQueue) Add(entry models.QuestionEntry) bool {
	if q.Contains(entry.ID) {
		return false
	}
	q.entries = append(q.entries, entry)
	return true
}

// Remove applies the removal rules for a request by requesterID against
// targetID (empty target defaults to self):
//   - not-found only when neither the target nor the requester is queued, so
//     any participant can always clear their own stale entry;
//   - otherwise self-removal is unconditional, removing someone else needs
//     the room owner.
//
// On success it returns the removed connection key. The filter is a no-op
// when the key is already gone, which still counts as removed.
func (q *QuestionQueue) Remove(targetID, requesterID string, requesterIsOwner bool) (string, RemovalOutcome) {
	if !q.Contains(targetID) && !q.Contains(requesterID) {
		return "", QueueNotFound
	}

	authorized := (targetID != "" && requesterIsOwner) ||
		targetID == requesterID ||
		targetID == ""
	if !authorized {
		return "", QueueUnauthorized
	}

	id := targetID
	if id == "" {
		id = requesterID
	}
	q.drop(id)
	return id, QueueRemoved
}

// DropIfQueued removes the key without authorization checks; used when the
// connection disconnects. Returns whether an entry was removed.
func (q *QuestionQueue) DropIfQueued(id string) bool {
	if !q.Contains(id) {
		return false
	}
	q.drop(id)
	return true
}

func (q *QuestionQueue) drop(id string) {
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	q.entries = kept
}

func (q *QuestionQueue) Len() int { return len(q.entries) }

// Snapshot returns the queue in FIFO order.
func (q *QuestionQueue) Snapshot() []models.QuestionEntry {
	out := make([]models.QuestionEntry, len(q.entries))
	copy(out, q.entries)
	return out
}
