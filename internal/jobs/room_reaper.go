package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Homeroom-Remote/homeroom-server/internal/rooms"
)

// RoomReaperJob periodically disposes rooms that are empty but were never
// disposed, so their meetings get marked offline and their logs flushed.
type RoomReaperJob struct {
	manager  *rooms.RoomManager
	schedule string
	maxAge   time.Duration
	cron     *cron.Cron
}

func NewRoomReaperJob(manager *rooms.RoomManager, schedule string, maxAge time.Duration) *RoomReaperJob {
	return &RoomReaperJob{
		manager:  manager,
		schedule: schedule,
		maxAge:   maxAge,
		cron:     cron.New(),
	}
}

// Start schedules the sweep.
func (j *RoomReaperJob) Start() error {
	_, err := j.cron.AddFunc(j.schedule, j.Run)
	if err != nil {
		return fmt.Errorf("failed to schedule room reaper: %w", err)
	}
	j.cron.Start()
	log.Printf("Room reaper started with schedule %q", j.schedule)
	return nil
}

// Run performs one sweep.
func (j *RoomReaperJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if n := j.manager.CleanupStaleRooms(ctx, j.maxAge); n > 0 {
		log.Printf("Room reaper disposed %d stale room(s)", n)
	}
}

// Stop stops the scheduler.
func (j *RoomReaperJob) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}
