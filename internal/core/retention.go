package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"gwi.com/leadership-simulator/internal/store"
)

// RetentionJob periodically removes conversation messages and non-evaluation
// actions older than the horizon.
type RetentionJob struct {
	dbStore  *store.SQLiteStore
	horizon  time.Duration
	schedule string
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
}

func NewRetentionJob(db *store.SQLiteStore, horizon time.Duration, schedule string) (*RetentionJob, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("retention horizon must be positive, got %s", horizon)
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return &RetentionJob{
		dbStore:  db,
		horizon:  horizon,
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}, nil
}

// RunOnce performs a cleanup now. Overlapping runs are serialized.
func (j *RetentionJob) RunOnce(ctx context.Context) (store.CleanupResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.dbStore.Cleanup(ctx, j.horizon)
	if err != nil {
		return store.CleanupResult{}, err
	}
	log.WithFields(log.Fields{
		"messages_removed": res.MessagesRemoved,
		"actions_removed":  res.ActionsRemoved,
		"horizon":          j.horizon,
	}).Info("Retention cleanup finished")
	return res, nil
}

func (j *RetentionJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			log.WithError(err).Error("Scheduled retention cleanup failed")
		}
	}); err != nil {
		return err
	}
	j.cron.Start()
	j.running = true
	log.WithField("schedule", j.schedule).Info("Retention job scheduled (UTC)")
	return nil
}

// Stop waits for a cleanup in progress to finish.
func (j *RetentionJob) Stop() {
	if !j.running {
		return
	}
	<-j.cron.Stop().Done()
	j.running = false
	log.Info("Retention job stopped")
}
