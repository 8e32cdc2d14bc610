package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/cycle-tracker/internal/logger"
)

const jobTimeout = 5 * time.Minute

// Roller is the part of the cycle service the daily job drives.
type Roller interface {
	Rollover(ctx context.Context) (int, error)
}

// Scheduler runs the day rollover once a day so that open cycles and
// predictions are recomputed against the new date.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Roller
	at        string
}

// New creates a new Scheduler firing daily at the UTC time at (HH:MM).
func New(at string, service Roller) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		at:        at,
	}
}

// Start schedules the daily job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(1).Day().At(s.at).Do(s.runRollover)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	logger.Log.WithField("at", s.at).Info("scheduler: day rollover scheduled")
	return nil
}

func (s *Scheduler) runRollover() {
	log := logger.Log.WithField("job", "rollover")
	log.Info("scheduler: running day rollover")

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	started := time.Now()
	warmed, err := s.service.Rollover(ctx)
	if err != nil {
		log.WithError(err).Error("scheduler: rollover failed")
		return
	}
	log.WithFields(logrus.Fields{
		"users":    warmed,
		"duration": time.Since(started).String(),
	}).Info("scheduler: completed day rollover")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
