// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/classroom-app/classroom-backend/internal/config"
)

type GrantExpirer interface {
	ExpireGrants() (int64, error)
}

type VideoSyncer interface {
	SyncAll(ctx context.Context) (int, int, error)
}

type EventRetrier interface {
	RetryFailed(ctx context.Context, maxAttempts int) (int, error)
}

// Scheduler runs the periodic maintenance jobs: grant expiry, Vimeo metadata
// refresh and Imweb webhook retries.
type Scheduler struct {
	cron        *cron.Cron
	cfg         config.SchedulerConfig
	grants      GrantExpirer
	videos      VideoSyncer
	events      EventRetrier
	jobTimeout  time.Duration
	rootContext context.Context
	cancel      context.CancelFunc
}

func New(cfg config.SchedulerConfig, grants GrantExpirer, videos VideoSyncer, events EventRetrier) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger), cron.Recover(cron.DefaultLogger))),
		cfg:         cfg,
		grants:      grants,
		videos:      videos,
		events:      events,
		jobTimeout:  10 * time.Minute,
		rootContext: ctx,
		cancel:      cancel,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"expire-grants", s.cfg.ExpirySpec, s.ExpireGrants},
		{"vimeo-sync", s.cfg.VimeoSyncSpec, s.SyncVideos},
		{"webhook-retry", s.cfg.WebhookRetrySpec, s.RetryEvents},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", job.spec, job.name, err)
		}
		logrus.WithFields(logrus.Fields{"job": job.name, "spec": job.spec}).Info("Scheduled job")
	}

	s.cron.Start()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) ExpireGrants() {
	expired, err := s.grants.ExpireGrants()
	if err != nil {
		logrus.WithError(err).Error("Grant expiry job failed")
		return
	}
	if expired > 0 {
		logrus.WithField("expired", expired).Info("Expired enrollments and entitlements")
	}
}

func (s *Scheduler) SyncVideos() {
	ctx, cancel := context.WithTimeout(s.rootContext, s.jobTimeout)
	defer cancel()

	synced, failed, err := s.videos.SyncAll(ctx)
	if err != nil {
		logrus.WithError(err).Error("Vimeo sync job failed")
		return
	}
	logrus.WithFields(logrus.Fields{"synced": synced, "failed": failed}).Info("Vimeo metadata synced")
}

func (s *Scheduler) RetryEvents() {
	ctx, cancel := context.WithTimeout(s.rootContext, s.jobTimeout)
	defer cancel()

	retried, err := s.events.RetryFailed(ctx, s.cfg.MaxEventAttempts)
	if err != nil {
		logrus.WithError(err).Error("Webhook retry job failed")
		return
	}
	if retried > 0 {
		logrus.WithField("retried", retried).Info("Retried failed webhook events")
	}
}
