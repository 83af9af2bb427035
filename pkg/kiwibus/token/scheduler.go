package token

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler refreshes a Store on a cron schedule, so the token is renewed
// before the server starts answering with "expired".
type Scheduler struct {
	store    *Store
	logger   *zap.Logger
	cron     *cron.Cron
	timeout  time.Duration
	onResult func(token string, err error)
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewScheduler creates a Scheduler refreshing store on schedule, which may be
// a cron expression with optional seconds or a descriptor such as "@every 5m".
func NewScheduler(store *Store, schedule string, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		store:   store,
		logger:  logger,
		timeout: 30 * time.Second,
		cron: cron.New(
			cron.WithLogger(NewZapCronLogger(logger)),
			cron.WithParser(cronParser),
			cron.WithChain(cron.SkipIfStillRunning(NewZapCronLogger(logger))),
		),
	}

	if _, err := s.cron.AddJob(schedule, s); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	return s, nil
}

// WithTimeout bounds each refresh request.
func (s *Scheduler) WithTimeout(timeout time.Duration) *Scheduler {
	if timeout > 0 {
		s.timeout = timeout
	}
	return s
}

// WithResultHandler sets a callback run after every refresh attempt.
func (s *Scheduler) WithResultHandler(fn func(token string, err error)) *Scheduler {
	s.onResult = fn
	return s
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule. The returned context is done once a refresh that
// is already running has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Run performs one refresh. It implements cron.Job.
func (s *Scheduler) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	token, err := s.store.Refresh(ctx)
	if err != nil {
		s.logger.Error("Scheduled access token refresh failed", zap.Error(err))
	} else {
		s.store.Set(token)
		s.logger.Debug("Scheduled access token refresh succeeded")
	}

	if s.onResult != nil {
		s.onResult(token, err)
	}
}
