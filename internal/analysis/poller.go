package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"token-graph-lab/internal/domain"
)

// Poll intervals used by the dashboard.
const (
	DefaultStatusInterval  = 2 * time.Second
	DefaultOngoingInterval = 5 * time.Second
)

// StatusSource is the part of Client the poller needs.
type StatusSource interface {
	Status(ctx context.Context, tokenID string) (*domain.AnalysisJob, error)
	Ongoing(ctx context.Context) ([]domain.AnalysisJob, error)
}

var _ StatusSource = (*Client)(nil)

// Update is one poll result.
type Update struct {
	Job domain.AnalysisJob
	Err error
}

// OngoingUpdate is one poll of the ongoing job list.
type OngoingUpdate struct {
	Jobs []domain.AnalysisJob
	Err  error
}

// Poller polls job status on a timer without blocking its caller.
type Poller struct {
	source          StatusSource
	statusInterval  time.Duration
	ongoingInterval time.Duration
	logger          *zap.Logger
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	StatusInterval  time.Duration
	OngoingInterval time.Duration
	Logger          *zap.Logger
}

// NewPoller creates a poller over source.
func NewPoller(source StatusSource, opts PollerOptions) *Poller {
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	if opts.OngoingInterval <= 0 {
		opts.OngoingInterval = DefaultOngoingInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Poller{
		source:          source,
		statusInterval:  opts.StatusInterval,
		ongoingInterval: opts.OngoingInterval,
		logger:          opts.Logger,
	}
}

// Watch polls the status of tokenID immediately and then every status
// interval. The channel receives every result and is closed after a
// terminal status, an error or ctx cancellation.
func (p *Poller) Watch(ctx context.Context, tokenID string) <-chan Update {
	out := make(chan Update, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(p.statusInterval)
		defer ticker.Stop()

		for {
			job, err := p.source.Status(ctx, tokenID)
			var u Update
			if err != nil {
				u.Err = err
			} else {
				u.Job = *job
			}

			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
			if err != nil || u.Job.Status.Terminal() {
				p.logger.Debug("status polling stopped",
					zap.String("token", tokenID),
					zap.String("status", string(u.Job.Status)),
					zap.Error(err),
				)
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

// Wait blocks until tokenID reaches a terminal status.
func (p *Poller) Wait(ctx context.Context, tokenID string, progress func(domain.AnalysisJob)) (*domain.AnalysisJob, error) {
	var last domain.AnalysisJob
	for u := range p.Watch(ctx, tokenID) {
		if u.Err != nil {
			return nil, u.Err
		}
		last = u.Job
		if progress != nil {
			progress(last)
		}
	}
	if !last.Status.Terminal() {
		return nil, ctx.Err()
	}
	return &last, nil
}

// WatchOngoing polls the ongoing job list until ctx is cancelled or a poll
// fails.
func (p *Poller) WatchOngoing(ctx context.Context) <-chan OngoingUpdate {
	out := make(chan OngoingUpdate, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(p.ongoingInterval)
		defer ticker.Stop()

		for {
			jobs, err := p.source.Ongoing(ctx)
			select {
			case out <- OngoingUpdate{Jobs: jobs, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}
