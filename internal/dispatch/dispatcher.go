// File: internal/dispatch/dispatcher.go

// Package dispatch executes a closed batch of jobs over a fixed pool of
// workers. Each worker owns one automation session per job, releases it on
// every exit path, and converts any failure into a result instead of letting
// it near the batch.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mailforge/mailforge-cli/internal/accounts"
	"github.com/mailforge/mailforge-cli/internal/browser"
	"github.com/mailforge/mailforge-cli/internal/config"
	"github.com/mailforge/mailforge-cli/internal/jobs"
	"github.com/mailforge/mailforge-cli/internal/proxy"
)

// JobRunner executes one job's procedure on a session and always produces a
// result.
type JobRunner interface {
	Run(ctx context.Context, sess browser.Session, job jobs.Job) jobs.Result
}

// Summary is the aggregate outcome of one batch.
type Summary struct {
	Attempted int
	Succeeded int
}

// Failed reports the number of jobs that ended in a failure result.
func (s Summary) Failed() int { return s.Attempted - s.Succeeded }

// Dispatcher owns the worker pool. The proxy rotation and the account store
// are the only shared mutable resources it touches; each guards itself, so a
// worker persisting a result never blocks another worker's proxy allocation.
type Dispatcher struct {
	factory    browser.Factory
	rotation   *proxy.Rotation
	store      accounts.Store
	runner     JobRunner
	logger     *zap.Logger
	limiter    *rate.Limiter
	jobTimeout time.Duration
}

// New validates the dependencies and builds a dispatcher. A positive
// cfg.LaunchRate paces browser launches across all workers.
func New(
	factory browser.Factory,
	rotation *proxy.Rotation,
	store accounts.Store,
	runner JobRunner,
	cfg config.EngineConfig,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if factory == nil {
		return nil, errors.New("session factory cannot be nil")
	}
	if rotation == nil {
		return nil, errors.New("proxy rotation cannot be nil")
	}
	if store == nil {
		return nil, errors.New("account store cannot be nil")
	}
	if runner == nil {
		return nil, errors.New("job runner cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}

	var limiter *rate.Limiter
	if cfg.LaunchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.LaunchRate), 1)
	}

	return &Dispatcher{
		factory:    factory,
		rotation:   rotation,
		store:      store,
		runner:     runner,
		logger:     logger.Named("dispatch"),
		limiter:    limiter,
		jobTimeout: jobTimeout,
	}, nil
}

// Run executes the batch with at most the requested number of workers and
// blocks until every worker has drained the queue and exited. Results are
// collected in completion order, not submission order; callers match results
// to jobs by email. Cancelling ctx stops workers from pulling new jobs, but
// jobs already started run to completion.
func (d *Dispatcher) Run(ctx context.Context, batch []jobs.Job, workers int) ([]jobs.Result, Summary) {
	attempted := len(batch)
	if attempted == 0 {
		return nil, Summary{}
	}
	if workers > attempted {
		workers = attempted
	}
	if workers < 1 {
		workers = 1
	}

	d.logger.Info("Starting job batch",
		zap.Int("jobs", attempted),
		zap.Int("workers", workers),
		zap.Int("proxies", d.rotation.Len()),
	)

	// The batch is closed: every job is queued before any worker starts.
	queue := make(chan jobs.Job, attempted)
	for _, job := range batch {
		queue <- job
	}
	close(queue)

	resultCh := make(chan jobs.Result, attempted)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		workerID := i + 1
		g.Go(func() error {
			log := d.logger.With(zap.Int("worker_id", workerID))
			for {
				select {
				case <-ctx.Done():
					log.Info("Stop requested, worker exiting", zap.Error(ctx.Err()))
					return nil
				default:
				}
				job, ok := <-queue
				if !ok {
					return nil
				}
				resultCh <- d.execute(ctx, job, log)
			}
		})
	}
	// Workers never return errors; failures are results.
	_ = g.Wait()
	close(resultCh)

	results := make([]jobs.Result, 0, attempted)
	succeeded := 0
	for result := range resultCh {
		results = append(results, result)
		if !result.Failed() {
			succeeded++
		}
	}

	summary := Summary{Attempted: attempted, Succeeded: succeeded}
	d.logger.Info("Job batch finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("attempted", summary.Attempted),
	)
	return results, summary
}

// execute runs one job from proxy allocation through persistence. Once a job
// starts it is allowed to finish even if the batch context is cancelled; only
// the per-job timeout bounds it.
func (d *Dispatcher) execute(ctx context.Context, job jobs.Job, log *zap.Logger) jobs.Result {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.jobTimeout)
	defer cancel()

	log = log.With(zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))

	if d.limiter != nil {
		if err := d.limiter.Wait(jobCtx); err != nil {
			return jobs.Result{
				JobID: job.ID, Kind: job.Kind, Email: job.Email,
				Err: fmt.Sprintf("launch pacing interrupted: %v", err),
			}
		}
	}

	endpoint, ok := d.rotation.Next()
	if ok {
		log.Debug("Proxy allocated", zap.String("proxy", endpoint))
	} else {
		log.Debug("No proxy configured, using direct connection")
	}

	sess, err := d.factory.New(jobCtx, endpoint)
	if err != nil {
		// Infrastructure failure: fail this job, not the run.
		log.Error("Failed to start automation session", zap.String("proxy", endpoint), zap.Error(err))
		return jobs.Result{
			JobID: job.ID, Kind: job.Kind, Email: job.Email,
			Err: fmt.Sprintf("failed to start automation session: %v", err),
		}
	}
	defer func() {
		if cerr := sess.Close(jobCtx); cerr != nil {
			log.Warn("Failed to close automation session", zap.Error(cerr))
		}
	}()

	result := d.runner.Run(jobCtx, sess, job)
	d.persist(result, log)
	return result
}

// persist routes a successful result to the store. A store write failure is
// logged with email and operation so the record can be recovered manually; it
// does not retroactively fail the job.
func (d *Dispatcher) persist(result jobs.Result, log *zap.Logger) {
	if result.Failed() {
		log.Warn("Job failed",
			zap.String("email", result.Email),
			zap.String("error", result.Err),
			zap.Float64("elapsed_s", result.ElapsedSeconds),
		)
		return
	}

	var err error
	var operation string
	switch result.Kind {
	case jobs.KindChangePassword:
		operation = "update"
		err = d.store.Update(result.Change())
	default:
		operation = "save"
		err = d.store.Save(result.Record)
	}
	if err != nil {
		log.Error("Failed to persist job result",
			zap.String("email", result.Record.Email),
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
}
