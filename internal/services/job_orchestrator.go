package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/config"
	"github.com/SAP-F-2025/worksheet-session/internal/events"
	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/SAP-F-2025/worksheet-session/internal/repositories"
	"github.com/SAP-F-2025/worksheet-session/internal/validator"
	"github.com/google/uuid"
)

const genericJobFailure = "The job failed without an error message."

// SubmitFunc starts server-side work and returns its task id.
type SubmitFunc func(ctx context.Context) (string, error)

// StatusFunc queries the state of a submitted task.
type StatusFunc func(ctx context.Context, taskID string) (*models.JobStatusResponse, error)

// JobSpec describes one unit of asynchronous work.
type JobSpec struct {
	Target string         `json:"target" validate:"required"`
	Kind   models.JobKind `json:"kind" validate:"required,job_kind"`
	Submit SubmitFunc     `json:"-"`
	Status StatusFunc     `json:"-"`
}

// BackendJob builds a JobSpec that submits payload to backend and polls it.
func BackendJob(backend repositories.JobBackend, target string, kind models.JobKind, payload interface{}) JobSpec {
	return JobSpec{
		Target: target,
		Kind:   kind,
		Submit: func(ctx context.Context) (string, error) {
			sub, err := backend.SubmitJob(ctx, kind, payload)
			if err != nil {
				return "", err
			}
			return sub.TaskID, nil
		},
		Status: backend.GetJobStatus,
	}
}

// JobOrchestrator runs bounded status polling for every job kind. At most one
// run is live per target; starting another cancels the previous one.
type JobOrchestrator struct {
	policies map[models.JobKind]config.JobPollConfig
	notifier *EventNotifier
	validate *validator.Validator
	logger   *slog.Logger

	mu   sync.Mutex
	runs map[string]*JobRun
	wg   sync.WaitGroup
}

func NewJobOrchestrator(policies map[models.JobKind]config.JobPollConfig, publisher events.EventPublisher, logger *slog.Logger) *JobOrchestrator {
	return &JobOrchestrator{
		policies: policies,
		notifier: NewEventNotifier(publisher, logger),
		validate: validator.New(),
		logger:   logger,
		runs:     make(map[string]*JobRun),
	}
}

// Start submits the job in the background and returns its handle. The run
// is cancelled when ctx is done.
func (o *JobOrchestrator) Start(ctx context.Context, spec JobSpec) (*JobRun, error) {
	if err := o.validate.ValidateStruct(spec); err != nil {
		return nil, err
	}
	policy, ok := o.policies[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("no polling policy for job kind %q", spec.Kind)
	}
	if policy.Interval <= 0 || policy.MaxAttempts <= 0 {
		return nil, fmt.Errorf("invalid polling policy for job kind %q", spec.Kind)
	}
	if spec.Submit == nil || spec.Status == nil {
		return nil, errors.New("job spec requires submit and status calls")
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &JobRun{
		cancel: cancel,
		done:   make(chan struct{}),
		job: models.Job{
			ID:     uuid.NewString(),
			Target: spec.Target,
			Kind:   spec.Kind,
			Status: models.JobPending,
		},
	}

	o.mu.Lock()
	previous := o.runs[spec.Target]
	o.runs[spec.Target] = run
	o.mu.Unlock()

	if previous != nil {
		o.logger.Info("Superseding running job", "target", spec.Target, "job_id", previous.ID())
		previous.Cancel()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer o.release(run)
		o.poll(runCtx, run, spec, policy)
		o.notifier.Notify(context.Background(), events.NewJobFinishedEvent(run.Snapshot()))
	}()

	return run, nil
}

// Run starts the job and blocks until it reaches a terminal state.
func (o *JobOrchestrator) Run(ctx context.Context, spec JobSpec) (json.RawMessage, error) {
	run, err := o.Start(ctx, spec)
	if err != nil {
		return nil, err
	}
	return run.Wait(ctx)
}

// Active returns the live run for target, if any.
func (o *JobOrchestrator) Active(target string) (*JobRun, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.runs[target]
	return run, ok
}

// CancelTarget stops polling for target. Server-side work is not cancelled.
func (o *JobOrchestrator) CancelTarget(target string) bool {
	run, ok := o.Active(target)
	if ok {
		run.Cancel()
	}
	return ok
}

// Shutdown cancels every live run and waits for the pollers to exit.
func (o *JobOrchestrator) Shutdown() {
	o.mu.Lock()
	runs := make([]*JobRun, 0, len(o.runs))
	for _, run := range o.runs {
		runs = append(runs, run)
	}
	o.mu.Unlock()

	for _, run := range runs {
		run.Cancel()
	}
	o.wg.Wait()
}

func (o *JobOrchestrator) release(run *JobRun) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runs[run.job.Target] == run {
		delete(o.runs, run.job.Target)
	}
}

func (o *JobOrchestrator) poll(ctx context.Context, run *JobRun, spec JobSpec, policy config.JobPollConfig) {
	logger := o.logger.With("job_id", run.ID(), "job_kind", spec.Kind, "target", spec.Target)

	taskID, err := spec.Submit(ctx)
	if ctx.Err() != nil {
		run.finish(models.JobCancelled, nil, ErrJobCancelled)
		return
	}
	if err != nil {
		logger.Warn("Job submission failed", "error", err)
		run.finish(models.JobFailure, nil, fmt.Errorf("submit %s job: %w", spec.Kind, err))
		return
	}
	run.update(func(j *models.Job) { j.TaskID = taskID })
	logger = logger.With("task_id", taskID)
	logger.Info("Job submitted", "interval", policy.Interval, "max_attempts", policy.MaxAttempts)

	timer := time.NewTimer(policy.Interval)
	defer timer.Stop()

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			run.finish(models.JobCancelled, nil, ErrJobCancelled)
			return
		case <-timer.C:
		}

		resp, err := spec.Status(ctx, taskID)
		run.update(func(j *models.Job) { j.Attempts = attempt })

		// A response that arrives after cancellation is never applied.
		if ctx.Err() != nil {
			run.finish(models.JobCancelled, nil, ErrJobCancelled)
			return
		}

		if err != nil {
			if IsUnauthorized(err) {
				logger.Warn("Job status query rejected", "attempt", attempt, "error", err)
				run.finish(models.JobFailure, nil, err)
				return
			}
			logger.Debug("Job status query failed, will retry", "attempt", attempt, "error", err)
		} else {
			switch resp.Normalized() {
			case models.JobSuccess:
				logger.Info("Job succeeded", "attempt", attempt)
				run.finish(models.JobSuccess, resp.Result, nil)
				return
			case models.JobFailure:
				msg := resp.Error
				if msg == "" {
					msg = genericJobFailure
				}
				logger.Warn("Job failed", "attempt", attempt, "error", msg)
				run.finish(models.JobFailure, nil, &JobError{TaskID: taskID, Message: msg})
				return
			case models.JobProgress:
				if resp.Progress != nil {
					pct := resp.Progress.Percent()
					run.update(func(j *models.Job) {
						j.Status = models.JobProgress
						j.ProgressPct = &pct
					})
				} else {
					run.update(func(j *models.Job) { j.Status = models.JobProgress })
				}
			}
		}

		timer.Reset(policy.Interval)
	}

	logger.Warn("Job polling exhausted", "attempts", policy.MaxAttempts)
	run.finish(models.JobTimeout, nil, ErrJobTimedOut)
}

// JobRun is the handle of one polled job.
type JobRun struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	job    models.Job
	result json.RawMessage
	err    error
}

func (r *JobRun) ID() string {
	return r.job.ID
}

// Done is closed once the run reaches a terminal state.
func (r *JobRun) Done() <-chan struct{} {
	return r.done
}

// Cancel stops further polling. A run that already finished is unaffected.
func (r *JobRun) Cancel() {
	r.cancel()
	r.finish(models.JobCancelled, nil, ErrJobCancelled)
}

// Wait blocks until the run finishes or ctx is done.
func (r *JobRun) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-r.done:
		return r.Outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Outcome returns the terminal result. Before completion both values are nil.
func (r *JobRun) Outcome() (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result, r.err
}

// Snapshot returns a copy of the job state.
func (r *JobRun) Snapshot() models.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job := r.job
	if r.job.ProgressPct != nil {
		pct := *r.job.ProgressPct
		job.ProgressPct = &pct
	}
	return job
}

func (r *JobRun) update(fn func(*models.Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job.Status.IsTerminal() {
		return
	}
	fn(&r.job)
}

// finish records the first terminal state only.
func (r *JobRun) finish(status models.JobStatus, result json.RawMessage, err error) bool {
	finished := false
	r.once.Do(func() {
		r.mu.Lock()
		r.job.Status = status
		r.job.Result = result
		if err != nil {
			r.job.Error = err.Error()
		}
		r.result = result
		r.err = err
		r.mu.Unlock()
		close(r.done)
		finished = true
	})
	return finished
}
