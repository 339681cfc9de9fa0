package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/imagegen"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// The orchestrator owns the one request path with real correctness stakes:
// identity, rate limit, moderation and quota are checked in a fixed order,
// then a provider job is started, polled to a terminal state under a hard
// deadline, and recorded with an at-most-once charge. Every stage failure
// short-circuits the remainder.

type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (domain.Identity, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, userID string) error
	RetryAfter() time.Duration
}

type Moderator interface {
	Check(ctx context.Context, image domain.ImageSource) error
}

type QuotaChecker interface {
	Check(ctx context.Context, userID uuid.UUID) (domain.QuotaState, error)
}

type JobClient interface {
	Submit(ctx context.Context, image domain.ImageSource, directive, negative string) (domain.Job, error)
	Status(ctx context.Context, jobID string) (domain.Job, error)
}

type Recorder interface {
	Record(ctx context.Context, rec domain.GenerationRecord, tier domain.Tier) (domain.GenerationRecord, *int, error)
}

type Orchestrator struct {
	identity  IdentityResolver
	limiter   RateLimiter
	moderator Moderator
	quota     QuotaChecker
	jobs      JobClient
	recorder  Recorder
	logger    zerolog.Logger

	pollInterval time.Duration
	pollDeadline time.Duration
}

type Deps struct {
	Identity  IdentityResolver
	Limiter   RateLimiter
	Moderator Moderator
	Quota     QuotaChecker
	Jobs      JobClient
	Recorder  Recorder
	Logger    zerolog.Logger

	PollInterval time.Duration
	PollDeadline time.Duration
}

func New(deps Deps) *Orchestrator {
	interval := deps.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	deadline := deps.PollDeadline
	if deadline <= 0 {
		deadline = 60 * time.Second
	}
	return &Orchestrator{
		identity:     deps.Identity,
		limiter:      deps.Limiter,
		moderator:    deps.Moderator,
		quota:        deps.Quota,
		jobs:         deps.Jobs,
		recorder:     deps.Recorder,
		logger:       deps.Logger,
		pollInterval: interval,
		pollDeadline: deadline,
	}
}

// Outcome is the result of a fully successful pipeline run.
type Outcome struct {
	Record           domain.GenerationRecord
	Directive        string
	Description      string
	Tier             domain.Tier
	RemainingCredits *int
}

// RetryAfter exposes the limiter's retry hint for 429 responses.
func (o *Orchestrator) RetryAfter() time.Duration {
	return o.limiter.RetryAfter()
}

// Generate runs the pipeline for one request. Stages execute strictly in
// order; no stage after the quota check runs unless all prior stages passed,
// and nothing is retried here except the bounded poll loop.
func (o *Orchestrator) Generate(ctx context.Context, credential string, req domain.GenerationRequest) (*Outcome, error) {
	if err := req.Image.Validate(); err != nil {
		return nil, err
	}

	ident, err := o.identity.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}

	if err := o.limiter.Allow(ctx, ident.UserID.String()); err != nil {
		return nil, err
	}

	if err := o.moderator.Check(ctx, req.Image); err != nil {
		return nil, err
	}

	state, err := o.quota.Check(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}

	style := imagegen.StyleInput{
		Kind:         req.StyleKind,
		Constraints:  req.Constraints,
		Instructions: req.Instructions,
		GenderMode:   req.GenderMode,
	}
	directive := imagegen.BuildDirective(style)

	job, err := o.jobs.Submit(ctx, req.Image, directive, imagegen.NegativePrompt)
	if err != nil {
		o.logger.Error().Err(err).Str("user_id", ident.UserID.String()).Msg("job submission failed")
		return nil, err
	}

	outputRef, err := o.awaitJob(ctx, job)
	if err != nil {
		if errors.Is(err, domain.ErrProviderFailure) || errors.Is(err, domain.ErrTimeout) {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("job did not complete")
		}
		return nil, err
	}

	rec := domain.GenerationRecord{
		UserID:     ident.UserID,
		JobID:      job.ID,
		StyleKind:  req.StyleKind,
		PromptText: directive,
		OutputRef:  outputRef,
		Country:    req.Country,
	}
	stored, remaining, err := o.recorder.Record(ctx, rec, state.Tier)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Record:           stored,
		Directive:        directive,
		Description:      imagegen.Describe(style),
		Tier:             state.Tier,
		RemainingCredits: remaining,
	}, nil
}

// awaitJob polls the job on a fixed cadence until a terminal state or the
// deadline. The poller only observes; it never mutates the job. Cancellation
// of the surrounding request stops the loop before the next provider call.
func (o *Orchestrator) awaitJob(ctx context.Context, job domain.Job) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.pollDeadline)
	defer cancel()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	current := job
	for {
		switch current.State {
		case domain.JobSucceeded:
			if current.OutputRef == "" {
				return "", fmt.Errorf("%w: job %s succeeded without output", domain.ErrProviderFailure, job.ID)
			}
			return current.OutputRef, nil
		case domain.JobFailed, domain.JobCanceled:
			return "", fmt.Errorf("%w: job %s ended as %s", domain.ErrProviderFailure, job.ID, current.State)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: job %s still %s after %s", domain.ErrTimeout, job.ID, current.State, o.pollDeadline)
			}
			return "", ctx.Err()
		case <-ticker.C:
		}

		next, err := o.jobs.Status(ctx, job.ID)
		if err != nil {
			return "", err
		}
		current = next
	}
}
