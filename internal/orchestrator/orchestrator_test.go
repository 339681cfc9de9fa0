package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"server/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubIdentity struct {
	ident domain.Identity
	err   error
}

func (s stubIdentity) Resolve(ctx context.Context, credential string) (domain.Identity, error) {
	return s.ident, s.err
}

type stubLimiter struct {
	err   error
	calls int
}

func (s *stubLimiter) Allow(ctx context.Context, userID string) error {
	s.calls++
	return s.err
}

func (s *stubLimiter) RetryAfter() time.Duration { return time.Minute }

type stubModerator struct {
	err   error
	calls int
}

func (s *stubModerator) Check(ctx context.Context, image domain.ImageSource) error {
	s.calls++
	return s.err
}

type stubQuota struct {
	state domain.QuotaState
	err   error
	calls int
}

func (s *stubQuota) Check(ctx context.Context, userID uuid.UUID) (domain.QuotaState, error) {
	s.calls++
	return s.state, s.err
}

type stubJobs struct {
	submitJob  domain.Job
	submitErr  error
	submits    int
	statuses   []domain.Job
	statusErr  error
	statusIdx  int
	statusSeen int
}

func (s *stubJobs) Submit(ctx context.Context, image domain.ImageSource, directive, negative string) (domain.Job, error) {
	s.submits++
	return s.submitJob, s.submitErr
}

func (s *stubJobs) Status(ctx context.Context, jobID string) (domain.Job, error) {
	s.statusSeen++
	if s.statusErr != nil {
		return domain.Job{}, s.statusErr
	}
	if s.statusIdx < len(s.statuses) {
		job := s.statuses[s.statusIdx]
		s.statusIdx++
		return job, nil
	}
	if len(s.statuses) == 0 {
		return domain.Job{ID: jobID, State: domain.JobRunning}, nil
	}
	return s.statuses[len(s.statuses)-1], nil
}

type stubRecorder struct {
	remaining *int
	err       error
	calls     int
	last      domain.GenerationRecord
	lastTier  domain.Tier
}

func (s *stubRecorder) Record(ctx context.Context, rec domain.GenerationRecord, tier domain.Tier) (domain.GenerationRecord, *int, error) {
	s.calls++
	s.last = rec
	s.lastTier = tier
	if s.err != nil {
		return rec, nil, s.err
	}
	rec.ID = uuid.New()
	return rec, s.remaining, nil
}

type fixture struct {
	identity *stubIdentity
	limiter  *stubLimiter
	mod      *stubModerator
	quota    *stubQuota
	jobs     *stubJobs
	recorder *stubRecorder
}

func newFixture() *fixture {
	return &fixture{
		identity: &stubIdentity{ident: domain.Identity{UserID: uuid.New(), TokenExpiry: time.Now().Add(time.Hour)}},
		limiter:  &stubLimiter{},
		mod:      &stubModerator{},
		quota:    &stubQuota{state: domain.QuotaState{Tier: domain.TierFreeWeekly, FreeWeeklyUsed: 0, FreeWeeklyCap: 2}},
		jobs: &stubJobs{
			submitJob: domain.Job{ID: "task-1", State: domain.JobQueued},
			statuses:  []domain.Job{{ID: "task-1", State: domain.JobSucceeded, OutputRef: "https://cdn.example.com/out.png"}},
		},
		recorder: &stubRecorder{},
	}
}

func (f *fixture) build() *Orchestrator {
	return New(Deps{
		Identity:     f.identity,
		Limiter:      f.limiter,
		Moderator:    f.mod,
		Quota:        f.quota,
		Jobs:         f.jobs,
		Recorder:     f.recorder,
		Logger:       zerolog.Nop(),
		PollInterval: time.Millisecond,
		PollDeadline: time.Second,
	})
}

func validRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		StyleKind: "portrait",
		Image:     domain.ImageSource{URL: "https://example.com/in.png"},
	}
}

func TestGenerateHappyPath(t *testing.T) {
	f := newFixture()
	o := f.build()

	out, err := o.Generate(context.Background(), "token", validRequest())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if out.Record.OutputRef != "https://cdn.example.com/out.png" {
		t.Fatalf("output ref not carried: %s", out.Record.OutputRef)
	}
	if out.Record.JobID != "task-1" {
		t.Fatalf("job id not carried: %s", out.Record.JobID)
	}
	if out.Directive == "" || out.Description == "" {
		t.Fatal("directive and description must be populated")
	}
	if f.recorder.calls != 1 {
		t.Fatalf("expected one record call, got %d", f.recorder.calls)
	}
	if f.recorder.lastTier != domain.TierFreeWeekly {
		t.Fatalf("tier not forwarded to recorder: %s", f.recorder.lastTier)
	}
}

func TestGenerateMeteredReportsRemaining(t *testing.T) {
	f := newFixture()
	f.quota.state = domain.QuotaState{Tier: domain.TierMetered, MeteredBalance: 5}
	four := 4
	f.recorder.remaining = &four
	o := f.build()

	out, err := o.Generate(context.Background(), "token", validRequest())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if out.RemainingCredits == nil || *out.RemainingCredits != 4 {
		t.Fatalf("remaining credits not reported: %v", out.RemainingCredits)
	}
}

func TestGenerateMissingImage(t *testing.T) {
	f := newFixture()
	o := f.build()

	_, err := o.Generate(context.Background(), "token", domain.GenerationRequest{StyleKind: "portrait"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if f.limiter.calls != 0 {
		t.Fatal("validation failure must stop before the limiter")
	}
}

func TestGenerateUnauthenticatedStopsPipeline(t *testing.T) {
	f := newFixture()
	f.identity.err = domain.ErrUnauthenticated
	o := f.build()

	_, err := o.Generate(context.Background(), "bad", validRequest())
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if f.limiter.calls != 0 || f.mod.calls != 0 || f.jobs.submits != 0 {
		t.Fatal("no later stage may run after identity failure")
	}
}

func TestGenerateRateLimitedSkipsModeration(t *testing.T) {
	f := newFixture()
	f.limiter.err = domain.ErrRateLimited
	o := f.build()

	_, err := o.Generate(context.Background(), "token", validRequest())
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if f.mod.calls != 0 || f.quota.calls != 0 || f.jobs.submits != 0 {
		t.Fatal("rate-limited request must not reach moderation or beyond")
	}
}

func TestGenerateContentRejectedSkipsQuota(t *testing.T) {
	f := newFixture()
	f.mod.err = domain.ErrContentRejected
	o := f.build()

	_, err := o.Generate(context.Background(), "token", validRequest())
	if !errors.Is(err, domain.ErrContentRejected) {
		t.Fatalf("expected content rejection, got %v", err)
	}
	if f.quota.calls != 0 {
		t.Fatal("rejected content must not consume a quota check")
	}
	if f.jobs.submits != 0 {
		t.Fatal("rejected content must never be submitted")
	}
}

func TestGenerateQuotaExceededSkipsSubmit(t *testing.T) {
	f := newFixture()
	f.quota.err = domain.ErrQuotaExceeded
	o := f.build()

	_, err := o.Generate(context.Background(), "token", validRequest())
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if f.jobs.submits != 0 {
		t.Fatal("exhausted quota must not submit a job")
	}
}

func TestGenerateJobFailedIsNotRecorded(t *testing.T) {
	f := newFixture()
	f.jobs.statuses = []domain.Job{{ID: "task-1", State: domain.JobFailed}}
	o := f.build()

	_, err := o.Generate(context.Background(), "token", validRequest())
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
	if f.recorder.calls != 0 {
		t.Fatal("failed job must never be recorded or charged")
	}
}

func TestGenerateSucceededWithoutOutputIsFailure(t *testing.T) {
	f := newFixture()
	f.jobs.statuses = []domain.Job{{ID: "task-1", State: domain.JobSucceeded}}
	o := f.build()

	_, err := o.Generate(context.Background(), "token", validRequest())
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
	if f.recorder.calls != 0 {
		t.Fatal("success without output must not be recorded")
	}
}

func TestGeneratePollTimeout(t *testing.T) {
	f := newFixture()
	f.jobs.statuses = nil // stays RUNNING forever
	o := New(Deps{
		Identity:     f.identity,
		Limiter:      f.limiter,
		Moderator:    f.mod,
		Quota:        f.quota,
		Jobs:         f.jobs,
		Recorder:     f.recorder,
		Logger:       zerolog.Nop(),
		PollInterval: time.Millisecond,
		PollDeadline: 20 * time.Millisecond,
	})

	_, err := o.Generate(context.Background(), "token", validRequest())
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if f.recorder.calls != 0 {
		t.Fatal("timed-out job must not be recorded or charged")
	}
}

func TestGenerateCallerCancellation(t *testing.T) {
	f := newFixture()
	f.jobs.statuses = nil
	o := f.build()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := o.Generate(ctx, "token", validRequest())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, domain.ErrTimeout) {
		t.Fatal("caller cancellation must not be reported as a timeout")
	}
	if f.recorder.calls != 0 {
		t.Fatal("canceled request must not be recorded")
	}
}

func TestGeneratePollsUntilTerminal(t *testing.T) {
	f := newFixture()
	f.jobs.statuses = []domain.Job{
		{ID: "task-1", State: domain.JobQueued},
		{ID: "task-1", State: domain.JobRunning},
		{ID: "task-1", State: domain.JobRunning},
		{ID: "task-1", State: domain.JobSucceeded, OutputRef: "https://cdn.example.com/out.png"},
	}
	o := f.build()

	out, err := o.Generate(context.Background(), "token", validRequest())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if f.jobs.statusSeen != 4 {
		t.Fatalf("expected 4 status polls, got %d", f.jobs.statusSeen)
	}
	if out.Record.OutputRef == "" {
		t.Fatal("output ref missing after successful poll")
	}
}

func TestGenerateRecorderFailureSurfaces(t *testing.T) {
	f := newFixture()
	f.recorder.err = domain.ErrPersistence
	o := f.build()

	_, err := o.Generate(context.Background(), "token", validRequest())
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}
