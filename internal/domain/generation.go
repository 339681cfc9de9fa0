package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImageSource carries the input photo, either inline or as a reference URL.
// Exactly one of Data/URL must be set.
type ImageSource struct {
	Data     []byte
	MIMEType string
	URL      string
}

func (s ImageSource) Validate() error {
	hasData := len(s.Data) > 0
	hasURL := strings.TrimSpace(s.URL) != ""
	switch {
	case !hasData && !hasURL:
		return fmt.Errorf("%w: image is required", ErrInvalidInput)
	case hasData && hasURL:
		return fmt.Errorf("%w: provide either inline image or image url, not both", ErrInvalidInput)
	}
	return nil
}

// GenerationRequest is built per invocation from the request body and never
// persisted verbatim. Any user identifier in the body is ignored; identity
// comes from the credential alone.
type GenerationRequest struct {
	StyleKind    string
	Image        ImageSource
	Instructions string
	Constraints  map[string]string
	GenderMode   string
	Country      string
}

// Identity is the verified caller, derived once per request from the bearer
// credential and immutable afterwards.
type Identity struct {
	UserID      uuid.UUID
	TokenExpiry time.Time
}

type Tier string

const (
	TierMetered    Tier = "metered"
	TierFreeWeekly Tier = "free_weekly"
)

// QuotaState is read fresh at request time and mutated only by the result
// recorder after a confirmed success.
type QuotaState struct {
	Tier           Tier
	MeteredBalance int
	FreeWeeklyUsed int
	FreeWeeklyCap  int
}

type JobState string

const (
	JobQueued    JobState = "QUEUED"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobCanceled  JobState = "CANCELED"
	JobUnknown   JobState = "UNKNOWN"
)

// Terminal reports whether the provider will never transition the job again.
func (s JobState) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCanceled:
		return true
	}
	return false
}

// Job is owned by the external provider; it is only ever observed via polling.
type Job struct {
	ID        string
	State     JobState
	OutputRef string
}

// GenerationRecord is the audit row written exactly once per successful job.
// It doubles as the evidence source for free-tier usage counting.
type GenerationRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	JobID      string
	StyleKind  string
	PromptText string
	OutputRef  string
	Country    string
	CreatedAt  time.Time
}
