package quota

import (
	"context"
	"fmt"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const weeklyWindowDays = 7

// Manager decides tier and admission. It only ever reads; the balance is
// mutated exclusively by the Recorder after a confirmed success, so a failed
// or rejected job can never be charged.
type Manager struct {
	sql           infra.SQLExecutor
	freeWeeklyCap int
}

func NewManager(sql infra.SQLExecutor, freeWeeklyCap int) *Manager {
	return &Manager{sql: sql, freeWeeklyCap: freeWeeklyCap}
}

// Check reads the caller's quota state fresh from storage. A metered balance
// above zero admits regardless of weekly usage; otherwise the free-weekly cap
// applies to successes in the trailing 7 days.
func (m *Manager) Check(ctx context.Context, userID uuid.UUID) (domain.QuotaState, error) {
	row := m.sql.QueryRow(ctx, sqlinline.QSelectQuotaState, userID, weeklyWindowDays)
	var credits, weeklyUsed int
	if err := row.Scan(&credits, &weeklyUsed); err != nil {
		return domain.QuotaState{}, fmt.Errorf("%w: read quota state: %v", domain.ErrPersistence, err)
	}

	state := domain.QuotaState{
		MeteredBalance: credits,
		FreeWeeklyUsed: weeklyUsed,
		FreeWeeklyCap:  m.freeWeeklyCap,
	}
	if credits > 0 {
		state.Tier = domain.TierMetered
		return state, nil
	}
	state.Tier = domain.TierFreeWeekly
	if weeklyUsed >= m.freeWeeklyCap {
		return state, fmt.Errorf("%w: %d of %d weekly generations used", domain.ErrQuotaExceeded, weeklyUsed, m.freeWeeklyCap)
	}
	return state, nil
}

// Recorder applies the record-insert plus balance-debit pair atomically,
// keyed by the provider job id.
type Recorder struct {
	sql    infra.SQLExecutor
	logger zerolog.Logger
}

func NewRecorder(sql infra.SQLExecutor, logger zerolog.Logger) *Recorder {
	return &Recorder{sql: sql, logger: logger}
}

// Record persists the generation record and, for metered callers, debits one
// credit in the same statement. Calling it again with the same job id changes
// nothing and returns the already-stored record. remaining is non-nil only
// when a debit was applied by this call.
//
// A failure here is the most severe case in the system: the provider already
// did the work, so it is logged at error level with the job id before the
// caller sees a persistence failure.
func (r *Recorder) Record(ctx context.Context, rec domain.GenerationRecord, tier domain.Tier) (domain.GenerationRecord, *int, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QRecordGeneration,
		rec.UserID, rec.JobID, rec.StyleKind, rec.PromptText, rec.OutputRef, rec.Country, string(tier))

	var id uuid.UUID
	var remaining *int
	var inserted bool
	if err := row.Scan(&id, &remaining, &inserted); err != nil {
		r.logger.Error().
			Err(err).
			Str("job_id", rec.JobID).
			Str("user_id", rec.UserID.String()).
			Msg("generation succeeded but result persistence failed")
		return rec, nil, fmt.Errorf("%w: record generation: %v", domain.ErrPersistence, err)
	}
	rec.ID = id
	if !inserted {
		r.logger.Warn().Str("job_id", rec.JobID).Msg("generation record replayed, charge skipped")
	}
	return rec, remaining, nil
}
