package handlers

import (
	"errors"
	"net/http"

	"server/internal/domain"
)

type quotaResponse struct {
	Tier           string `json:"tier"`
	Credits        int    `json:"credits"`
	FreeWeeklyUsed int    `json:"free_weekly_used"`
	FreeWeeklyCap  int    `json:"free_weekly_cap"`
	LimitReached   bool   `json:"limitReached"`
}

// MyQuota reports the caller's current tier and remaining allowance. The state
// is read fresh; an exhausted free tier is still a 200 here since the caller
// asked for the state, not a generation.
func (a *App) MyQuota(w http.ResponseWriter, r *http.Request) {
	ident, err := a.Identity.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credential")
		return
	}

	state, err := a.Quota.Check(r.Context(), ident.UserID)
	limitReached := errors.Is(err, domain.ErrQuotaExceeded)
	if err != nil && !limitReached {
		a.Logger.Error().Err(err).Msg("quota read failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read quota")
		return
	}

	a.json(w, http.StatusOK, quotaResponse{
		Tier:           string(state.Tier),
		Credits:        state.MeteredBalance,
		FreeWeeklyUsed: state.FreeWeeklyUsed,
		FreeWeeklyCap:  state.FreeWeeklyCap,
		LimitReached:   limitReached,
	})
}
