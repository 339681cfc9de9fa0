package handlers

import (
	"net/http"
	"time"

	"server/internal/sqlinline"

	"github.com/google/uuid"
)

const generationsPageSize = 50

type generationItem struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	StyleKind string    `json:"style_kind"`
	Prompt    string    `json:"prompt"`
	Result    string    `json:"result"`
	Country   string    `json:"country,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListGenerations returns the caller's generation history, newest first.
func (a *App) ListGenerations(w http.ResponseWriter, r *http.Request) {
	ident, err := a.Identity.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credential")
		return
	}

	rows, err := a.SQL.Query(r.Context(), sqlinline.QSelectGenerations, ident.UserID, generationsPageSize)
	if err != nil {
		a.Logger.Error().Err(err).Msg("generation history query failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load generations")
		return
	}
	defer rows.Close()

	items := []generationItem{}
	for rows.Next() {
		var id uuid.UUID
		var item generationItem
		if err := rows.Scan(&id, &item.JobID, &item.StyleKind, &item.Prompt, &item.Result, &item.Country, &item.CreatedAt); err != nil {
			a.Logger.Warn().Err(err).Msg("skipping unreadable generation row")
			continue
		}
		item.ID = id.String()
		items = append(items, item)
	}

	a.json(w, http.StatusOK, map[string]any{"items": items})
}
