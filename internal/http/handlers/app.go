package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/orchestrator"
	"server/internal/quota"
	"server/internal/sqlinline"

	"github.com/rs/zerolog"
)

// Generator is the orchestrator surface the HTTP layer depends on.
type Generator interface {
	Generate(ctx context.Context, credential string, req domain.GenerationRequest) (*orchestrator.Outcome, error)
	RetryAfter() time.Duration
}

type App struct {
	SQL       infra.SQLExecutor
	Generator Generator
	Identity  orchestrator.IdentityResolver
	Quota     *quota.Manager
	Config    *infra.Config
	Logger    zerolog.Logger
}

func NewApp(sql infra.SQLExecutor, gen Generator, ident orchestrator.IdentityResolver, q *quota.Manager, cfg *infra.Config, logger zerolog.Logger) *App {
	return &App{SQL: sql, Generator: gen, Identity: ident, Quota: q, Config: cfg, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error        string `json:"error"`
	Code         string `json:"code,omitempty"`
	LimitReached bool   `json:"limitReached,omitempty"`
	RetryAfter   int    `json:"retryAfter,omitempty"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorResponse{Error: message, Code: code})
}

// bearerToken extracts the credential from the Authorization header. An empty
// result is rejected downstream as unauthenticated.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// recordUsage writes a best-effort audit event. It deliberately runs on a
// fresh context so a disconnected client still leaves a trace.
func (a *App) recordUsage(r *http.Request, userID, eventType string, success bool, elapsed time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := a.SQL.Exec(ctx, sqlinline.QInsertUsageEvent,
		userID,
		middleware.RequestIDFromContext(r.Context()),
		eventType,
		success,
		elapsed.Milliseconds(),
		middleware.CountryFromContext(r.Context()),
	)
	if err != nil {
		a.Logger.Warn().Err(err).Str("event", eventType).Msg("usage event not recorded")
	}
}
