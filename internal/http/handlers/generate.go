package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"server/internal/domain"
	"server/internal/middleware"
)

type generateRequest struct {
	Type        string            `json:"type"`
	Image       string            `json:"image"`
	ImageURL    string            `json:"imageUrl"`
	Constraints map[string]string `json:"constraints"`
	Prompt      string            `json:"prompt"`
	GenderMode  string            `json:"genderMode"`
}

type qualityReport struct {
	Resolution string `json:"resolution"`
	Lighting   string `json:"lighting"`
	Style      string `json:"style"`
}

type generateResponse struct {
	Success       bool          `json:"success"`
	ID            string        `json:"id"`
	Result        string        `json:"result"`
	Description   string        `json:"description"`
	Message       string        `json:"message"`
	QualityReport qualityReport `json:"quality_report"`
}

// Generate is the single entry point of the generation pipeline. All decisions
// live in the orchestrator; this handler only translates between HTTP and the
// domain and maps the error taxonomy onto status codes.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	image, err := decodeImage(req)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	domainReq := domain.GenerationRequest{
		StyleKind:    strings.TrimSpace(req.Type),
		Image:        image,
		Instructions: req.Prompt,
		Constraints:  req.Constraints,
		GenderMode:   req.GenderMode,
		Country:      middleware.CountryFromContext(r.Context()),
	}

	outcome, err := a.Generator.Generate(r.Context(), bearerToken(r), domainReq)

	userID := ""
	if outcome != nil {
		userID = outcome.Record.UserID.String()
	}
	a.recordUsage(r, userID, "image_generate", err == nil, time.Since(start))

	if err != nil {
		a.writeGenerateError(w, r, err)
		return
	}

	message := "Your professional photo is ready."
	if outcome.Tier == domain.TierMetered && outcome.RemainingCredits != nil {
		message = messageWithCredits(*outcome.RemainingCredits)
	}

	a.json(w, http.StatusOK, generateResponse{
		Success:     true,
		ID:          outcome.Record.ID.String(),
		Result:      outcome.Record.OutputRef,
		Description: outcome.Description,
		Message:     message,
		QualityReport: qualityReport{
			Resolution: "4k",
			Lighting:   "studio",
			Style:      "photorealistic",
		},
	})
}

func decodeImage(req generateRequest) (domain.ImageSource, error) {
	image := domain.ImageSource{URL: strings.TrimSpace(req.ImageURL)}
	raw := strings.TrimSpace(req.Image)
	if raw == "" {
		return image, nil
	}
	// accept both bare base64 and data URIs
	if strings.HasPrefix(raw, "data:") {
		if idx := strings.Index(raw, ";base64,"); idx > 0 {
			image.MIMEType = strings.TrimPrefix(raw[:idx], "data:")
			raw = raw[idx+len(";base64,"):]
		}
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return domain.ImageSource{}, errors.New("image is not valid base64")
	}
	image.Data = data
	return image, nil
}

func messageWithCredits(remaining int) string {
	if remaining == 1 {
		return "Your professional photo is ready. 1 credit remaining."
	}
	return fmt.Sprintf("Your professional photo is ready. %d credits remaining.", remaining)
}

func (a *App) writeGenerateError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrContentRejected):
		a.error(w, http.StatusBadRequest, "content_rejected", "image was rejected by moderation")
	case errors.Is(err, domain.ErrUnauthenticated):
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credential")
	case errors.Is(err, domain.ErrQuotaExceeded):
		a.json(w, http.StatusForbidden, errorResponse{
			Error:        "generation quota exhausted",
			Code:         "quota_exceeded",
			LimitReached: true,
		})
	case errors.Is(err, domain.ErrRateLimited):
		retryAfter := int(a.Generator.RetryAfter().Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		a.json(w, http.StatusTooManyRequests, errorResponse{
			Error:      "too many requests",
			Code:       "rate_limited",
			RetryAfter: retryAfter,
		})
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to write
		a.Logger.Debug().Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("generation canceled by caller")
	case errors.Is(err, domain.ErrTimeout):
		a.Logger.Error().Err(err).Msg("generation timed out")
		a.error(w, http.StatusInternalServerError, "timeout", "generation did not complete in time")
	default:
		// provider, persistence and config failures all land here
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("generation failed")
		a.error(w, http.StatusInternalServerError, "internal", "generation failed")
	}
}
