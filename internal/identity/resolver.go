package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"server/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Resolver exchanges a bearer credential for a verified identity. The user id
// always comes from the identity provider's answer, never from the request
// body; the local claim parse only rejects garbage before spending a network
// round trip.
type Resolver struct {
	httpClient *http.Client
	verifyURL  string
	parser     *jwt.Parser
}

type Options struct {
	VerifyURL  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewResolver(opts Options) *Resolver {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Resolver{
		httpClient: client,
		verifyURL:  strings.TrimRight(opts.VerifyURL, "/"),
		parser:     jwt.NewParser(),
	}
}

type verifyResponse struct {
	ID string `json:"id"`
}

func (r *Resolver) Resolve(ctx context.Context, credential string) (domain.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing credential", domain.ErrUnauthenticated)
	}

	var claims jwt.RegisteredClaims
	if _, _, err := r.parser.ParseUnverified(credential, &claims); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: malformed credential", domain.ErrUnauthenticated)
	}
	var expiry time.Time
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
		if time.Now().After(expiry) {
			return domain.Identity{}, fmt.Errorf("%w: credential expired", domain.ErrUnauthenticated)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.verifyURL, nil)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity: build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity: verify call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.Identity{}, fmt.Errorf("%w: credential rejected by identity provider", domain.ErrUnauthenticated)
	default:
		return domain.Identity{}, fmt.Errorf("identity: verify endpoint returned %d", resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Identity{}, fmt.Errorf("identity: decode verify response: %w", err)
	}
	userID, err := uuid.Parse(strings.TrimSpace(body.ID))
	if err != nil {
		return domain.Identity{}, errors.New("identity: verify response missing user id")
	}

	return domain.Identity{UserID: userID, TokenExpiry: expiry}, nil
}
