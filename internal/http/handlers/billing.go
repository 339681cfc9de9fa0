package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"server/internal/sqlinline"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

const webhookMaxBodyBytes = int64(65536)

// BillingCheckout creates a Stripe Checkout session for one credit pack. The
// verified user id travels in session metadata so the webhook can attribute
// the payment without trusting anything client-side.
func (a *App) BillingCheckout(w http.ResponseWriter, r *http.Request) {
	ident, err := a.Identity.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credential")
		return
	}
	if a.Config.StripeKey == "" || a.Config.StripePriceID == "" {
		a.error(w, http.StatusInternalServerError, "internal", "billing is not configured")
		return
	}

	stripe.Key = a.Config.StripeKey
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(a.Config.CheckoutSuccessURL),
		CancelURL:  stripe.String(a.Config.CheckoutCancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(a.Config.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.AddMetadata("user_id", ident.UserID.String())

	result, err := session.New(params)
	if err != nil {
		a.Logger.Error().Err(err).Msg("checkout session creation failed")
		a.error(w, http.StatusInternalServerError, "internal", "unable to create checkout session")
		return
	}

	a.json(w, http.StatusOK, map[string]string{"checkout_url": result.URL})
}

// BillingWebhook applies completed checkouts as credit top-ups. The top-up is
// keyed by the Stripe event id, so redelivery never credits twice.
func (a *App) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, webhookMaxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "failed to read webhook body")
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), a.Config.StripeWebhookSecret)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("webhook signature verification failed")
		a.error(w, http.StatusBadRequest, "bad_request", "invalid webhook signature")
		return
	}

	if event.Type != "checkout.session.completed" {
		a.json(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "malformed checkout session payload")
		return
	}
	userID, err := uuid.Parse(sess.Metadata["user_id"])
	if err != nil {
		a.Logger.Error().Str("event_id", event.ID).Msg("checkout session missing user metadata")
		a.error(w, http.StatusBadRequest, "bad_request", "checkout session missing user metadata")
		return
	}

	row := a.SQL.QueryRow(r.Context(), sqlinline.QAddCredits, event.ID, userID, a.Config.CreditsPerPurchase)
	var balance *int
	if err := row.Scan(&balance); err != nil {
		a.Logger.Error().Err(err).Str("event_id", event.ID).Msg("credit top-up failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to apply credits")
		return
	}
	if balance == nil {
		a.Logger.Info().Str("event_id", event.ID).Msg("webhook event replayed, top-up already applied")
	} else {
		a.Logger.Info().Str("event_id", event.ID).Str("user_id", userID.String()).Int("balance", *balance).Msg("credits applied")
	}

	a.json(w, http.StatusOK, map[string]bool{"received": true})
}
