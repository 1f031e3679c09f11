package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"example.com/pod-fulfillment/internal/domain/fault"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	paymentuc "example.com/pod-fulfillment/internal/usecase/payment"
)

const maxWebhookBytes = 1 << 20

type recordPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method" validate:"required"`
	TransactionID string          `json:"transaction_id" validate:"required,max=255"`
}

func (a *API) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, errUnauthenticated)
		return
	}
	orderID, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}

	var req recordPaymentRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}

	p, created, err := a.paymentSvc.RecordDirectPayment(r.Context(), actor, orderID, paymentuc.DirectPaymentInput{
		Amount:        req.Amount,
		Method:        dompayment.Method(strings.ToUpper(strings.TrimSpace(req.Method))),
		TransactionID: req.TransactionID,
	})
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, mapPayment(p))
}

func (a *API) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, errUnauthenticated)
		return
	}
	orderID, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}

	res, err := a.paymentSvc.CreateIntent(r.Context(), actor, orderID)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"intent_id":       res.IntentID,
		"client_secret":   res.ClientSecret,
		"amount":          res.AmountMinor,
		"currency":        res.Currency,
		"publishable_key": res.PublishableKey,
	})
}

func (a *API) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, errUnauthenticated)
		return
	}
	orderID, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}

	res, err := a.paymentSvc.CreateCheckoutSession(r.Context(), actor, orderID)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": res.SessionID,
		"url":        res.URL,
	})
}

// handlePaymentWebhook answers with a bare status: 200 acknowledges, 4xx
// rejects permanently and 5xx asks the gateway to redeliver.
func (a *API) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(payload) > maxWebhookBytes {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	_, err = a.paymentSvc.ApplyWebhookEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case fault.IsTransient(err):
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}
