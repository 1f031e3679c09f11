package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"example.com/pod-fulfillment/internal/domain/fault"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
)

const testWebhookSecret = "whsec_test_secret"

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		APIURL:        srv.URL,
		Timeout:       2 * time.Second,
	}, nil)
}

func writeStripeError(w http.ResponseWriter, status int, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"type":"` + typ + `","message":"request failed"}}`))
}

func TestCreateIntent_Success(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "4500", r.PostForm.Get("amount"))
		require.Equal(t, "usd", r.PostForm.Get("currency"))
		require.Equal(t, "42", r.PostForm.Get("metadata[order_id]"))
		require.Equal(t, "7", r.PostForm.Get("metadata[user_id]"))
		require.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret_abc","amount":4500,"currency":"usd"}`))
	})

	intent, err := g.CreateIntent(context.Background(), dompayment.IntentRequest{
		OrderID: 42, UserID: 7, AmountMinor: 4500, Currency: "usd",
	})
	require.NoError(t, err)
	require.Equal(t, "pi_123", intent.ID)
	require.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
	require.Equal(t, int64(4500), intent.AmountMinor)
}

func TestCreateIntent_RejectedIsPermanent(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeStripeError(w, http.StatusBadRequest, "invalid_request_error")
	})

	_, err := g.CreateIntent(context.Background(), dompayment.IntentRequest{OrderID: 1, AmountMinor: 100, Currency: "usd"})
	require.ErrorIs(t, err, dompayment.ErrGatewayRejected)
	require.False(t, fault.IsTransient(err))
}

func TestCreateIntent_ServerErrorIsTransient(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeStripeError(w, http.StatusInternalServerError, "api_error")
	})

	_, err := g.CreateIntent(context.Background(), dompayment.IntentRequest{OrderID: 1, AmountMinor: 100, Currency: "usd"})
	require.True(t, fault.IsTransient(err))
}

func TestCreateIntent_RateLimitIsTransient(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeStripeError(w, http.StatusTooManyRequests, "rate_limit_error")
	})

	_, err := g.CreateIntent(context.Background(), dompayment.IntentRequest{OrderID: 1, AmountMinor: 100, Currency: "usd"})
	require.True(t, fault.IsTransient(err))
	require.NotErrorIs(t, err, dompayment.ErrGatewayRejected)
}

func TestCreateIntent_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeStripeError(w, http.StatusServiceUnavailable, "api_error")
	})

	req := dompayment.IntentRequest{OrderID: 1, AmountMinor: 100, Currency: "usd"}
	for i := 0; i < 5; i++ {
		_, err := g.CreateIntent(context.Background(), req)
		require.True(t, fault.IsTransient(err))
	}

	_, err := g.CreateIntent(context.Background(), req)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.True(t, fault.IsTransient(err))
	require.Equal(t, int32(5), hits.Load())
}

func TestCreateIntent_RejectionsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeStripeError(w, http.StatusPaymentRequired, "card_error")
	})

	req := dompayment.IntentRequest{OrderID: 1, AmountMinor: 100, Currency: "usd"}
	for i := 0; i < 8; i++ {
		_, err := g.CreateIntent(context.Background(), req)
		require.ErrorIs(t, err, dompayment.ErrGatewayRejected)
	}
	require.Equal(t, int32(8), hits.Load())
}

func TestCreateCheckoutSession_Success(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "payment", r.PostForm.Get("mode"))
		require.Equal(t, "42", r.PostForm.Get("client_reference_id"))
		require.Equal(t, "4500", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		require.Equal(t, "1", r.PostForm.Get("line_items[0][quantity]"))
		require.Equal(t, "Order #42", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
		require.Equal(t, "42", r.PostForm.Get("payment_intent_data[metadata][order_id]"))
		require.Equal(t, "https://shop.example.com/done", r.PostForm.Get("success_url"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_123","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_123"}`))
	})

	s, err := g.CreateCheckoutSession(context.Background(), dompayment.SessionRequest{
		OrderID:     42,
		UserID:      7,
		AmountMinor: 4500,
		Currency:    "usd",
		SuccessURL:  "https://shop.example.com/done",
		CancelURL:   "https://shop.example.com/cart",
	})
	require.NoError(t, err)
	require.Equal(t, "cs_123", s.ID)
	require.Equal(t, "https://checkout.stripe.com/c/pay/cs_123", s.URL)
}

func sign(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  testWebhookSecret,
	})
	return signed.Header
}

func TestParseWebhook_PaymentIntentSucceeded(t *testing.T) {
	g := New(Config{WebhookSecret: testWebhookSecret}, nil)
	payload := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123","object":"payment_intent","amount_received":4500,"currency":"usd","metadata":{"order_id":"42","user_id":"7"}}}}`

	ev, err := g.ParseWebhook([]byte(payload), sign(t, payload))
	require.NoError(t, err)
	require.Equal(t, "evt_1", ev.ID)
	require.Equal(t, dompayment.EventPaymentSucceeded, ev.Type)
	require.Equal(t, "pi_123", ev.TransactionID)
	require.Equal(t, int64(4500), ev.AmountMinor)

	orderID, err := ev.OrderID()
	require.NoError(t, err)
	require.Equal(t, int64(42), orderID)
}

func TestParseWebhook_SessionUsesPaymentIntentID(t *testing.T) {
	g := New(Config{WebhookSecret: testWebhookSecret}, nil)
	payload := `{"id":"evt_2","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_9","object":"checkout.session","payment_intent":"pi_777","amount_total":4500,"currency":"usd","payment_status":"paid","client_reference_id":"42","metadata":{}}}}`

	ev, err := g.ParseWebhook([]byte(payload), sign(t, payload))
	require.NoError(t, err)
	require.Equal(t, "pi_777", ev.TransactionID)
	require.Equal(t, "cs_9", ev.ObjectID)
	require.Equal(t, "42", ev.OrderRef)
	require.Equal(t, "paid", ev.PaymentStatus)
}

func TestParseWebhook_InvalidSignature(t *testing.T) {
	g := New(Config{WebhookSecret: testWebhookSecret}, nil)
	payload := `{"id":"evt_1","type":"payment_intent.succeeded"}`

	_, err := g.ParseWebhook([]byte(payload), "t=1,v1=deadbeef")
	require.ErrorIs(t, err, dompayment.ErrInvalidSignature)

	_, err = g.ParseWebhook([]byte(payload), "")
	require.ErrorIs(t, err, dompayment.ErrInvalidSignature)

	tampered := sign(t, payload)
	_, err = g.ParseWebhook([]byte(`{"id":"evt_1","type":"payment_intent.succeeded","x":1}`), tampered)
	require.ErrorIs(t, err, dompayment.ErrInvalidSignature)
}

func TestParseWebhook_SignedGarbageIsMalformed(t *testing.T) {
	g := New(Config{WebhookSecret: testWebhookSecret}, nil)
	payload := `not json`

	_, err := g.ParseWebhook([]byte(payload), sign(t, payload))
	require.ErrorIs(t, err, dompayment.ErrMalformedEvent)
}

func TestParseWebhook_UnrecognizedTypePassesThrough(t *testing.T) {
	g := New(Config{WebhookSecret: testWebhookSecret}, nil)
	payload := `{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`

	ev, err := g.ParseWebhook([]byte(payload), sign(t, payload))
	require.NoError(t, err)
	require.False(t, ev.Recognized())
}
