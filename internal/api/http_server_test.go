package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"talentbook/internal/config"
	"talentbook/internal/database"
	"talentbook/internal/models"
	"talentbook/internal/repository"
	"talentbook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	gatewayKey = "test-gateway-key"
	adminKey   = "test-admin-key"
)

func newTestServer(t *testing.T) (*httptest.Server, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: gatewayKey, Name: "gateway", Permissions: []string{"read", "write"}},
				{Key: adminKey, Name: "back-office"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
	}

	svcs := Services{
		Bookings:     service.NewBookingService(db, 3, &logger),
		Ledger:       service.NewLedgerService(db, 3, &logger),
		Verification: service.NewVerificationService(db, 3, &logger),
		Withdrawals:  service.NewWithdrawalService(db, nil, 1000, 3, &logger),
	}

	srv := NewHTTPServer(cfg, svcs, db, repository.NewMemoryStateRepository(), &logger)
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	return ts, db
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, apiKey string, actor *models.Actor, body any) *http.Response {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	if actor != nil {
		req.Header.Set("X-Actor-ID", actor.ID)
		req.Header.Set("X-Actor-Role", actor.Role)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	decodeResponse(t, resp, &body)
	return body["code"]
}

var (
	clientActor = models.Actor{ID: "client", Role: models.RoleClient}
	talentActor = models.Actor{ID: "talent", Role: models.RoleTalent}
	adminActor  = models.Actor{ID: "admin", Role: models.RoleAdmin}
)

func bookingRequestBody() map[string]any {
	return map[string]any{
		"client_id":   "client",
		"talent_id":   "talent",
		"total_price": 300,
		"services": []map[string]any{
			{"name": "Photoshoot", "price": 300},
		},
		"scheduled_at": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	}
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/wallets/client", "", &clientActor, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/v1/wallets/client", "wrong-key", &clientActor, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// health stays open
	resp = doRequest(t, ts, http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthPermissions(t *testing.T) {
	ts, _ := newTestServer(t)

	// the gateway key lacks admin and read:events
	resp := doRequest(t, ts, http.MethodGet, "/api/v1/verifications", gatewayKey, &adminActor, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/v1/events", gatewayKey, &adminActor, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// the admin key has no permission list, which means allow-all
	resp = doRequest(t, ts, http.MethodGet, "/api/v1/verifications", adminKey, &adminActor, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/v1/events", adminKey, &adminActor, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestActorHeadersRequired(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/wallets/client", gatewayKey, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bad := models.Actor{ID: "x", Role: "superuser"}
	resp = doRequest(t, ts, http.MethodGet, "/api/v1/wallets/x", gatewayKey, &bad, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	ts, db := newTestServer(t)
	ctx := context.Background()
	_, err := db.ApplyLedgerEntry(ctx, "client", 500, models.TxPurchase, "", "test funding")
	require.NoError(t, err)

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/bookings", gatewayKey, &clientActor, bookingRequestBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var booking models.Booking
	decodeResponse(t, resp, &booking)
	require.NotEmpty(t, booking.ID)
	assert.Equal(t, models.BookingPaymentPending, booking.Status)

	// pay
	resp = doRequest(t, ts, http.MethodPost, "/api/v1/bookings/"+booking.ID+"/advance", gatewayKey, &clientActor, map[string]any{
		"action":       models.ActionPay,
		"full_name":    "Jane Doe",
		"document_ref": "NIN-12345678",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeResponse(t, resp, &booking)
	assert.Equal(t, models.BookingVerificationPending, booking.Status)

	// resolve the verification as admin
	resp = doRequest(t, ts, http.MethodGet, "/api/v1/verifications", adminKey, &adminActor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var queue struct {
		Verifications []models.Verification `json:"verifications"`
	}
	decodeResponse(t, resp, &queue)
	require.Len(t, queue.Verifications, 1)

	resp = doRequest(t, ts, http.MethodPost, "/api/v1/verifications/"+queue.Verifications[0].ID+"/resolve", adminKey, &adminActor, map[string]any{
		"approve": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// complete as talent
	resp = doRequest(t, ts, http.MethodPost, "/api/v1/bookings/"+booking.ID+"/advance", gatewayKey, &talentActor, map[string]any{
		"action": models.ActionComplete,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeResponse(t, resp, &booking)
	assert.Equal(t, models.BookingCompleted, booking.Status)

	// talent wallet reflects the earnings
	resp = doRequest(t, ts, http.MethodGet, "/api/v1/wallets/talent", gatewayKey, &talentActor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var wallet models.Wallet
	decodeResponse(t, resp, &wallet)
	assert.Equal(t, int64(300), wallet.Balance)
}

func TestErrorMapping(t *testing.T) {
	ts, _ := newTestServer(t)

	// unknown booking
	resp := doRequest(t, ts, http.MethodGet, "/api/v1/bookings/missing", gatewayKey, &clientActor, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, resp))

	// validation failure
	body := bookingRequestBody()
	body["total_price"] = 999
	resp = doRequest(t, ts, http.MethodPost, "/api/v1/bookings", gatewayKey, &clientActor, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", errorCode(t, resp))

	// foreign wallet
	resp = doRequest(t, ts, http.MethodGet, "/api/v1/wallets/someone-else", gatewayKey, &clientActor, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", errorCode(t, resp))

	// unpayable booking: no funds
	resp = doRequest(t, ts, http.MethodPost, "/api/v1/bookings", gatewayKey, &clientActor, bookingRequestBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var booking models.Booking
	decodeResponse(t, resp, &booking)

	resp = doRequest(t, ts, http.MethodPost, "/api/v1/bookings/"+booking.ID+"/advance", gatewayKey, &clientActor, map[string]any{
		"action":       models.ActionPay,
		"full_name":    "Jane Doe",
		"document_ref": "NIN-12345678",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "insufficient_funds", errorCode(t, resp))
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	ts, db := newTestServer(t)
	ctx := context.Background()
	_, err := db.ApplyLedgerEntry(ctx, "client", 500, models.TxPurchase, "", "test funding")
	require.NoError(t, err)

	send := func() *http.Response {
		payload, err := json.Marshal(bookingRequestBody())
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/bookings", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("x-api-key", gatewayKey)
		req.Header.Set("X-Actor-ID", clientActor.ID)
		req.Header.Set("X-Actor-Role", clientActor.Role)
		req.Header.Set("Idempotency-Key", "create-once")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := send()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = send()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "duplicate_request", errorCode(t, resp))
}

func TestEventsFeed(t *testing.T) {
	ts, db := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := db.ApplyLedgerEntry(ctx, fmt.Sprintf("u%d", i), 100, models.TxPurchase, "", "test funding")
		require.NoError(t, err)
	}

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/events", adminKey, &adminActor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var feed struct {
		Events []models.Event `json:"events"`
		Next   int64          `json:"next"`
	}
	decodeResponse(t, resp, &feed)
	require.Len(t, feed.Events, 3)
	assert.Equal(t, feed.Events[2].Seq, feed.Next)

	// resume from the cursor
	resp = doRequest(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/events?after=%d", feed.Events[0].Seq), adminKey, &adminActor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeResponse(t, resp, &feed)
	assert.Len(t, feed.Events, 2)

	// bad cursor
	resp = doRequest(t, ts, http.MethodGet, "/api/v1/events?after=abc", adminKey, &adminActor, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWithdrawalOverHTTP(t *testing.T) {
	ts, db := newTestServer(t)
	ctx := context.Background()
	_, err := db.ApplyLedgerEntry(ctx, "talent", 5000, models.TxPurchase, "", "test funding")
	require.NoError(t, err)

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/withdrawals", gatewayKey, &talentActor, map[string]any{
		"amount": 1500,
		"bank": map[string]string{
			"bank_name":      "GTBank",
			"account_number": "0123456789",
			"account_name":   "Jane Doe",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var req models.WithdrawalRequest
	decodeResponse(t, resp, &req)
	assert.Equal(t, models.ResolutionPending, req.Status)

	resp = doRequest(t, ts, http.MethodPost, "/api/v1/withdrawals/"+req.ID+"/resolve", adminKey, &adminActor, map[string]any{
		"approve": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeResponse(t, resp, &req)
	assert.Equal(t, models.ResolutionApproved, req.Status)

	// a second resolve conflicts
	resp = doRequest(t, ts, http.MethodPost, "/api/v1/withdrawals/"+req.ID+"/resolve", adminKey, &adminActor, map[string]any{
		"approve": false, "admin_notes": "no",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_resolved", errorCode(t, resp))
}

func TestRateLimitPerKey(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys:      []config.APIClientKey{{Key: gatewayKey, Name: "gateway"}},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 2},
	}
	svcs := Services{
		Bookings:     service.NewBookingService(db, 3, &logger),
		Ledger:       service.NewLedgerService(db, 3, &logger),
		Verification: service.NewVerificationService(db, 3, &logger),
		Withdrawals:  service.NewWithdrawalService(db, nil, 1000, 3, &logger),
	}
	srv := NewHTTPServer(cfg, svcs, db, repository.NewMemoryStateRepository(), &logger)
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)

	seen429 := false
	for i := 0; i < 5; i++ {
		resp := doRequest(t, ts, http.MethodGet, "/api/v1/wallets/client", gatewayKey, &clientActor, nil)
		if resp.StatusCode == http.StatusTooManyRequests {
			seen429 = true
		}
	}
	assert.True(t, seen429)
}
