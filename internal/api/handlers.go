package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"talentbook/internal/database"
	"talentbook/internal/models"
	"talentbook/internal/service"
)

// actorFromRequest reads the acting user from headers. The gateway in
// front of this API has already authenticated the session; these
// headers are its assertion of who is calling.
func actorFromRequest(r *http.Request) (models.Actor, error) {
	id := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
	role := strings.TrimSpace(r.Header.Get("X-Actor-Role"))
	if id == "" {
		return models.Actor{}, errors.New("X-Actor-ID header is required")
	}
	switch role {
	case models.RoleClient, models.RoleTalent, models.RoleAdmin:
	default:
		return models.Actor{}, errors.New("X-Actor-Role must be client, talent or admin")
	}
	return models.Actor{ID: id, Role: role}, nil
}

// writeServiceError maps the error taxonomy onto status codes with
// machine-readable codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrValidation):
		writeAPIError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		writeAPIError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, database.ErrInsufficientFunds):
		writeAPIError(w, http.StatusConflict, "insufficient_funds", err.Error())
	case errors.Is(err, database.ErrInvalidTransition):
		writeAPIError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, database.ErrAlreadyResolved):
		writeAPIError(w, http.StatusConflict, "already_resolved", err.Error())
	case errors.Is(err, database.ErrConcurrentModification):
		writeAPIError(w, http.StatusConflict, "conflict", "concurrent modification, retry the request")
	default:
		writeAPIError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation", "invalid JSON body")
		return false
	}
	return true
}

// POST /api/v1/bookings
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	var body struct {
		ClientID    string               `json:"client_id"`
		TalentID    string               `json:"talent_id"`
		TotalPrice  int64                `json:"total_price"`
		Services    []models.ServiceLine `json:"services"`
		ScheduledAt time.Time            `json:"scheduled_at"`
		Notes       string               `json:"notes"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	booking := &models.Booking{
		ClientID:    body.ClientID,
		TalentID:    body.TalentID,
		TotalPrice:  body.TotalPrice,
		Services:    body.Services,
		ScheduledAt: body.ScheduledAt,
		Notes:       body.Notes,
	}
	if err := s.bookings.CreateBooking(r.Context(), actor, booking); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

// GET  /api/v1/bookings/{id}
// POST /api/v1/bookings/{id}/advance
func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeAPIError(w, http.StatusBadRequest, "validation", "booking id is required")
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		booking, err := s.bookings.GetBooking(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)

	case action == "advance" && r.Method == http.MethodPost:
		var body struct {
			Action      string `json:"action"`
			FullName    string `json:"full_name,omitempty"`
			DocumentRef string `json:"document_ref,omitempty"`
		}
		if !decodeBody(w, r, &body) {
			return
		}

		input := service.AdvanceInput{
			Action:      body.Action,
			FullName:    body.FullName,
			DocumentRef: body.DocumentRef,
		}
		if err := s.bookings.AdvanceBooking(r.Context(), actor, id, input); err != nil {
			writeServiceError(w, err)
			return
		}

		booking, err := s.bookings.GetBooking(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)

	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// GET /api/v1/verifications (pending queue)
func (s *HTTPServer) handleVerifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	pending, err := s.verification.ListPending(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verifications": pending})
}

// GET  /api/v1/verifications/{id}
// POST /api/v1/verifications/{id}/resolve
func (s *HTTPServer) handleVerificationByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/verifications/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeAPIError(w, http.StatusBadRequest, "validation", "verification id is required")
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		verification, err := s.verification.GetVerification(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, verification)

	case action == "resolve" && r.Method == http.MethodPost:
		var body struct {
			Approve    bool   `json:"approve"`
			AdminNotes string `json:"admin_notes,omitempty"`
		}
		if !decodeBody(w, r, &body) {
			return
		}

		if err := s.verification.Resolve(r.Context(), actor, id, body.Approve, body.AdminNotes); err != nil {
			writeServiceError(w, err)
			return
		}

		verification, err := s.verification.GetVerification(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, verification)

	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// POST /api/v1/withdrawals
// GET  /api/v1/withdrawals (pending queue, admin)
func (s *HTTPServer) handleWithdrawals(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	switch r.Method {
	case http.MethodPost:
		var body struct {
			Amount int64              `json:"amount"`
			Bank   models.BankDetails `json:"bank"`
		}
		if !decodeBody(w, r, &body) {
			return
		}

		req, err := s.withdrawals.Request(r.Context(), actor, body.Amount, body.Bank)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, req)

	case http.MethodGet:
		pending, err := s.withdrawals.ListPending(r.Context(), actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"withdrawals": pending})

	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// GET  /api/v1/withdrawals/{id}
// POST /api/v1/withdrawals/{id}/resolve
// POST /api/v1/withdrawals/export
func (s *HTTPServer) handleWithdrawalByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/withdrawals/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeAPIError(w, http.StatusBadRequest, "validation", "withdrawal id is required")
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	switch {
	case id == "export" && r.Method == http.MethodPost:
		var body struct {
			Since time.Time `json:"since,omitempty"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if body.Since.IsZero() {
			body.Since = time.Now().AddDate(0, 0, -7)
		}
		path, count, err := s.withdrawals.ExportBatch(r.Context(), actor, body.Since)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"file": path, "count": count})

	case action == "" && r.Method == http.MethodGet:
		req, err := s.withdrawals.GetRequest(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)

	case action == "resolve" && r.Method == http.MethodPost:
		var body struct {
			Approve    bool   `json:"approve"`
			AdminNotes string `json:"admin_notes,omitempty"`
		}
		if !decodeBody(w, r, &body) {
			return
		}

		if err := s.withdrawals.Resolve(r.Context(), actor, id, body.Approve, body.AdminNotes); err != nil {
			writeServiceError(w, err)
			return
		}

		req, err := s.withdrawals.GetRequest(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)

	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// GET  /api/v1/wallets/{user_id}
// GET  /api/v1/wallets/{user_id}/transactions
// GET  /api/v1/wallets/{user_id}/bookings
// POST /api/v1/wallets/{user_id}/gift
// POST /api/v1/wallets/{user_id}/purchase
// POST /api/v1/wallets/{user_id}/unlock
func (s *HTTPServer) handleWallets(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/wallets/")
	userID, action, _ := strings.Cut(rest, "/")
	if userID == "" {
		writeAPIError(w, http.StatusBadRequest, "validation", "user id is required")
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		if !actor.IsAdmin() && actor.ID != userID {
			writeServiceError(w, service.ErrUnauthorized)
			return
		}
		wallet, err := s.ledger.GetWalletBalance(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wallet)

	case action == "transactions" && r.Method == http.MethodGet:
		filter := transactionFilterFromQuery(r)
		txs, err := s.ledger.ListTransactions(r.Context(), actor, userID, filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})

	case action == "bookings" && r.Method == http.MethodGet:
		bookings, err := s.bookings.GetUserBookings(r.Context(), actor, userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})

	case action == "gift" && r.Method == http.MethodPost:
		var body struct {
			ToUserID string `json:"to_user_id"`
			Amount   int64  `json:"amount"`
			Message  string `json:"message,omitempty"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if !actor.IsAdmin() && actor.ID != userID {
			writeServiceError(w, service.ErrUnauthorized)
			return
		}
		if err := s.ledger.Gift(r.Context(), models.Actor{ID: userID, Role: actor.Role}, body.ToUserID, body.Amount, body.Message); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})

	case action == "purchase" && r.Method == http.MethodPost:
		var body struct {
			Coins     int64  `json:"coins"`
			Reference string `json:"reference"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		// Purchase confirmations arrive from the payment gateway
		// integration, which calls as admin.
		if !actor.IsAdmin() {
			writeServiceError(w, service.ErrUnauthorized)
			return
		}
		entry, err := s.ledger.CreditPurchase(r.Context(), userID, body.Coins, body.Reference)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)

	case action == "unlock" && r.Method == http.MethodPost:
		var body struct {
			TalentID string `json:"talent_id"`
			MediaID  string `json:"media_id"`
			Price    int64  `json:"price"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if !actor.IsAdmin() && actor.ID != userID {
			writeServiceError(w, service.ErrUnauthorized)
			return
		}
		if err := s.ledger.UnlockPremium(r.Context(), models.Actor{ID: userID, Role: actor.Role}, body.TalentID, body.MediaID, body.Price); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})

	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// GET /api/v1/events?after={seq}&limit={n}
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	after := int64(0)
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeAPIError(w, http.StatusBadRequest, "validation", "after must be a non-negative integer")
			return
		}
		after = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeAPIError(w, http.StatusBadRequest, "validation", "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	events, err := s.repo.ListEventsAfter(r.Context(), after, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	next := after
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "next": next})
}

func transactionFilterFromQuery(r *http.Request) models.TransactionFilter {
	filter := models.TransactionFilter{}
	q := r.URL.Query()

	filter.Type = strings.TrimSpace(q.Get("type"))
	if raw := q.Get("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = t
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Offset = n
		}
	}
	return filter
}
