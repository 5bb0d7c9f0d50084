package webservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/parcelhq/parceld/internal/core/application"
	"github.com/parcelhq/parceld/internal/core/domain"
)

type handler struct {
	ledgerSvc   application.LedgerService
	registrySvc application.RegistryService
}

type propertyResponse struct {
	ID          uint64 `json:"id"`
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	Verified    bool   `json:"verified"`
	Tokenized   bool   `json:"tokenized"`
	Deleted     bool   `json:"deleted"`
	TotalIssued string `json:"total_issued"`
	HolderCount int    `json:"holder_count"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

func toPropertyResponse(info *application.PropertyInfo) propertyResponse {
	return propertyResponse{
		ID:          info.ID,
		Owner:       info.Owner,
		Name:        info.Name,
		Location:    info.Location,
		Verified:    info.Verified,
		Tokenized:   info.Tokenized,
		Deleted:     info.Deleted,
		TotalIssued: info.TotalIssued,
		HolderCount: info.HolderCount,
		CreatedAt:   info.CreatedAt,
		UpdatedAt:   info.UpdatedAt,
	}
}

func (h *handler) createProperty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner    string `json:"owner"`
		Name     string `json:"name"`
		Location string `json:"location"`
	}
	if !decode(w, r, &req) {
		return
	}

	info, err := h.registrySvc.CreateProperty(
		r.Context(), accountFromContext(r.Context()), req.Owner, req.Name, req.Location,
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPropertyResponse(info))
}

func (h *handler) getProperty(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	info, err := h.registrySvc.GetProperty(r.Context(), propertyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPropertyResponse(info))
}

func (h *handler) listProperties(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	infos, err := h.registrySvc.ListProperties(r.Context(), includeDeleted)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]propertyResponse, 0, len(infos))
	for i := range infos {
		resp = append(resp, toPropertyResponse(&infos[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"properties": resp})
}

func (h *handler) verifyProperty(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.registrySvc.Verify)
}

func (h *handler) unverifyProperty(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.registrySvc.Unverify)
}

func (h *handler) lifecycle(
	w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, caller string, propertyID uint64) error,
) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), accountFromContext(r.Context()), propertyID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (h *handler) tokenizeProperty(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	var req struct {
		InitialSupply string `json:"initial_supply"`
	}
	if !decode(w, r, &req) {
		return
	}
	initialSupply, ok := parseAmount(w, req.InitialSupply, "initial_supply")
	if !ok {
		return
	}

	if err := h.registrySvc.Tokenize(
		r.Context(), accountFromContext(r.Context()), propertyID, initialSupply,
	); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (h *handler) deleteProperty(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	if err := h.registrySvc.DeleteProperty(
		r.Context(), accountFromContext(r.Context()), propertyID,
	); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (h *handler) transferOwnership(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	var req struct {
		NewOwner string `json:"new_owner"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := h.registrySvc.TransferOwnership(
		r.Context(), accountFromContext(r.Context()), propertyID, req.NewOwner,
	); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (h *handler) notifyOwnershipTransfer(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	var req struct {
		NewOwner string `json:"new_owner"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := h.registrySvc.NotifyOwnershipTransfer(
		r.Context(), accountFromContext(r.Context()), propertyID, req.NewOwner,
	); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (h *handler) mint(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	var req struct {
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}

	if err := h.ledgerSvc.Mint(
		r.Context(), accountFromContext(r.Context()), propertyID, req.To, amount,
	); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (h *handler) transferHolding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PropertyID uint64 `json:"property_id"`
		To         string `json:"to"`
		Amount     string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}

	caller := accountFromContext(r.Context())
	if err := h.ledgerSvc.TransferHolding(
		r.Context(), caller, req.PropertyID, caller, req.To, amount,
	); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (h *handler) creditIncome(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}

	if err := h.ledgerSvc.CreditIncome(
		r.Context(), accountFromContext(r.Context()), propertyID, amount,
	); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (h *handler) accruedIncome(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	accrued, err := h.ledgerSvc.AccruedIncome(r.Context(), propertyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accrued": accrued.Dec()})
}

func (h *handler) distributeYield(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	var req struct {
		// Amount is optional: empty distributes the full accrued income.
		Amount string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	var amount *uint256.Int
	if req.Amount != "" {
		parsed, ok := parseAmount(w, req.Amount, "amount")
		if !ok {
			return
		}
		amount = parsed
	}

	report, err := h.ledgerSvc.DistributeYield(
		r.Context(), accountFromContext(r.Context()), propertyID, amount,
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	shares := make([]map[string]interface{}, 0, len(report.Shares))
	for _, share := range report.Shares {
		shares = append(shares, map[string]interface{}{
			"account": share.Account, "amount": share.Amount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":               report.ID,
		"property_id":      report.PropertyID,
		"total":            report.Total,
		"shares":           shares,
		"remainder":        report.Remainder,
		"residual_account": report.ResidualAccount,
	})
}

func (h *handler) listHolders(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	holders, err := h.ledgerSvc.Holders(r.Context(), propertyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]map[string]interface{}, 0, len(holders))
	for _, holder := range holders {
		resp = append(resp, map[string]interface{}{
			"account": holder.Account, "balance": holder.Balance,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"holders": resp})
}

func (h *handler) balanceOf(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	account := chi.URLParam(r, "account")
	balance, err := h.ledgerSvc.BalanceOf(r.Context(), propertyID, account)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account, "balance": balance.Dec(),
	})
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := parsePropertyID(w, r)
	if !ok {
		return
	}
	limit := 0
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	events, err := h.ledgerSvc.Events(r.Context(), propertyID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]map[string]interface{}, 0, len(events))
	for _, event := range events {
		resp = append(resp, map[string]interface{}{
			"id":          event.ID,
			"property_id": event.PropertyID,
			"type":        event.Type,
			"from":        event.From,
			"to":          event.To,
			"amount":      event.Amount,
			"created_at":  event.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": resp})
}

func (h *handler) portfolio(w http.ResponseWriter, r *http.Request) {
	info, err := h.ledgerSvc.Portfolio(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":    info.Account,
		"held":       info.Held,
		"owned":      info.Owned,
		"pool_units": info.PoolUnits,
		"cash":       info.Cash,
	})
}

func (h *handler) quote(w http.ResponseWriter, r *http.Request) {
	quantity, ok := parseAmount(w, r.URL.Query().Get("quantity"), "quantity")
	if !ok {
		return
	}
	quote, err := h.ledgerSvc.Quote(r.Context(), quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"supply":     quote.Supply,
		"unit_price": quote.UnitPrice,
		"cost":       quote.Cost,
	})
}

func (h *handler) buy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity string `json:"quantity"`
		Payment  string `json:"payment"`
	}
	if !decode(w, r, &req) {
		return
	}
	quantity, ok := parseAmount(w, req.Quantity, "quantity")
	if !ok {
		return
	}
	payment, ok := parseAmount(w, req.Payment, "payment")
	if !ok {
		return
	}

	result, err := h.ledgerSvc.Buy(r.Context(), accountFromContext(r.Context()), quantity, payment)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cost":   result.Cost,
		"refund": result.Refund,
		"supply": result.Supply,
	})
}

func (h *handler) sell(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity string `json:"quantity"`
	}
	if !decode(w, r, &req) {
		return
	}
	quantity, ok := parseAmount(w, req.Quantity, "quantity")
	if !ok {
		return
	}

	result, err := h.ledgerSvc.Sell(r.Context(), accountFromContext(r.Context()), quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"refund": result.Refund,
		"supply": result.Supply,
	})
}

func parsePropertyID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	propertyID, err := strconv.ParseUint(chi.URLParam(r, "propertyID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return 0, false
	}
	return propertyID, true
}

func parseAmount(w http.ResponseWriter, raw, field string) (*uint256.Int, bool) {
	amount, err := uint256.FromDecimal(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %s", field, err))
		return nil, false
	}
	return amount, true
}

func decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %s", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nolint:all
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}

// writeServiceError maps the ledger error kinds onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrConflictingAgreement),
		errors.Is(err, domain.ErrAlreadySet),
		errors.Is(err, domain.ErrReentrancy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrArithmeticRange):
		status = http.StatusUnprocessableEntity
	}
	writeError(w, status, err.Error())
}
