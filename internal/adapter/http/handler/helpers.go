package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/iho/bondtab/internal/adapter/http/dto"
	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// GroupOpener resolves a group address to its modules.
type GroupOpener interface {
	Open(ctx context.Context, addr common.Address) (*usecase.GroupHandles, error)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, code, details string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Code:    code,
		Message: details,
	})
}

// writeDomainError writes err with the status and code of the domain error
// it wraps.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, mapDomainError(err), message, domain.ErrorCode(err), err.Error())
}

// writeBadRequest reports a malformed request. Domain validation errors keep
// their own code.
func writeBadRequest(w http.ResponseWriter, message string, err error) {
	code := domain.ErrorCode(err)
	if code == "internal" {
		code = "invalid_request"
	}
	writeError(w, http.StatusBadRequest, message, code, err.Error())
}

// mapDomainError maps domain errors to HTTP status codes.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrGroupNotFound),
		errors.Is(err, domain.ErrExpenseNotFound),
		errors.Is(err, domain.ErrDisputeNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrExpiredToken):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrNotMember),
		errors.Is(err, domain.ErrNotAdmin),
		errors.Is(err, domain.ErrCannotChallengeOwnExpense),
		errors.Is(err, domain.ErrMissingRole),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrAlreadyMember),
		errors.Is(err, domain.ErrCannotRemoveAdmin),
		errors.Is(err, domain.ErrAlreadyVoted),
		errors.Is(err, domain.ErrDisputeResolved),
		errors.Is(err, domain.ErrInvalidExpenseStatus),
		errors.Is(err, domain.ErrChallengeWindowActive),
		errors.Is(err, domain.ErrChallengeWindowClosed),
		errors.Is(err, domain.ErrVoteWindowActive),
		errors.Is(err, domain.ErrVoteWindowClosed),
		errors.Is(err, domain.ErrGracePeriodActive),
		errors.Is(err, domain.ErrBondNotWithdrawn),
		errors.Is(err, domain.ErrOutstandingBalance),
		errors.Is(err, domain.ErrPendingExpense):
		return http.StatusConflict

	case errors.Is(err, domain.ErrInsufficientBond),
		errors.Is(err, domain.ErrNoBond),
		errors.Is(err, domain.ErrSettlementExceedsBalance),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientAllowance):
		return http.StatusUnprocessableEntity

	case errors.Is(err, domain.ErrAmountZero),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAmountTooLarge),
		errors.Is(err, domain.ErrSplitSumMismatch),
		errors.Is(err, domain.ErrNoMembers),
		errors.Is(err, domain.ErrLengthMismatch),
		errors.Is(err, domain.ErrDuplicateParticipant),
		errors.Is(err, domain.ErrSameParty),
		errors.Is(err, domain.ErrInvalidParams),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidGroupName),
		errors.Is(err, domain.ErrExternalRefTooLong):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// decodeJSON decodes the request body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request", err.Error())
		return false
	}
	return true
}

// urlAddress parses an address path parameter.
func urlAddress(w http.ResponseWriter, r *http.Request, key string) (common.Address, bool) {
	addr, err := domain.ParseAddress(chi.URLParam(r, key))
	if err != nil {
		writeBadRequest(w, "invalid "+key, err)
		return common.Address{}, false
	}
	return addr, true
}

// urlExpenseID parses the {id} path parameter.
func urlExpenseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expense id", "invalid_request", err.Error())
		return 0, false
	}
	return id, true
}

// requireCaller returns the authenticated caller or writes 401.
func requireCaller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := domain.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "caller identity required", "unauthorized", "")
		return common.Address{}, false
	}
	return caller, true
}

// openGroup resolves the {group} path parameter.
func openGroup(w http.ResponseWriter, r *http.Request, groups GroupOpener) (*usecase.GroupHandles, bool) {
	addr, ok := urlAddress(w, r, "group")
	if !ok {
		return nil, false
	}
	g, err := groups.Open(r.Context(), addr)
	if err != nil {
		writeDomainError(w, "failed to open group", err)
		return nil, false
	}
	return g, true
}
