package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"aixblock-ledger/internal/domain"

	"github.com/gorilla/mux"
)

// AccountHeader carries the calling account. Owner-scoped operations act on it.
const AccountHeader = "X-Account-ID"

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code, Retryable: domain.IsRetryable(err)})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrArithmetic):
		return http.StatusInternalServerError, "arithmetic_error"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, domain.ErrPaymentFailed):
		return http.StatusPaymentRequired, "payment_failed"
	case errors.Is(err, domain.ErrTransferFailed):
		return http.StatusPaymentRequired, "transfer_failed"
	case errors.Is(err, domain.ErrOracleUnavailable):
		return http.StatusServiceUnavailable, "oracle_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func callerAccount(r *http.Request) (string, bool) {
	account := strings.TrimSpace(r.Header.Get(AccountHeader))
	return account, account != ""
}

// pathVar returns a decoded route variable. The router matches on the encoded path so
// categories and accounts may contain "/".
func pathVar(r *http.Request, name string) (string, error) {
	v, err := url.PathUnescape(mux.Vars(r)[name])
	if err != nil || v == "" {
		return "", fmt.Errorf("%w: bad %s in path", domain.ErrInvalidArgument, name)
	}
	return v, nil
}

func pathIndex(r *http.Request) (uint64, error) {
	idx, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: index must be a non-negative integer", domain.ErrInvalidArgument)
	}
	return idx, nil
}

// parsePrice accepts a JSON number or numeric string. Negative and fractional values
// are rejected since prices are whole reference units.
func parsePrice(n json.Number) (uint64, error) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return 0, fmt.Errorf("%w: price is required", domain.ErrInvalidArgument)
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: price must not be negative", domain.ErrInvalidArgument)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: price %q is not a whole amount", domain.ErrInvalidArgument, s)
	}
	return v, nil
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}
