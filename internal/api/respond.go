package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/atmx/wager-engine/internal/apperr"
)

const (
	maxBodyBytes = 1 << 20

	// Bounds on decimal request fields. They keep every accepted value
	// representable in a NUMERIC column and cheap to format.
	maxFractionDigits = 18
	maxNumberDigits   = 38
	maxNumberBytes    = 64
)

var errInvalidNumber = errors.New("invalid number")

// Number is a decimal request field. It accepts a JSON number or a numeric
// string of at most 38 digits with at most 18 after the point; anything
// else fails with invalid_number.
type Number struct {
	decimal.Decimal
}

func (n *Number) UnmarshalJSON(b []byte) error {
	if len(b) > maxNumberBytes {
		return errInvalidNumber
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return errInvalidNumber
	}
	exp := int64(d.Exponent())
	digits := int64(d.NumDigits())
	if exp < -maxFractionDigits || digits > maxNumberDigits || digits+exp > maxNumberDigits {
		return errInvalidNumber
	}
	n.Decimal = d
	return nil
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeError maps err onto an HTTP status. Store and internal failures are
// logged with their cause and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		slog.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "err", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	switch ae.Kind {
	case apperr.KindValidation:
		writeErrorCode(w, http.StatusBadRequest, ae.Code, ae.Message)
	case apperr.KindNotFound:
		writeErrorCode(w, http.StatusNotFound, ae.Code, ae.Message)
	case apperr.KindConflict:
		writeErrorCode(w, http.StatusConflict, ae.Code, ae.Message)
	case apperr.KindStore:
		slog.Error("store failure",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "op", ae.Message, "err", ae.Err)
		writeErrorCode(w, http.StatusServiceUnavailable, "store_error", "storage temporarily unavailable")
	default:
		slog.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "err", err)
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, errInvalidNumber):
			return apperr.Validation("invalid_number", "numeric fields must be numbers or numeric strings")
		case errors.As(err, &maxErr):
			return apperr.Validation("body_too_large", "request body too large")
		case errors.Is(err, io.EOF):
			return apperr.Validation("invalid_body", "request body is required")
		}
		return apperr.Validation("invalid_body", "invalid request body")
	}
	return nil
}
