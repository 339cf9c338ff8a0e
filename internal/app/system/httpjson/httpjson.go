// Package httpjson writes the JSON envelopes used by every API endpoint and
// maps domain errors to HTTP status codes.
//
// Success bodies carry "success": true alongside their payload. Failures are
//
//	{ "success": false, "error": "...", "fields": { ... } }
//
// where "fields" is present only for validation failures.
package httpjson

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dalemusser/peerfinder/internal/app/system/inputval"
	"github.com/dalemusser/peerfinder/internal/app/system/limits"
	"github.com/dalemusser/peerfinder/internal/domain/errs"
	"go.uber.org/zap"
)

// MaxBodyBytes bounds request bodies read by Decode.
const MaxBodyBytes = limits.MaxJSONBody

// ErrBadJSON is returned by Decode for malformed or oversized bodies.
var ErrBadJSON = errs.New(errs.Invalid, "request body must be valid JSON")

// Write encodes v as the response body with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a 200 with body.
func OK(w http.ResponseWriter, body map[string]any) {
	if body == nil {
		body = map[string]any{}
	}
	if _, set := body["success"]; !set {
		body["success"] = true
	}
	Write(w, http.StatusOK, body)
}

// Fail writes a failure envelope.
func Fail(w http.ResponseWriter, status int, msg string) {
	Write(w, status, map[string]any{"success": false, "error": msg})
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, inputval.ErrInvalid), errors.Is(err, errs.Invalid):
		return http.StatusBadRequest
	case errors.Is(err, errs.Unauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.NotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.Conflict):
		return http.StatusConflict
	case errors.Is(err, errs.Unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err with the mapped status. Internal errors are logged and
// reported to the client with a generic message.
func Error(w http.ResponseWriter, log *zap.Logger, err error) {
	status := StatusFor(err)
	body := map[string]any{"success": false}

	var verrs inputval.Errors
	switch {
	case errors.As(err, &verrs):
		body["error"] = "validation failed"
		body["fields"] = verrs.Fields()
	case status == http.StatusInternalServerError:
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		body["error"] = "internal server error"
	default:
		body["error"] = err.Error()
	}
	Write(w, status, body)
}

// Decode reads a JSON body into v. An empty body leaves v untouched.
func Decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return ErrBadJSON
	}
	return nil
}
