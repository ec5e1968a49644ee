// Package httputil centralizes JSON response writing and domain error
// translation so every handler produces the same envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	derrors "allowgate/pkg/domain-errors"
)

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into an HTTP response. Internal
// errors omit the description so implementation details never leak to
// callers; client errors include it.
func WriteError(w http.ResponseWriter, err error) {
	code := derrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	var de *derrors.DomainError
	if code != derrors.CodeInternal && errors.As(err, &de) {
		body["error_description"] = de.Message
	}
	WriteJSON(w, toHTTPStatus(code), body)
}

func toHTTPStatus(code derrors.Code) int {
	switch code {
	case derrors.CodeInvalidInput:
		return http.StatusBadRequest
	case derrors.CodeNotFound:
		return http.StatusNotFound
	case derrors.CodeConflict:
		return http.StatusConflict
	case derrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return derrors.Wrap(derrors.CodeInvalidInput, "invalid JSON body", err)
	}
	return nil
}
