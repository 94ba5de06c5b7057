// Package httputil holds the JSON envelopes and middleware shared by the
// server and agent routers.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// JSON writes a raw JSON response without envelope.
// Use Success for {"data": ...} wrapped responses.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, statusCode int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Success writes a JSON response with {"data": ...} envelope.
func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, map[string]any{"data": data})
}

// Error writes a JSON response with {"error": {"message": ...}} envelope.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{
		"error": map[string]string{"message": message},
	})
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ValidationError writes a 400 response.
// validator.ValidationErrors become per-field details, anything else a string.
func ValidationError(w http.ResponseWriter, err error) {
	var details any
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fieldErrors := make([]map[string]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			fieldErrors = append(fieldErrors, map[string]string{
				"field":   e.Field(),
				"message": e.Tag(),
			})
		}
		details = fieldErrors
	} else {
		details = err.Error()
	}

	JSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message": "validation error",
			"details": details,
		},
	})
}
