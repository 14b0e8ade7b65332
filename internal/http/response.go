// Package http provides the REST API, the HTML dashboard and the health
// endpoints.
//
// This file implements the builder for the JSON envelope every API route
// answers with: {success, data, error?, message?}.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/store"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building API responses.
type JSONResponseBuilder struct {
	statusCode int
	envelope   Envelope
	headers    map[string]string
}

// NewJSONResponse creates a successful 200 response.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		envelope:   Envelope{Success: true},
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Data(data any) *JSONResponseBuilder {
	b.envelope.Data = data
	return b
}

func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	b.envelope.Message = msg
	return b
}

// Error marks the response as failed.
func (b *JSONResponseBuilder) Error(msg string) *JSONResponseBuilder {
	b.envelope.Success = false
	b.envelope.Error = msg
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.envelope)
}

// errMalformedBody marks request bodies that are not valid JSON.
var errMalformedBody = errors.New("malformed request body")

// validationErrors are reported to clients as 422.
var validationErrors = []error{
	core.ErrInvalidMonth,
	core.ErrInvalidAmount,
	core.ErrEmptyDescription,
	core.ErrDescriptionTooLong,
	core.ErrMissingDate,
	core.ErrEmptyCategory,
	core.ErrInvalidType,
	errInvalidDate,
	services.ErrInvalidRange,
}

// StatusForError maps domain and store errors onto HTTP status codes.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// writeError renders err as a failed envelope. Internal errors are logged and
// hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusForError(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err.Error())
		msg = "internal server error"
	case http.StatusServiceUnavailable:
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Record store unavailable",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err.Error())
		msg = "record store unavailable, try again later"
	}
	NewJSONResponse().Status(status).Error(msg).Write(w)
}
