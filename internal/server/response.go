package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/computor-platform/computor-api/internal/apierr"
)

type responseMessage struct {
	Message string `json:"message"`
}

// errorEnvelope is the shape every failed request returns, per the error
// handling design's "responses always include error_code and message".
type errorEnvelope struct {
	ErrorCode  string         `json:"error_code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	RetryAfter *int           `json:"retry_after,omitempty"`
}

// writeError funnels every handler error through the apierr taxonomy so
// unexpected errors never leak raw database text to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		apiErr = apierr.Internal(err, "unexpected error")
	}

	if apiErr.Category == apierr.CategoryInternal || apiErr.Category == apierr.CategoryDatabase {
		slog.ErrorContext(r.Context(), "request failed", "code", apiErr.Code, "error", apiErr.Error())
	}

	v, _ := json.Marshal(errorEnvelope{
		ErrorCode:  string(apiErr.Code),
		Message:    apiErr.Message,
		Details:    apiErr.Details,
		RetryAfter: apiErr.RetryAfter,
	})
	httpResponseJSONByte(w, v, apiErr.HTTPStatus())
}

func httpResponse(w http.ResponseWriter, msg string, code int) {
	v, _ := json.Marshal(responseMessage{
		Message: msg,
	})

	httpResponseJSONByte(w, v, code)
}

func httpResponseJSON(w http.ResponseWriter, msg any, code int) {
	v, _ := json.Marshal(msg)

	httpResponseJSONByte(w, v, code)
}

func httpResponseJSONByte(w http.ResponseWriter, msg []byte, code int) {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(code)
	w.Write(msg)
}
