// Package httpx provides the JSON envelope every API handler responds with.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform success/error body returned by every endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// JSON sends a raw JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Success wraps data in the success envelope.
func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, Envelope{Success: true, Data: data})
}

// Error sends an error envelope.
func Error(w http.ResponseWriter, status int, message, detail string) {
	JSON(w, status, Envelope{Success: false, Error: message, Detail: detail})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
