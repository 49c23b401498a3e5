package api

import (
	"encoding/json"
	"net/http"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// fail reports an expected negative outcome such as "not live": 200 with
// success=false, not an HTTP error.
func fail(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, Envelope{Success: false, Message: message})
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: false, Message: message})
}

// NotFound answers unknown routes with a JSON envelope.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	httpError(w, http.StatusNotFound, "endpoint not found")
}

// MethodNotAllowed answers known routes called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	httpError(w, http.StatusMethodNotAllowed, "method not allowed")
}
