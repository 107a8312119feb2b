package respond

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the shape of every error response. Fields maps form fields
// to messages when the failure is tied to specific inputs.
type ErrorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func Error(w http.ResponseWriter, r *http.Request, code int, message string) {
	JSON(w, r, code, ErrorBody{Error: message})
}

func FieldErrors(w http.ResponseWriter, r *http.Request, code int, message string, fields map[string]string) {
	JSON(w, r, code, ErrorBody{Error: message, Fields: fields})
}
