package http

import (
	"encoding/json"
	"net/http"
)

// errorBody usa los nombres de campo de los errores OAuth.
type errorBody struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// WriteJSON escribe v con status. Las respuestas de ops no se cachean.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError escribe un error con el request id ya asignado por WithRequestID.
func WriteError(w http.ResponseWriter, status int, code, desc string) {
	WriteJSON(w, status, errorBody{
		Code:        code,
		Description: desc,
		RequestID:   w.Header().Get("X-Request-ID"),
	})
}
