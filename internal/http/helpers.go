package http

import (
	"encoding/json"
	"errors"
	"net/http"
)

// envelope is the shape most authenticated endpoints respond with. The public
// verification endpoints answer with bare payloads instead; clients handle
// both.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, envelope{Success: status < 400, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// A second document in the body is as malformed as none.
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}
