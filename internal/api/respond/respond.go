// Package respond writes the JSON envelopes returned by the HTTP API.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/wb-go/wbf/zlog"
)

type envelope struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to encode response")
	}
}

func OK(w http.ResponseWriter, result interface{}) {
	write(w, http.StatusOK, envelope{Result: result})
}

func Created(w http.ResponseWriter, result interface{}) {
	write(w, http.StatusCreated, envelope{Result: result})
}

func Accepted(w http.ResponseWriter, result interface{}) {
	write(w, http.StatusAccepted, envelope{Result: result})
}

// Fail writes err as the error message with the given status.
func Fail(w http.ResponseWriter, status int, err error) {
	write(w, status, envelope{Error: err.Error()})
}
