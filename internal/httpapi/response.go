package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

const (
	// maxRequestBody caps JSON control requests.
	maxRequestBody = 4096
	// maxUnlockSeconds bounds a manual unlock window.
	maxUnlockSeconds = 3600

	maxUploadBody   = 64 << 20
	maxUploadMemory = 16 << 20
)

// errorResponse keeps the status/message envelope the mobile app reads and
// adds a stable machine code.
type errorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusBody struct {
	types.StatusResponse
	Health map[string]bool `json:"health,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Status: "error", Code: code, Message: msg})
}

// decodeOptionalJSON decodes r's body into v when there is one. An empty body
// leaves v untouched. It writes the error response itself and reports whether
// the handler should continue.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return false
	}
	return true
}
