package handlers

import (
	"io"
	"net/http"
)

// HandleHealth reports liveness. It does not depend on the push endpoint
// being reachable.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}
