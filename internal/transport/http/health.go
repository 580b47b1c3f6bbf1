package http

import (
	"io"
	"net/http"
)

// HealthHandler is the liveness probe: a plain 200 whenever the process can
// serve requests at all.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}
