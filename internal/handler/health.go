package handler

import "net/http"

// HandleHealth answers liveness probes. It touches nothing, so it stays
// fast even when every execution slot is busy.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
