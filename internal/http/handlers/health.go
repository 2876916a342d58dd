package handlers

import "net/http"

// Health reports process liveness. Dependencies are not probed here; a
// degraded Redis or database shows up in metrics, not in the health check.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
