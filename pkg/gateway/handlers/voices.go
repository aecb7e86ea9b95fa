package handlers

import (
	"net/http"

	"github.com/k2ai/interview-relay/pkg/gateway/mw"
	"github.com/k2ai/interview-relay/pkg/voices"
)

// VoicesHandler serves the interviewer voice catalog.
type VoicesHandler struct{}

func (h VoicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", reqID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": voices.Catalog()})
}
