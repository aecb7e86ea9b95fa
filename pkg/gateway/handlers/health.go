package handlers

import (
	"net/http"

	"github.com/k2ai/interview-relay/pkg/gateway/config"
	"github.com/k2ai/interview-relay/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Mode     string   `json:"mode"`
		Draining bool     `json:"draining,omitempty"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.Mode {
	case config.ModeDev, config.ModeProd, config.ModeReviewer:
	default:
		issues = append(issues, "invalid mode")
	}
	if h.Config.Mode == config.ModeDev && h.Config.GeminiAPIKey == "" {
		issues = append(issues, "mode=dev but no backend api key configured")
	}
	if h.Config.Mode == config.ModeReviewer && len(h.Config.ReviewerKeys) == 0 {
		issues = append(issues, "mode=reviewer but no reviewer keys configured")
	}
	if h.Config.DatabaseURL == "" {
		issues = append(issues, "database url not configured")
	}

	draining := h.Lifecycle.IsDraining()

	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, readyResp{
		OK:       ok,
		Mode:     string(h.Config.Mode),
		Draining: draining,
		Issues:   issues,
	})
}
