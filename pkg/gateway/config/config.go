package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Mode string

const (
	// ModeDev runs every interview and grading call on one backend key.
	ModeDev Mode = "dev"
	// ModeProd expects each client to supply its own provider key.
	ModeProd Mode = "prod"
	// ModeReviewer rotates through a pool of backend keys.
	ModeReviewer Mode = "reviewer"
)

type Config struct {
	Addr string

	Mode Mode

	// GeminiAPIKey is the single backend key (dev mode).
	GeminiAPIKey string

	// ReviewerKeys is the rotating key pool (reviewer mode), paired
	// index-wise with GradingModels.
	ReviewerKeys []string

	LiveModel     string
	GradingModels []string

	DatabaseURL string

	// LiveWSBaseURL overrides the upstream live endpoint, for tests.
	LiveWSBaseURL string

	CORSAllowedOrigins map[string]struct{} // empty => disabled

	WSPingInterval       time.Duration
	WSWriteTimeout       time.Duration
	WSMaxMessageBytes    int64
	LiveHandshakeTimeout time.Duration

	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                 envOr("RELAY_ADDR", ":8080"),
		Mode:                 Mode(strings.ToLower(envOr("RELAY_MODE", string(ModeDev)))),
		GeminiAPIKey:         strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		ReviewerKeys:         splitCSV(os.Getenv("GEMINI_REVIEWER_KEYS")),
		LiveModel:            envOr("GEMINI_LIVE_MODEL", "gemini-2.0-flash-live-001"),
		GradingModels:        splitCSV(envOr("GEMINI_GRADING_MODELS", "gemini-2.5-flash,gemini-2.5-flash-lite")),
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		LiveWSBaseURL:        strings.TrimSpace(os.Getenv("RELAY_LIVE_WS_URL")),
		CORSAllowedOrigins:   make(map[string]struct{}),
		WSPingInterval:       envDurationOr("RELAY_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:       envDurationOr("RELAY_WS_WRITE_TIMEOUT", 5*time.Second),
		WSMaxMessageBytes:    envInt64Or("RELAY_WS_MAX_MESSAGE_BYTES", 256<<10),
		LiveHandshakeTimeout: envDurationOr("RELAY_LIVE_HANDSHAKE_TIMEOUT", 10*time.Second),
		ReadHeaderTimeout:    envDurationOr("RELAY_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:  envDurationOr("RELAY_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("RELAY_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	switch cfg.Mode {
	case ModeDev, ModeProd, ModeReviewer:
	default:
		return Config{}, fmt.Errorf("RELAY_MODE must be one of dev|prod|reviewer")
	}

	if cfg.Mode == ModeDev && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set when RELAY_MODE=dev")
	}
	if cfg.Mode == ModeReviewer && len(cfg.ReviewerKeys) == 0 {
		return Config{}, fmt.Errorf("GEMINI_REVIEWER_KEYS must be set when RELAY_MODE=reviewer")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if strings.TrimSpace(cfg.LiveModel) == "" {
		return Config{}, fmt.Errorf("GEMINI_LIVE_MODEL must not be empty")
	}
	if len(cfg.GradingModels) == 0 {
		return Config{}, fmt.Errorf("GEMINI_GRADING_MODELS must not be empty")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("RELAY_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("RELAY_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("RELAY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("RELAY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
