package config

import (
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RELAY_MODE", "dev")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("DATABASE_URL", "postgres://localhost/interviews")
}

func TestLoadFromEnvDefaults(t *testing.T) {
	setBaseEnv(t)
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Mode != ModeDev {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.WSPingInterval != 20*time.Second {
		t.Errorf("WSPingInterval = %v", cfg.WSPingInterval)
	}
	if len(cfg.GradingModels) != 2 {
		t.Errorf("GradingModels = %v", cfg.GradingModels)
	}
	if cfg.LiveModel == "" {
		t.Error("LiveModel default missing")
	}
}

func TestLoadFromEnvModeValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			"dev requires key",
			map[string]string{"RELAY_MODE": "dev", "GEMINI_API_KEY": "", "DATABASE_URL": "postgres://x"},
			true,
		},
		{
			"reviewer requires pool",
			map[string]string{"RELAY_MODE": "reviewer", "DATABASE_URL": "postgres://x"},
			true,
		},
		{
			"reviewer with pool",
			map[string]string{"RELAY_MODE": "reviewer", "GEMINI_REVIEWER_KEYS": "a,b", "DATABASE_URL": "postgres://x"},
			false,
		},
		{
			"prod needs no backend key",
			map[string]string{"RELAY_MODE": "prod", "DATABASE_URL": "postgres://x"},
			false,
		},
		{
			"unknown mode",
			map[string]string{"RELAY_MODE": "staging", "DATABASE_URL": "postgres://x"},
			true,
		},
		{
			"database url required",
			map[string]string{"RELAY_MODE": "prod"},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv("GEMINI_REVIEWER_KEYS", "")
			t.Setenv("DATABASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestReviewerKeysSplit(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("RELAY_MODE", "reviewer")
	t.Setenv("GEMINI_REVIEWER_KEYS", " key-a , ,key-b ")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.ReviewerKeys) != 2 || cfg.ReviewerKeys[0] != "key-a" || cfg.ReviewerKeys[1] != "key-b" {
		t.Fatalf("ReviewerKeys = %v", cfg.ReviewerKeys)
	}
}

func TestCORSOrigins(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("RELAY_CORS_ORIGINS", "https://app.example.com,https://staging.example.com")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://app.example.com"]; !ok {
		t.Fatal("missing origin")
	}
}

func TestDurationOverride(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("RELAY_WS_PING_INTERVAL", "45s")
	t.Setenv("RELAY_SHUTDOWN_GRACE_PERIOD", "garbage")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WSPingInterval != 45*time.Second {
		t.Errorf("WSPingInterval = %v", cfg.WSPingInterval)
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Errorf("unparseable duration should fall back to default, got %v", cfg.ShutdownGracePeriod)
	}
}
