package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/k2ai/interview-relay/pkg/gateway/config"
	gatewayserver "github.com/k2ai/interview-relay/pkg/gateway/server"
	"github.com/k2ai/interview-relay/pkg/store"
)

func testDeps(sigCh chan chan<- os.Signal) relayDeps {
	return relayDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{
				Addr:                 "127.0.0.1:0",
				Mode:                 config.ModeDev,
				GeminiAPIKey:         "k",
				LiveModel:            "m",
				GradingModels:        []string{"g"},
				DatabaseURL:          "postgres://x",
				WSPingInterval:       20 * time.Second,
				WSWriteTimeout:       5 * time.Second,
				WSMaxMessageBytes:    1024,
				LiveHandshakeTimeout: time.Second,
				ReadHeaderTimeout:    time.Second,
				ShutdownGracePeriod:  time.Second,
			}, nil
		},
		openStore: func(context.Context, string, *slog.Logger) (*store.Store, error) {
			return nil, nil
		},
		newGateway: gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, _ ...os.Signal) {
			if sigCh != nil {
				sigCh <- c
			}
		},
		signalStop: func(chan<- os.Signal) {},
	}
}

func TestRunRelayMissingDeps(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*relayDeps)
	}{
		{"loadConfig", func(d *relayDeps) { d.loadConfig = nil }},
		{"openStore", func(d *relayDeps) { d.openStore = nil }},
		{"newGateway", func(d *relayDeps) { d.newGateway = nil }},
		{"signals", func(d *relayDeps) { d.signalNotify = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps(nil)
			tt.mutate(&deps)
			if err := runRelay(context.Background(), nil, deps); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestRunRelayConfigError(t *testing.T) {
	deps := testDeps(nil)
	deps.loadConfig = func() (config.Config, error) {
		return config.Config{}, errors.New("bad env")
	}
	err := runRelay(context.Background(), nil, deps)
	if err == nil || !strings.Contains(err.Error(), "bad env") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunRelayShutsDownOnSignal(t *testing.T) {
	sigCh := make(chan chan<- os.Signal, 1)
	deps := testDeps(sigCh)

	done := make(chan error, 1)
	go func() { done <- runRelay(context.Background(), nil, deps) }()

	var signals chan<- os.Signal
	select {
	case signals = <-sigCh:
	case <-time.After(2 * time.Second):
		t.Fatal("signal channel was never registered")
	}
	signals <- os.Interrupt

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runRelay did not stop")
	}
}
