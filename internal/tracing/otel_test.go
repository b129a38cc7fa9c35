package tracing

import (
	"context"
	"testing"

	"github.com/steamfamilyzap/kgbot/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{}, "dev")
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestSetupRejectsUnknownProtocol(t *testing.T) {
	_, err := Setup(context.Background(), config.TelemetryConfig{Enabled: true, Protocol: "carrier-pigeon"}, "dev")
	if err == nil {
		t.Fatal("expected error")
	}
}
