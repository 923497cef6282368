package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisabledProviderFallsBackToGlobalMeter(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false, Environment: "Staging"})
	require.NoError(t, err)
	require.NotNil(t, p.Meter("test"))
	require.NoError(t, p.Shutdown(context.Background()))
	require.Equal(t, "staging", Environment())
}

func TestNilProviderIsSafe(t *testing.T) {
	var p *Provider
	require.NotNil(t, p.Meter("test"))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestStripScheme(t *testing.T) {
	require.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("collector:4318"))
}

func TestDefaultConfigReadsEnvironment(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_RESOURCE_ENVIRONMENT", "")
	t.Setenv("TICKWIRE_ENV", "prod")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_SERVICE_NAME", "")

	cfg := DefaultConfig()
	require.True(t, cfg.Enabled)
	require.Equal(t, "prod", cfg.Environment)
	require.Equal(t, "localhost:4318", cfg.OTLPEndpoint)
	require.Equal(t, "tickwire", cfg.ServiceName)
}
