package observability

import (
	"testing"

	"github.com/smallbiznis/finora/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNewConfigTakesIdentityFromApp(t *testing.T) {
	cfg := NewConfig(config.Config{
		AppName:     "billing-api",
		AppVersion:  " 1.4.0 ",
		Environment: "production",
		Observability: config.ObservabilityConfig{
			LogLevel:      "info",
			OTelEnabled:   true,
			OTLPEndpoint:  "collector:4317",
			OTLPProtocol:  "http",
			SamplingRatio: 0.5,
		},
	})

	assert.Equal(t, "billing-api", cfg.ServiceName)
	assert.Equal(t, "1.4.0", cfg.Version)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.False(t, cfg.Debug())
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig(config.Config{
		Environment: "development",
		Observability: config.ObservabilityConfig{
			OTelEnabled:  true,
			OTLPProtocol: "thrift",
		},
	})

	assert.Equal(t, defaultServiceName, cfg.ServiceName)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.False(t, cfg.OtelEnabled, "export needs an endpoint")
	assert.True(t, cfg.Debug())
}
