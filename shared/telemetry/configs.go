package telemetry

// Predefined service configurations
var (
	// OrchestratorServiceConfig is the telemetry configuration for the saga orchestrator
	OrchestratorServiceConfig = Config{
		ServiceName:    "orchestrator-service",
		ServiceVersion: "1.0.0",
	}

	// ParticipantDemoConfig is the telemetry configuration for the demo participants
	ParticipantDemoConfig = Config{
		ServiceName:    "participant-demo",
		ServiceVersion: "1.0.0",
	}
)

// NewConfigForService creates a new telemetry config for a custom service
func NewConfigForService(serviceName, version, otlpEndpoint string) Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		OTLPEndpoint:   otlpEndpoint,
	}
}

// WithOTLPEndpoint sets the OTLP endpoint for a config
func (c Config) WithOTLPEndpoint(endpoint string) Config {
	c.OTLPEndpoint = endpoint
	return c
}

// WithVersion sets the service version for a config
func (c Config) WithVersion(version string) Config {
	c.ServiceVersion = version
	return c
}

// WithSampleRatio sets the trace sampling ratio for a config
func (c Config) WithSampleRatio(ratio float64) Config {
	c.SampleRatio = ratio
	return c
}
