// Package telemetry wires OpenTelemetry tracing into cpmgmt.
//
// Manager owns the OTLP gRPC exporter and the TracerProvider handed to the
// management client. When enabled, it also registers the W3C trace context
// and baggage propagators so API calls, task polls and query pages of one
// run share a trace. A run whose parent is sampled keeps all its child
// spans whatever the sampling rate.
//
// Initialization failures never stop a run: the manager logs a warning and
// stays disabled.
//
//	manager := telemetry.NewManager(telemetry.Config{
//	    Enabled:          true,
//	    Endpoint:         "localhost:4317",
//	    Insecure:         true,
//	    SamplingRate:     0.1,
//	    ServiceName:      "cpmgmt",
//	    ManagementServer: "mgmt.example.com",
//	})
//	_ = manager.Initialize(ctx)
//	defer manager.Shutdown(ctx)
//
// The Attr* constants name the span attributes, and the Err*Template
// strings format troubleshooting messages for transport failures.
package telemetry
