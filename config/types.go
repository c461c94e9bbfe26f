package config

import (
	"time"

	"tokenescrow/core/types"
	"tokenescrow/observability/logging"
	"tokenescrow/observability/otel"
)

// Log controls the structured logger and optional rotated file output.
type Log struct {
	Level      string `toml:"Level"`
	Env        string `toml:"Env"`
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// RateLimit bounds RPC requests per client address.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// Telemetry configures the OTLP exporters. An empty endpoint keeps them off.
type Telemetry struct {
	Endpoint string            `toml:"Endpoint,omitempty"`
	Insecure bool              `toml:"Insecure"`
	Traces   bool              `toml:"Traces"`
	Metrics  bool              `toml:"Metrics"`
	Headers  map[string]string `toml:"Headers,omitempty"`
}

// Indexer enables the SQL read model of open escrows.
type Indexer struct {
	DSN string `toml:"DSN,omitempty"`
}

type Ledger struct {
	RentLamportsPerByte uint64 `toml:"RentLamportsPerByte"`
}

type Pauses struct {
	Escrow bool `toml:"Escrow"`
}

// Global bundles the runtime switches enforced by Validate.
type Global struct {
	Pauses Pauses `toml:"pauses"`
}

// Map returns the pause switches keyed by module name.
func (p Pauses) Map() map[string]bool {
	return map[string]bool{"escrow": p.Escrow}
}

func (c *Config) Rent() types.Rent {
	return types.Rent{LamportsPerByte: c.Ledger.RentLamportsPerByte}
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.RPCReadTimeoutSecs) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.RPCWriteTimeoutSecs) * time.Second
}

// LoggingOptions converts the log section for logging.SetupWithOptions.
func (l Log) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      logging.ParseLevel(l.Level),
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	}
}

// OTel converts the telemetry section for otel.Init.
func (t Telemetry) OTel(service, env string) otel.Config {
	enabled := t.Endpoint != ""
	return otel.Config{
		ServiceName: service,
		Environment: env,
		Endpoint:    t.Endpoint,
		Insecure:    t.Insecure,
		Headers:     t.Headers,
		Traces:      enabled && t.Traces,
		Metrics:     enabled && t.Metrics,
	}
}
