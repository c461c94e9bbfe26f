package config

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"tokenescrow/crypto"
)

// Validate rejects configurations the node cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("rpc: address must be set")
	}
	if cfg.RPCReadTimeoutSecs < 0 || cfg.RPCWriteTimeoutSecs < 0 {
		return fmt.Errorf("rpc: timeouts must not be negative")
	}
	if _, err := cfg.EscrowProgramID(); err != nil {
		return err
	}
	if cfg.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("ratelimit: requests_per_second < 0")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit: burst must be positive when limiting is enabled")
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log: rotation limits must not be negative")
	}
	if (cfg.Telemetry.Traces || cfg.Telemetry.Metrics) && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: endpoint required when exporters are enabled")
	}
	return nil
}

// EscrowProgramID decodes the configured escrow program address.
func (c *Config) EscrowProgramID() (solana.PublicKey, error) {
	id, err := crypto.DecodeAddress(c.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("program id: %w", err)
	}
	return id, nil
}
