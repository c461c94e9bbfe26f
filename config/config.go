package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"tokenescrow/native/escrow"
)

// RPCTokenEnv overrides the configured RPC bearer token when set.
const RPCTokenEnv = "ESCROW_RPC_TOKEN"

type Config struct {
	RPCAddress          string    `toml:"RPCAddress"`
	DataDir             string    `toml:"DataDir"`
	GenesisFile         string    `toml:"GenesisFile"`
	ProgramID           string    `toml:"ProgramID"`
	RPCToken            string    `toml:"RPCToken,omitempty"`
	RPCReadTimeoutSecs  int       `toml:"RPCReadTimeoutSecs"`
	RPCWriteTimeoutSecs int       `toml:"RPCWriteTimeoutSecs"`
	Log                 Log       `toml:"log"`
	RateLimit           RateLimit `toml:"ratelimit"`
	Telemetry           Telemetry `toml:"telemetry"`
	Indexer             Indexer   `toml:"indexer"`
	Ledger              Ledger    `toml:"ledger"`
	Global              Global    `toml:"global"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
		applyEnv(cfg)
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	fillDefaults(cfg)
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		RPCAddress:          ":8899",
		DataDir:             "./escrow-data",
		ProgramID:           escrow.DefaultProgramID.String(),
		RPCReadTimeoutSecs:  15,
		RPCWriteTimeoutSecs: 15,
		Log: Log{
			Level:      "info",
			Env:        "dev",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		RateLimit: RateLimit{RequestsPerSecond: 50, Burst: 100},
		Telemetry: Telemetry{Insecure: true},
		Ledger:    Ledger{RentLamportsPerByte: 10},
	}
}

func fillDefaults(cfg *Config) {
	def := Default()
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = def.RPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if strings.TrimSpace(cfg.ProgramID) == "" {
		cfg.ProgramID = def.ProgramID
	}
	if cfg.RPCReadTimeoutSecs == 0 {
		cfg.RPCReadTimeoutSecs = def.RPCReadTimeoutSecs
	}
	if cfg.RPCWriteTimeoutSecs == 0 {
		cfg.RPCWriteTimeoutSecs = def.RPCWriteTimeoutSecs
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = def.Log.Level
	}
	if strings.TrimSpace(cfg.Log.Env) == "" {
		cfg.Log.Env = def.Log.Env
	}
}

func applyEnv(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv(RPCTokenEnv)); token != "" {
		cfg.RPCToken = token
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
