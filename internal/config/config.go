// Package config loads executor settings from an optional TOML or YAML file
// and the process environment. Environment variables always win over the file,
// so CI matrices can keep one checked-in file and vary a single variable.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	xerrors "testd/executor/internal/errors"
)

// Executor selects how the query engine is hosted.
type Executor string

const (
	ExecutorNapi          Executor = "Napi"
	ExecutorWasm          Executor = "Wasm"
	ExecutorMobile        Executor = "Mobile"
	ExecutorQueryCompiler Executor = "QueryCompiler"
	ExecutorRemote        Executor = "Remote"
)

// DriverAdapter names a driver adapter implementation.
type DriverAdapter string

const (
	AdapterPg            DriverAdapter = "pg"
	AdapterBetterSQLite3 DriverAdapter = "better-sqlite3"
	AdapterLibSQL        DriverAdapter = "libsql"
)

// EnvKeys lists the environment variables Load reads.
var EnvKeys = []string{
	"EXTERNAL_TEST_EXECUTOR",
	"DRIVER_ADAPTER",
	"DRIVER_ADAPTER_CONFIG",
	"MOBILE_EMULATOR_URL",
	"ENGINE_GRPC_ADDR",
	"TESTD_LOG_LEVEL",
	"TESTD_LOG_FORMAT",
}

// Config holds executor settings.
type Config struct {
	Executor            Executor            `toml:"executor" yaml:"executor" json:"executor"`
	DriverAdapter       DriverAdapter       `toml:"driver_adapter" yaml:"driver_adapter" json:"driver_adapter"`
	DriverAdapterConfig DriverAdapterConfig `toml:"driver_adapter_config" yaml:"driver_adapter_config" json:"driver_adapter_config"`
	MobileEmulatorURL   string              `toml:"mobile_emulator_url" yaml:"mobile_emulator_url" json:"mobile_emulator_url"`
	EngineGRPCAddr      string              `toml:"engine_grpc_addr" yaml:"engine_grpc_addr" json:"engine_grpc_addr"`
	LogLevel            string              `toml:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat           string              `toml:"log_format" yaml:"log_format" json:"log_format"`
}

// DriverAdapterConfig holds adapter tuning shared by every adapter.
type DriverAdapterConfig struct {
	// MaxConnections caps the adapter's pool; 0 keeps the driver default.
	MaxConnections int `toml:"max_connections" yaml:"max_connections" json:"max_connections"`
}

// Load reads the file at path (skipped when path is empty), applies the
// environment on top, fills defaults and validates the result.
func Load(path string) (Config, error) {
	var c Config
	if path != "" {
		if err := decodeFile(path, &c); err != nil {
			return c, xerrors.Wrap(xerrors.InvalidConfig, "failed to load config file", err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return c, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func decodeFile(path string, c *Config) error {
	path = os.ExpandEnv(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported config file extension %q (use .toml, .yaml or .yml)", filepath.Ext(path))
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	var executor, adapter string
	str("EXTERNAL_TEST_EXECUTOR", &executor)
	str("DRIVER_ADAPTER", &adapter)
	if executor != "" {
		c.Executor = Executor(executor)
	}
	if adapter != "" {
		c.DriverAdapter = DriverAdapter(adapter)
	}
	str("MOBILE_EMULATOR_URL", &c.MobileEmulatorURL)
	str("ENGINE_GRPC_ADDR", &c.EngineGRPCAddr)
	str("TESTD_LOG_LEVEL", &c.LogLevel)
	str("TESTD_LOG_FORMAT", &c.LogFormat)

	if raw, ok := lookup("DRIVER_ADAPTER_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &c.DriverAdapterConfig); err != nil {
			return xerrors.Wrap(xerrors.InvalidConfig, "DRIVER_ADAPTER_CONFIG is not valid JSON", err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Executor == "" {
		c.Executor = ExecutorNapi
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks that the configuration is complete for its executor.
func (c Config) Validate() error {
	switch c.Executor {
	case ExecutorNapi, ExecutorWasm, ExecutorQueryCompiler:
	case ExecutorMobile:
		if c.MobileEmulatorURL == "" {
			return xerrors.New(xerrors.InvalidConfig, "MOBILE_EMULATOR_URL is required when EXTERNAL_TEST_EXECUTOR is Mobile")
		}
	case ExecutorRemote:
		if c.EngineGRPCAddr == "" {
			return xerrors.New(xerrors.InvalidConfig, "ENGINE_GRPC_ADDR is required when EXTERNAL_TEST_EXECUTOR is Remote")
		}
	default:
		return xerrors.New(xerrors.InvalidConfig, fmt.Sprintf("unknown EXTERNAL_TEST_EXECUTOR %q", c.Executor))
	}

	switch c.DriverAdapter {
	case AdapterPg, AdapterBetterSQLite3, AdapterLibSQL:
	case "":
		return xerrors.New(xerrors.InvalidConfig, "DRIVER_ADAPTER is required")
	default:
		return xerrors.New(xerrors.InvalidConfig, fmt.Sprintf("unknown DRIVER_ADAPTER %q", c.DriverAdapter))
	}

	if c.DriverAdapterConfig.MaxConnections < 0 {
		return xerrors.New(xerrors.InvalidConfig, "driver_adapter_config.max_connections must not be negative")
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return xerrors.New(xerrors.InvalidConfig, fmt.Sprintf("unknown log format %q", c.LogFormat))
	}
	return nil
}
