// Package config loads the ouroboros.toml configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/invopop/jsonschema"
	"github.com/pelletier/go-toml/v2"

	"ouroboros/internal/analysis"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "ouroboros.toml"

// Environment variables read by Load.
const (
	EnvConfig  = "OUROBOROS_CONFIG"
	EnvDebug   = "OUROBOROS_DEBUG"
	EnvNoColor = "OUROBOROS_NO_COLOR"
)

// ErrInvalid is wrapped by every parse and validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the ouroboros configuration.
type Config struct {
	Debug                 bool     `toml:"debug" json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	LogFile               string   `toml:"log_file" json:"log_file,omitempty" jsonschema:"title=Log File,description=Write logs to this file instead of stderr"`
	MaxFrames             int      `toml:"max_frames" json:"max_frames" jsonschema:"title=Max Frames,description=Signal frames run before analysis stops,minimum=1,default=64"`
	MaxDecodeInstructions int      `toml:"max_decode_instructions" json:"max_decode_instructions" jsonschema:"title=Max Decode Instructions,description=Instructions decoded by one mark (0 means unbounded),minimum=0,default=100000"`
	DiscoverPointers      bool     `toml:"discover_pointers" json:"discover_pointers" jsonschema:"title=Discover Pointers,description=Treat code addresses held in parameter registers as functions,default=true"`
	ParamRegisters        []string `toml:"param_registers" json:"param_registers" jsonschema:"title=Parameter Registers,description=Registers scanned for code pointers"`
	NoColor               bool     `toml:"no_color" json:"no_color" jsonschema:"title=No Color,description=Disable syntax highlighting"`
	GraphDir              string   `toml:"graph_dir" json:"graph_dir,omitempty" jsonschema:"title=Graph Directory,description=Directory the graph command writes DOT files to"`
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := analysis.DefaultOptions()
	return &Config{
		MaxFrames:             opts.MaxFrames,
		MaxDecodeInstructions: opts.MaxDecodeInstructions,
		DiscoverPointers:      opts.DiscoverPointers,
		ParamRegisters:        opts.ParamRegisters,
	}
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the numeric bounds and the register list.
func (c *Config) Validate() error {
	if c.MaxFrames < 1 {
		return fmt.Errorf("%w: max_frames must be at least 1, got %d", ErrInvalid, c.MaxFrames)
	}
	if c.MaxDecodeInstructions < 0 {
		return fmt.Errorf("%w: max_decode_instructions must not be negative, got %d", ErrInvalid, c.MaxDecodeInstructions)
	}
	for i, r := range c.ParamRegisters {
		if r == "" {
			return fmt.Errorf("%w: param_registers[%d] is empty", ErrInvalid, i)
		}
		if slices.Contains(c.ParamRegisters[:i], r) {
			return fmt.Errorf("%w: param_registers lists %q twice", ErrInvalid, r)
		}
	}
	return nil
}

// Load reads the configuration from flagPath, then $OUROBOROS_CONFIG, then
// ouroboros.toml in the working directory. An explicitly named file must
// exist; a missing ouroboros.toml means defaults. It returns the path read,
// or "" for defaults.
func Load(flagPath string) (*Config, string, error) {
	path, explicit := flagPath, true
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		path, explicit = FileName, false
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, os.ErrNotExist):
		cfg := Default()
		if err := cfg.ApplyEnv(); err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	default:
		return nil, "", fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// ApplyEnv overrides debug and no_color from the environment.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvDebug); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalid, EnvDebug, v, err)
		}
		c.Debug = b
	}
	if os.Getenv(EnvNoColor) != "" {
		c.NoColor = true
	}
	return nil
}

// Analysis returns the session options the configuration selects.
func (c *Config) Analysis() analysis.Options {
	return analysis.Options{
		MaxFrames:             c.MaxFrames,
		MaxDecodeInstructions: c.MaxDecodeInstructions,
		DiscoverPointers:      c.DiscoverPointers,
		ParamRegisters:        slices.Clone(c.ParamRegisters),
	}
}

// Schema returns the JSON schema of Config.
func Schema() ([]byte, error) {
	reflector := new(jsonschema.Reflector)
	bts, err := json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return bts, nil
}
