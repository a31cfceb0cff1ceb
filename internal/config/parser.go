package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/thecloudstation/cloudstation-deployer/internal/hclfunc"
	"github.com/thecloudstation/cloudstation-deployer/pkg/history"
	"github.com/thecloudstation/cloudstation-deployer/pkg/poller"
)

// DefaultFile is looked up in the working directory when no path is given
const DefaultFile = "csd.hcl"

// DefaultAPIURL is used when neither the file nor flags set api_url
const DefaultAPIURL = "http://localhost:3000"

// Default returns the configuration used when no file exists
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path, or DefaultFile when path is empty. A missing DefaultFile
// yields Default(); a missing explicit path is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultFile); errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		path = DefaultFile
	}
	return ParseFile(path)
}

// ParseFile parses an HCL configuration file and returns a Config struct
func ParseFile(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", absPath)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(absPath)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}
	return decode(file)
}

// ParseBytes parses HCL configuration from a byte slice
func ParseBytes(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %s", diags.Error())
	}
	return decode(file)
}

// variablesOnly extracts variable blocks without evaluating anything else
type variablesOnly struct {
	Variables []*VariableConfig `hcl:"variable,block"`
	Remain    hcl.Body          `hcl:",remain"`
}

func decode(file *hcl.File) (*Config, error) {
	// PASS 1: resolve variable definitions
	var vars variablesOnly
	if diags := gohcl.DecodeBody(file.Body, hclfunc.NewEvalContext(nil), &vars); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode variables: %s", diags.Error())
	}

	// PASS 2: decode everything with var.X available
	var cfg Config
	evalCtx := hclfunc.NewEvalContext(resolveVariables(vars.Variables))
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode configuration: %s", diags.Error())
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// resolveVariables takes the first set env var of each variable, then its default
func resolveVariables(variables []*VariableConfig) map[string]string {
	resolved := make(map[string]string)

	for _, v := range variables {
		if v == nil {
			continue
		}

		var value string
		for _, envName := range v.Env {
			if envVal := os.Getenv(envName); envVal != "" {
				value = envVal
				break
			}
		}
		if value == "" {
			value = v.Default
		}

		resolved[v.Name] = value
	}

	return resolved
}

func (c *Config) applyDefaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.Poller == nil {
		c.Poller = &PollerConfig{}
	}
	if c.Poller.Interval == "" {
		c.Poller.Interval = poller.DefaultInterval.String()
	}
	if c.Poller.MaxAttempts == 0 {
		c.Poller.MaxAttempts = poller.DefaultMaxAttempts
	}
	if c.Poller.MaxDuration == "" {
		c.Poller.MaxDuration = poller.DefaultMaxDuration.String()
	}
	if c.History == nil {
		c.History = &HistoryConfig{}
	}
	if c.History.Limit == 0 {
		c.History.Limit = history.DefaultLimit
	}
}

// PollerSettings converts the poller block. Call Validate first.
func (c *Config) PollerSettings() poller.Config {
	interval, _ := time.ParseDuration(c.Poller.Interval)
	maxDuration, _ := time.ParseDuration(c.Poller.MaxDuration)
	return poller.Config{
		Interval:    interval,
		MaxAttempts: c.Poller.MaxAttempts,
		MaxDuration: maxDuration,
	}
}

// EventsEnabled reports whether an events block is configured
func (c *Config) EventsEnabled() bool {
	return c.Events != nil
}
