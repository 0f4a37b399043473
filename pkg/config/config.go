// Package config provides YAML configuration loading for extraction runs
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hublift/hublift/pkg/errors"
	"github.com/hublift/hublift/pkg/hubspot"
)

// SourceConfig holds upstream API connection settings.
type SourceConfig struct {
	BaseURL        string `yaml:"base_url"`
	AuthMode       string `yaml:"auth_mode"` // oauth or apikey
	AccessToken    string `yaml:"access_token"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RequestsPerSec int    `yaml:"requests_per_sec"`
	RateLimitBurst int    `yaml:"rate_limit_burst"`
}

// OutputConfig holds object storage destination settings.
type OutputConfig struct {
	Bucket         string `yaml:"bucket"`
	KeyBase        string `yaml:"key_base"` // blob name prefix, defaults to the object name
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
	Compress       bool   `yaml:"compress"`
}

// ReliabilityConfig tunes retry and checkpoint behavior.
type ReliabilityConfig struct {
	MaxAttempts         int    `yaml:"max_attempts"`
	InitialDelaySeconds int    `yaml:"initial_delay_seconds"`
	CheckpointPath      string `yaml:"checkpoint_path"` // empty keeps checkpoints in memory
	Resume              bool   `yaml:"resume"`
}

// ExtractionConfig is one extraction run: a logical object, the request
// payload merged into every page request, and where the output goes.
type ExtractionConfig struct {
	Object      string            `yaml:"object"`
	RunID       string            `yaml:"run_id"`
	Payload     map[string]string `yaml:"payload"`
	PageSize    int               `yaml:"page_size"`
	FlushEvery  int               `yaml:"flush_every"`
	Source      SourceConfig      `yaml:"source"`
	Output      OutputConfig      `yaml:"output"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	LogLevel    string            `yaml:"log_level"`
}

// Load reads a YAML run configuration, substituting ${VAR} references from
// the environment before parsing.
func Load(filePath string) (*ExtractionConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
	}

	content := substituteEnvVars(string(data))

	cfg := &ExtractionConfig{}
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with working defaults.
func (c *ExtractionConfig) ApplyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 100
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Source.AuthMode == "" {
		c.Source.AuthMode = string(hubspot.AuthAPIKey)
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = 30
	}
	if c.Source.RequestsPerSec <= 0 {
		c.Source.RequestsPerSec = 10
	}
	if c.Output.Region == "" {
		c.Output.Region = "us-east-1"
	}
	if c.Output.KeyBase == "" {
		c.Output.KeyBase = c.Object
	}
	if c.Reliability.MaxAttempts <= 0 {
		c.Reliability.MaxAttempts = 3
	}
	if c.Reliability.InitialDelaySeconds <= 0 {
		c.Reliability.InitialDelaySeconds = 1
	}
}

// Validate rejects configurations that would fail mid-run, before any
// network or storage I/O happens.
func (c *ExtractionConfig) Validate() error {
	if c.Object == "" {
		return errors.New(errors.ErrorTypeConfig, "object is required")
	}
	if !hubspot.Supported(hubspot.ObjectType(c.Object)) {
		return errors.Newf(errors.ErrorTypeConfig,
			"%s is not a supported queryable object", c.Object)
	}
	if c.Output.Bucket == "" {
		return errors.New(errors.ErrorTypeConfig, "output.bucket is required")
	}

	switch hubspot.AuthMode(c.Source.AuthMode) {
	case hubspot.AuthOAuth:
		if c.Source.AccessToken == "" {
			return errors.New(errors.ErrorTypeConfig,
				"source.access_token is required for oauth auth mode")
		}
	case hubspot.AuthAPIKey:
		if c.Source.APIKey == "" {
			return errors.New(errors.ErrorTypeConfig,
				"source.api_key is required for apikey auth mode")
		}
	default:
		return errors.Newf(errors.ErrorTypeConfig,
			"unknown auth mode: %s", c.Source.AuthMode)
	}
	return nil
}

// RequestTimeout returns the source timeout as a duration.
func (c *ExtractionConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// InitialRetryDelay returns the first backoff delay as a duration.
func (c *ExtractionConfig) InitialRetryDelay() time.Duration {
	return time.Duration(c.Reliability.InitialDelaySeconds) * time.Second
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
