package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bluetuith-org/ble-session/internal/serde"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk form of a Configuration.
// Durations are written as strings ("250ms", "20s").
type fileConfig struct {
	Backend        string `json:"backend,omitempty" yaml:"backend,omitempty"`
	ExecutablePath string `json:"executable_path,omitempty" yaml:"executable_path,omitempty"`
	Controller     string `json:"controller,omitempty" yaml:"controller,omitempty"`

	AuthTimeout         string `json:"auth_timeout,omitempty" yaml:"auth_timeout,omitempty"`
	CommandTimeout      string `json:"command_timeout,omitempty" yaml:"command_timeout,omitempty"`
	PollSlice           string `json:"poll_slice,omitempty" yaml:"poll_slice,omitempty"`
	PollInterval        string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	AvailabilityTimeout string `json:"availability_timeout,omitempty" yaml:"availability_timeout,omitempty"`
	ResolveTimeout      string `json:"resolve_timeout,omitempty" yaml:"resolve_timeout,omitempty"`
	ListQuietPeriod     string `json:"list_quiet_period,omitempty" yaml:"list_quiet_period,omitempty"`

	PairNoReplyIsSuccess *bool `json:"pair_no_reply_is_success,omitempty" yaml:"pair_no_reply_is_success,omitempty"`
	NotifyQueueSize      int   `json:"notify_queue_size,omitempty" yaml:"notify_queue_size,omitempty"`

	Log LogConfig `json:"log,omitempty" yaml:"log,omitempty"`
}

// Load reads a configuration file on top of the defaults returned by New.
// Files ending in ".json" are decoded as JSON, every other file as YAML.
func Load(path string) (Configuration, error) {
	cfg := New()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = serde.UnmarshalJson(data, &fc)
	default:
		err = yaml.Unmarshal(data, &fc)
	}
	if err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}

	if err := fc.apply(&cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

func (fc fileConfig) apply(cfg *Configuration) error {
	if fc.Backend != "" {
		cfg.Backend = Backend(strings.ToLower(fc.Backend))
	}
	if fc.ExecutablePath != "" {
		cfg.ExecutablePath = fc.ExecutablePath
	}
	if fc.Controller != "" {
		cfg.Controller = fc.Controller
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"auth_timeout", fc.AuthTimeout, &cfg.AuthTimeout},
		{"command_timeout", fc.CommandTimeout, &cfg.CommandTimeout},
		{"poll_slice", fc.PollSlice, &cfg.PollSlice},
		{"poll_interval", fc.PollInterval, &cfg.PollInterval},
		{"availability_timeout", fc.AvailabilityTimeout, &cfg.AvailabilityTimeout},
		{"resolve_timeout", fc.ResolveTimeout, &cfg.ResolveTimeout},
		{"list_quiet_period", fc.ListQuietPeriod, &cfg.ListQuietPeriod},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}

		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	if fc.PairNoReplyIsSuccess != nil {
		cfg.PairNoReplyIsSuccess = *fc.PairNoReplyIsSuccess
	}
	if fc.NotifyQueueSize != 0 {
		cfg.NotifyQueueSize = fc.NotifyQueueSize
	}

	if fc.Log.Level != "" {
		cfg.Log.Level = fc.Log.Level
	}
	if fc.Log.Format != "" {
		cfg.Log.Format = fc.Log.Format
	}
	if fc.Log.Output != "" {
		cfg.Log.Output = fc.Log.Output
	}

	return nil
}
