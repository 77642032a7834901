package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Backend describes the Bluetooth backend a session talks to.
type Backend string

const (
	// BackendDBus uses the BlueZ device-management API on the system bus.
	BackendDBus Backend = "dbus"

	// BackendBluetoothctl drives a bluetoothctl process over its standard input and output.
	BackendBluetoothctl Backend = "bluetoothctl"
)

const (
	// The default timeout duration for authentication requests.
	DefaultAuthTimeout = 10 * time.Second

	DefaultCommandTimeout      = 20 * time.Second
	DefaultPollSlice           = 250 * time.Millisecond
	DefaultPollInterval        = 500 * time.Millisecond
	DefaultAvailabilityTimeout = 10 * time.Second
	DefaultResolveTimeout      = 15 * time.Second
	DefaultListQuietPeriod     = 800 * time.Millisecond
	DefaultNotifyQueueSize     = 64

	DefaultExecutablePath = "bluetoothctl"
)

// LogConfig describes the logger of a session.
type LogConfig struct {
	// Level is one of "debug", "info", "warn" or "error".
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is either "text" or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Output is "stdout", "stderr" or a file path.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// Configuration describes a general configuration.
type Configuration struct {
	// Backend selects the Bluetooth backend.
	Backend Backend

	// ExecutablePath holds the path to the bluetoothctl executable.
	// Specific to the bluetoothctl backend.
	ExecutablePath string

	// Controller holds the address of the controller to operate on.
	// If empty, the default (or first) controller is used.
	Controller string

	// AuthTimeout holds the timeout for authentication requests.
	AuthTimeout time.Duration

	// CommandTimeout bounds the wait for the outcome of a single backend command.
	CommandTimeout time.Duration

	// PollSlice is the interval at which queued backend events are drained.
	PollSlice time.Duration

	// PollInterval paces availability and attribute-resolution polls.
	PollInterval time.Duration

	// AvailabilityTimeout bounds the wait for a device to appear before a verb is issued.
	AvailabilityTimeout time.Duration

	// ResolveTimeout bounds the wait for an attribute to appear in the attribute table.
	ResolveTimeout time.Duration

	// ListQuietPeriod is the quiet gap that ends a listing command's output.
	ListQuietPeriod time.Duration

	// PairNoReplyIsSuccess treats a pairing request which received no reply
	// from the backend as successful.
	PairNoReplyIsSuccess bool

	// NotifyQueueSize holds the number of notified values buffered per subscription.
	// Values are dropped when a subscriber falls behind.
	NotifyQueueSize int

	// Log configures the logger created for the session, if Logger is not set.
	Log LogConfig

	// Logger, if set, is used instead of creating a logger from Log.
	Logger *slog.Logger

	// Registerer, if set, registers the session metrics.
	Registerer prometheus.Registerer
}

// New returns a new configuration with the default timeouts.
func New() Configuration {
	return Configuration{
		Backend:              BackendDBus,
		ExecutablePath:       DefaultExecutablePath,
		AuthTimeout:          DefaultAuthTimeout,
		CommandTimeout:       DefaultCommandTimeout,
		PollSlice:            DefaultPollSlice,
		PollInterval:         DefaultPollInterval,
		AvailabilityTimeout:  DefaultAvailabilityTimeout,
		ResolveTimeout:       DefaultResolveTimeout,
		ListQuietPeriod:      DefaultListQuietPeriod,
		PairNoReplyIsSuccess: true,
		NotifyQueueSize:      DefaultNotifyQueueSize,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c Configuration) Validate() error {
	switch c.Backend {
	case BackendDBus, BackendBluetoothctl:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.Backend == BackendBluetoothctl && c.ExecutablePath == "" {
		return fmt.Errorf("executable path is required for the %s backend", c.Backend)
	}

	for name, d := range map[string]time.Duration{
		"auth timeout":         c.AuthTimeout,
		"command timeout":      c.CommandTimeout,
		"poll slice":           c.PollSlice,
		"poll interval":        c.PollInterval,
		"availability timeout": c.AvailabilityTimeout,
		"resolve timeout":      c.ResolveTimeout,
		"list quiet period":    c.ListQuietPeriod,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.PollSlice > c.CommandTimeout {
		return fmt.Errorf("poll slice (%s) exceeds command timeout (%s)", c.PollSlice, c.CommandTimeout)
	}

	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("notify queue size must be positive, got %d", c.NotifyQueueSize)
	}

	return nil
}
