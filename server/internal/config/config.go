package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the relay configuration.
const (
	DefaultSocketHostPort = "127.0.0.1:9001"
	DefaultAssetHostPort  = "127.0.0.1:8000"
	DefaultLogLevel       = "info"
	DefaultOutput         = OutputDiscard

	DefaultQueueCapacity     = 5
	DefaultQueuePolicy       = PolicyBlockThenDrop
	DefaultQueueBlockTimeout = 50 * time.Millisecond

	DefaultSendBuffer   = 64
	DefaultWriteTimeout = 10 * time.Second
	DefaultReadLimit    = 64 * 1024
)

// Backpressure policies for the distribution queue.
const (
	PolicyBlock         = "block"
	PolicyDropOldest    = "drop_oldest"
	PolicyBlockThenDrop = "block_then_drop"
)

// Output sinks for inbound client frames.
const (
	OutputDiscard = "discard"
	OutputLog     = "log"
	OutputStdout  = "stdout"
)

// Config holds the relay configuration parsed from the `relay:` section of
// the YAML file.
type Config struct {
	Relay RelayConfig `yaml:"relay"`
}

// RelayConfig holds all relay settings.
type RelayConfig struct {
	// SocketHostPort is the address the WebSocket relay binds (default 127.0.0.1:9001).
	SocketHostPort string `yaml:"socket_host_port"`

	// AssetHostPort is the address the static asset, status and metrics server binds.
	AssetHostPort string `yaml:"asset_host_port"`

	// AssetDir serves the viewer bundle from disk. Empty uses the embedded bundle.
	AssetDir string `yaml:"asset_dir"`

	// LogLevel is one of: debug | info | warn | error. Reloaded live.
	LogLevel string `yaml:"log_level"`

	// Output is where inbound text frames from viewers go: discard | log | stdout.
	Output string `yaml:"output"`

	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Input      InputConfig      `yaml:"input"`
}

// QueueConfig controls the bounded distribution queue between ingest and the hub.
type QueueConfig struct {
	// Capacity is the number of encoded samples the queue holds (default 5).
	Capacity int `yaml:"capacity"`

	// Policy is applied when the queue is full: block | drop_oldest | block_then_drop.
	Policy string `yaml:"policy"`

	// BlockTimeout bounds the wait under block_then_drop before the oldest
	// sample is dropped.
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// ConnectionConfig holds per-viewer connection limits.
type ConnectionConfig struct {
	// SendBuffer is the per-connection outgoing sample buffer. A viewer whose
	// buffer overflows is disconnected.
	SendBuffer int `yaml:"send_buffer"`

	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ReadLimit is the largest inbound frame accepted, in bytes.
	ReadLimit int64 `yaml:"read_limit"`

	// MaxClients caps concurrent viewers. Zero means unlimited.
	MaxClients int `yaml:"max_clients"`
}

// InputConfig controls the record source.
type InputConfig struct {
	// ExitOnEOF stops the relay once the source ends and the queue is drained.
	ExitOnEOF bool `yaml:"exit_on_eof"`
}

// Level returns the slog level named by LogLevel. Unknown names map to info;
// validate rejects them before this is reached.
func (r RelayConfig) Level() slog.Level {
	switch strings.ToLower(r.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the config file at path. An empty path yields the
// defaults. Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay config: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("relay config: parse yaml: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("relay config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Relay: RelayConfig{
			SocketHostPort: DefaultSocketHostPort,
			AssetHostPort:  DefaultAssetHostPort,
			LogLevel:       DefaultLogLevel,
			Output:         DefaultOutput,
			Queue: QueueConfig{
				Capacity:     DefaultQueueCapacity,
				Policy:       DefaultQueuePolicy,
				BlockTimeout: DefaultQueueBlockTimeout,
			},
			Connection: ConnectionConfig{
				SendBuffer:   DefaultSendBuffer,
				WriteTimeout: DefaultWriteTimeout,
				ReadLimit:    DefaultReadLimit,
			},
		},
	}
}

// Validate checks structural constraints on cfg. It is exported so callers
// can re-check a config after applying command-line overrides.
func Validate(cfg *Config) error {
	r := cfg.Relay
	if _, _, err := net.SplitHostPort(r.SocketHostPort); err != nil {
		return fmt.Errorf("relay.socket_host_port %q: %w", r.SocketHostPort, err)
	}
	if _, _, err := net.SplitHostPort(r.AssetHostPort); err != nil {
		return fmt.Errorf("relay.asset_host_port %q: %w", r.AssetHostPort, err)
	}
	switch strings.ToLower(r.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("relay.log_level %q unknown: want debug|info|warn|error", r.LogLevel)
	}
	switch r.Output {
	case OutputDiscard, OutputLog, OutputStdout:
	default:
		return fmt.Errorf("relay.output %q unknown: want discard|log|stdout", r.Output)
	}
	if r.Queue.Capacity <= 0 {
		return fmt.Errorf("relay.queue.capacity must be positive, got %d", r.Queue.Capacity)
	}
	switch r.Queue.Policy {
	case PolicyBlock, PolicyDropOldest, PolicyBlockThenDrop:
	default:
		return fmt.Errorf("relay.queue.policy %q unknown: want block|drop_oldest|block_then_drop", r.Queue.Policy)
	}
	if r.Queue.Policy == PolicyBlockThenDrop && r.Queue.BlockTimeout <= 0 {
		return fmt.Errorf("relay.queue.block_timeout must be positive for block_then_drop")
	}
	if r.Connection.SendBuffer <= 0 {
		return fmt.Errorf("relay.connection.send_buffer must be positive, got %d", r.Connection.SendBuffer)
	}
	if r.Connection.WriteTimeout <= 0 {
		return fmt.Errorf("relay.connection.write_timeout must be positive")
	}
	if r.Connection.ReadLimit <= 0 {
		return fmt.Errorf("relay.connection.read_limit must be positive")
	}
	if r.Connection.MaxClients < 0 {
		return fmt.Errorf("relay.connection.max_clients must not be negative")
	}
	return nil
}
