package gorillaws

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML either as a Go
// duration string ("30s") or a plain number of seconds.
type Duration time.Duration

func (d Duration) std() time.Duration {
	return time.Duration(d)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("gorillaws: invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds int64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("gorillaws: invalid duration node: %w", err)
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}

// Config holds the transport tuning knobs.
type Config struct {
	// ReadBufferSize and WriteBufferSize are the I/O buffer sizes in
	// bytes handed to the upgrader.
	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`

	// HandshakeTimeout bounds the upgrade handshake.
	HandshakeTimeout Duration `yaml:"handshake_timeout"`

	// WriteTimeout bounds every outbound write.
	WriteTimeout Duration `yaml:"write_timeout"`

	// PingInterval is how often the server pings the client. Zero
	// disables keepalive probing and read deadlines.
	PingInterval Duration `yaml:"ping_interval"`

	// PongWait is how long to wait for any read (including pongs) before
	// considering the connection dead.
	PongWait Duration `yaml:"pong_wait"`

	// MaxMessageSize limits inbound message size in bytes. Zero means no
	// limit.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// DefaultConfig returns the defaults used when no configuration is given.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: Duration(10 * time.Second),
		WriteTimeout:     Duration(10 * time.Second),
		PingInterval:     Duration(30 * time.Second),
		PongWait:         Duration(60 * time.Second),
		MaxMessageSize:   1 << 20,
	}
}

// ConfigFromFile loads a YAML config file over the defaults, so a file only
// needs to list the values it changes.
func ConfigFromFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("gorillaws: reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("gorillaws: parsing config: %w", err)
	}
	return cfg, nil
}
