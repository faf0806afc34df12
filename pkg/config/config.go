package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// ICEServer describes one STUN/TURN server used for NAT traversal.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// Config is the immutable per-run agent configuration. It is created once at
// startup and passed by reference; nothing mutates it afterwards.
type Config struct {
	Server struct {
		URL            string        `yaml:"url"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
	} `yaml:"server"`

	Identity struct {
		PCID       string `yaml:"pc_id"`
		PCName     string `yaml:"pc_name"`
		UserID     string `yaml:"user_id"`
		SecretPath string `yaml:"secret_path"`
	} `yaml:"identity"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
	} `yaml:"webrtc"`

	Stream struct {
		InitialQuality    string        `yaml:"initial_quality"`
		CaptureMonitor    int           `yaml:"capture_monitor"`
		ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	} `yaml:"stream"`

	Input struct {
		Enabled        bool    `yaml:"enabled"`
		MovesPerSecond float64 `yaml:"moves_per_second"`
		MoveBurst      int     `yaml:"move_burst"`
	} `yaml:"input"`

	Control struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"control"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url must not be empty")
	}
	if c.Server.ConnectTimeout <= 0 {
		return fmt.Errorf("server.connect_timeout must be > 0")
	}
	if c.Stream.ReconnectInterval <= 0 {
		return fmt.Errorf("stream.reconnect_interval must be > 0")
	}
	if c.Stream.CaptureMonitor < 0 {
		return fmt.Errorf("stream.capture_monitor must be >= 0")
	}
	if c.Stream.InitialQuality == "" {
		return fmt.Errorf("stream.initial_quality must not be empty")
	}
	for i, srv := range c.WebRTC.ICEServers {
		if len(srv.URLs) == 0 {
			return fmt.Errorf("webrtc.ice_servers[%d].urls must not be empty", i)
		}
	}
	if c.Input.Enabled {
		if c.Input.MovesPerSecond <= 0 {
			return fmt.Errorf("input.moves_per_second must be > 0 when input is enabled")
		}
		if c.Input.MoveBurst <= 0 {
			return fmt.Errorf("input.move_burst must be > 0 when input is enabled")
		}
	}
	if c.Control.Enabled && c.Control.Address == "" {
		return fmt.Errorf("control.address must not be empty when control.enabled=true")
	}
	if c.Tracing.Enabled && c.Tracing.JaegerURL == "" {
		return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
	}
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}
	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults. The default ICE
// list pairs public STUN with the OpenRelay development TURN servers.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.URL = "ws://localhost:9999/ws"
	cfg.Server.ConnectTimeout = 5 * time.Second

	cfg.Identity.PCName = "Remote PC"
	cfg.Identity.SecretPath = ""

	cfg.WebRTC.ICEServers = []ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"stun:stun1.l.google.com:19302"}},
		{
			URLs:       []string{"turn:openrelay.metered.ca:80"},
			Username:   "openrelayproject",
			Credential: "openrelayproject",
		},
		{
			URLs:       []string{"turn:openrelay.metered.ca:443"},
			Username:   "openrelayproject",
			Credential: "openrelayproject",
		},
	}

	cfg.Stream.InitialQuality = "low"
	cfg.Stream.CaptureMonitor = 0
	cfg.Stream.ReconnectInterval = 5 * time.Second

	cfg.Input.Enabled = true
	cfg.Input.MovesPerSecond = 240
	cfg.Input.MoveBurst = 60

	cfg.Control.Enabled = true
	cfg.Control.Address = "127.0.0.1:8931"

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("SCREENLINK_SERVER_URL"); url != "" {
		c.Server.URL = url
	}
	if id := os.Getenv("SCREENLINK_PC_ID"); id != "" {
		c.Identity.PCID = id
	}
	if name := os.Getenv("SCREENLINK_PC_NAME"); name != "" {
		c.Identity.PCName = name
	}
	if level := os.Getenv("SCREENLINK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if quality := os.Getenv("SCREENLINK_QUALITY"); quality != "" {
		c.Stream.InitialQuality = quality
	}
	if monitor := os.Getenv("SCREENLINK_MONITOR"); monitor != "" {
		if idx, err := strconv.Atoi(monitor); err == nil && idx >= 0 {
			c.Stream.CaptureMonitor = idx
		}
	}
	if input := os.Getenv("SCREENLINK_ENABLE_INPUT"); input != "" {
		if enabled, err := strconv.ParseBool(input); err == nil {
			c.Input.Enabled = enabled
		}
	}
}
