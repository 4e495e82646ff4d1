// Package config loads server configuration from a YAML file with
// environment-variable overrides, following the same load → override →
// default → validate pipeline across the whole config tree.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	ControlAPI ControlAPIConfig `yaml:"control_api"`
	ClientAPI  ClientAPIConfig  `yaml:"client_api"`
	TURN       TURNConfig       `yaml:"turn"`
	Room       RoomConfig       `yaml:"room"`
}

type ServerConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

type ControlAPIConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	StaticSpecDir string `yaml:"static_spec_dir"`
}

type ClientAPIConfig struct {
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	IdentifyTimeout   time.Duration `yaml:"identify_timeout"`
	UpgradeRateLimit  int           `yaml:"upgrade_rate_limit"`
	UpgradeRateWindow time.Duration `yaml:"upgrade_rate_window"`
}

type TURNConfig struct {
	Host   string        `yaml:"host"`
	Port   int           `yaml:"port"`
	Secret string        `yaml:"secret"` // coturn static-auth-secret
	TTL    time.Duration `yaml:"ttl"`
}

// RoomConfig holds settings applied to every room the server creates,
// whether loaded from static specs or created through the Control API.
type RoomConfig struct {
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
}

func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envStringSlice(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		*dst = out
	}
}

func (c *Config) applyEnvOverrides() {
	envStringSlice("MEDEA_TRUSTED_PROXY_CIDRS", &c.Server.TrustedProxyCIDRs)
	envInt("MEDEA_SERVER_PORT", &c.Server.Port)
	envString("MEDEA_SERVER_HOST", &c.Server.Host)

	envString("MEDEA_CONTROL_API_JWT_SECRET", &c.ControlAPI.JWTSecret)
	envString("MEDEA_CONTROL_API_STATIC_SPEC_DIR", &c.ControlAPI.StaticSpecDir)

	envStringSlice("MEDEA_CLIENT_API_ALLOWED_ORIGINS", &c.ClientAPI.AllowedOrigins)
	envDuration("MEDEA_CLIENT_API_IDLE_TIMEOUT", &c.ClientAPI.IdleTimeout)
	envDuration("MEDEA_CLIENT_API_PING_INTERVAL", &c.ClientAPI.PingInterval)
	envDuration("MEDEA_CLIENT_API_IDENTIFY_TIMEOUT", &c.ClientAPI.IdentifyTimeout)
	envInt("MEDEA_CLIENT_API_UPGRADE_RATE_LIMIT", &c.ClientAPI.UpgradeRateLimit)
	envDuration("MEDEA_CLIENT_API_UPGRADE_RATE_WINDOW", &c.ClientAPI.UpgradeRateWindow)

	if v := os.Getenv("MEDEA_TURN_ADDR"); v != "" {
		if host, portStr, err := net.SplitHostPort(v); err == nil {
			c.TURN.Host = host
			if port, err := strconv.Atoi(portStr); err == nil {
				c.TURN.Port = port
			}
		}
	}
	envString("MEDEA_TURN_SECRET", &c.TURN.Secret)
	envDuration("MEDEA_TURN_TTL", &c.TURN.TTL)

	envDuration("MEDEA_ROOM_RECONNECT_TIMEOUT", &c.Room.ReconnectTimeout)
}

func (c *Config) validate() error {
	if c.ControlAPI.JWTSecret == "" {
		return fmt.Errorf("control_api.jwt_secret is required")
	}
	if len(c.ControlAPI.JWTSecret) < 32 {
		return fmt.Errorf("control_api.jwt_secret must be at least 32 characters")
	}
	if c.TURN.Secret == "" {
		return fmt.Errorf("turn.secret is required")
	}
	if c.ClientAPI.UpgradeRateLimit < 0 {
		return fmt.Errorf("client_api.upgrade_rate_limit must be >= 0")
	}

	for _, cidr := range c.Server.TrustedProxyCIDRs {
		trimmed := strings.TrimSpace(cidr)
		if trimmed == "" {
			continue
		}
		if ip := net.ParseIP(trimmed); ip != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(trimmed); err != nil {
			return fmt.Errorf("server.trusted_proxy_cidrs contains invalid CIDR or IP %q: %w", trimmed, err)
		}
	}

	for _, origin := range c.ClientAPI.AllowedOrigins {
		if origin == "*" || origin == "null" {
			continue
		}
		if !strings.Contains(origin, "://") {
			return fmt.Errorf("client_api.allowed_origins contains invalid origin %q", origin)
		}
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.ControlAPI.StaticSpecDir == "" {
		c.ControlAPI.StaticSpecDir = "./specs"
	}
	if len(c.ClientAPI.AllowedOrigins) == 0 {
		c.ClientAPI.AllowedOrigins = []string{"*"}
	}
	if c.ClientAPI.IdleTimeout == 0 {
		c.ClientAPI.IdleTimeout = 60 * time.Second
	}
	if c.ClientAPI.PingInterval == 0 {
		c.ClientAPI.PingInterval = 20 * time.Second
	}
	if c.ClientAPI.IdentifyTimeout == 0 {
		c.ClientAPI.IdentifyTimeout = 10 * time.Second
	}
	if c.ClientAPI.UpgradeRateLimit == 0 {
		c.ClientAPI.UpgradeRateLimit = 20
	}
	if c.ClientAPI.UpgradeRateWindow == 0 {
		c.ClientAPI.UpgradeRateWindow = time.Minute
	}
	if c.TURN.Port == 0 {
		c.TURN.Port = 3478
	}
	if c.TURN.TTL == 0 {
		c.TURN.TTL = 24 * time.Hour
	}
	if c.Room.ReconnectTimeout == 0 {
		c.Room.ReconnectTimeout = 10 * time.Second
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
