// ABOUTME: Gateway configuration schema with YAML/TOML loading and saving
// ABOUTME: Handles env var expansion, duration parsing, defaults and validation

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/recgate/internal/service"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Policies.
const (
	PolicyListener = "listener"
	PolicyBalancer = "balancer"
)

// Config is the complete gateway configuration.
type Config struct {
	Policy   string               `yaml:"policy" toml:"policy" json:"policy"`
	Server   ServerConfig         `yaml:"server" toml:"server" json:"server"`
	Control  ControlConfig        `yaml:"control" toml:"control" json:"control"`
	Account  AccountConfig        `yaml:"account" toml:"account" json:"account"`
	Backends []service.RemoteInfo `yaml:"backends" toml:"backends" json:"backends"`
	Status   StatusConfig         `yaml:"status" toml:"status" json:"status"`
	Logging  LoggingConfig        `yaml:"logging" toml:"logging" json:"logging"`
	Metrics  MetricsConfig        `yaml:"metrics" toml:"metrics" json:"metrics"`

	path      string
	templates *Config
}

// ServerConfig configures the client-facing listener.
type ServerConfig struct {
	Host               string `yaml:"host" toml:"host" json:"host"`
	Port               int    `yaml:"port" toml:"port" json:"port"`
	RandomPortFallback bool   `yaml:"random_port_fallback" toml:"random_port_fallback" json:"random_port_fallback"`
	HTTPAddr           string `yaml:"http_addr" toml:"http_addr" json:"http_addr"`
	WebRoot            string `yaml:"web_root" toml:"web_root" json:"web_root"`

	ReadTimeout    time.Duration `yaml:"-" toml:"-" json:"-"`
	AcceptTimeout  time.Duration `yaml:"-" toml:"-" json:"-"`
	TaskPeriod     time.Duration `yaml:"-" toml:"-" json:"-"`
	BackendTimeout time.Duration `yaml:"-" toml:"-" json:"-"`

	ReadTimeoutRaw    string `yaml:"read_timeout" toml:"read_timeout" json:"read_timeout"`
	AcceptTimeoutRaw  string `yaml:"accept_timeout" toml:"accept_timeout" json:"accept_timeout"`
	TaskPeriodRaw     string `yaml:"task_period" toml:"task_period" json:"task_period"`
	BackendTimeoutRaw string `yaml:"backend_timeout" toml:"backend_timeout" json:"backend_timeout"`
}

// ControlConfig configures the control surface.
type ControlConfig struct {
	Port      int    `yaml:"port" toml:"port" json:"port"`
	Name      string `yaml:"name" toml:"name" json:"name"`
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret" json:"jwt_secret,omitempty"`
}

// AccountConfig is the local fallback account.
type AccountConfig struct {
	Name       string `yaml:"name" toml:"name" json:"name"`
	Password   string `yaml:"password" toml:"password" json:"password,omitempty"`
	Privileges int    `yaml:"privileges" toml:"privileges" json:"privileges"`
	CacheSize  int    `yaml:"cache_size" toml:"cache_size" json:"cache_size"`

	CacheTTL    time.Duration `yaml:"-" toml:"-" json:"-"`
	CacheTTLRaw string        `yaml:"cache_ttl" toml:"cache_ttl" json:"cache_ttl"`
}

// StatusConfig configures Redis status publication.
type StatusConfig struct {
	RedisAddr     string `yaml:"redis_addr" toml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" toml:"redis_password" json:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db" toml:"redis_db" json:"redis_db"`
	RedisChannel  string `yaml:"redis_channel" toml:"redis_channel" json:"redis_channel"`
}

// LoggingConfig selects the log level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Path    string `yaml:"path" toml:"path" json:"path"`
}

// Default returns a configuration that runs a balancer on the standard ports
// against one local backend.
func Default() *Config {
	cfg := &Config{
		Policy: PolicyBalancer,
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               10151,
			RandomPortFallback: true,
			WebRoot:            "./web",
			ReadTimeoutRaw:     "30s",
			AcceptTimeoutRaw:   "1s",
			TaskPeriodRaw:      "1m",
			BackendTimeoutRaw:  "10s",
		},
		Control: ControlConfig{Port: 10152, Name: "recgate.Control"},
		Account: AccountConfig{
			Name:        "admin",
			Password:    "admin",
			Privileges:  7,
			CacheSize:   1024,
			CacheTTLRaw: "5m",
		},
		Backends: []service.RemoteInfo{
			{Host: "127.0.0.1", Port: 10150, Account: "admin", Password: "admin"},
		},
		Status:  StatusConfig{RedisChannel: "recgate:status"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	_ = parseDurations(cfg)
	return cfg
}

// Load reads the configuration at path on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := decode(path, expandEnvVars(string(data)), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	templates := Default()
	if err := decode(path, string(data), templates); err == nil {
		cfg.templates = templates
	}

	if err := cfg.Prepare(); err != nil {
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

// Prepare parses duration strings and validates. Call it after changing raw
// fields, for example on a configuration received over the control surface.
func (c *Config) Prepare() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// Save writes c to path in the format its extension selects. Fields loaded
// from ${VAR} references are written back as references.
func (c *Config) Save(path string) error {
	out := c.Clone()
	out.restoreTemplates(c.templates)

	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(out); err != nil {
			return fmt.Errorf("encoding toml: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		enc.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// Path returns the file c was loaded from, or "".
func (c *Config) Path() string { return c.path }

// SetPath sets where Save-on-exit writes c.
func (c *Config) SetPath(path string) { c.path = path }

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Backends = append([]service.RemoteInfo(nil), c.Backends...)
	return &out
}

// IsListener reports whether the single-backend policy is selected.
func (c *Config) IsListener() bool {
	return strings.EqualFold(c.Policy, PolicyListener)
}

// ListenAddr returns host:port of the client listener.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PrimaryBackend returns the backend a Listener binds to.
func (c *Config) PrimaryBackend() (service.RemoteInfo, bool) {
	if len(c.Backends) == 0 {
		return service.RemoteInfo{}, false
	}
	return c.Backends[0], true
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	policy := strings.ToLower(c.Policy)
	if policy != PolicyListener && policy != PolicyBalancer {
		return fmt.Errorf("%w: policy must be %q or %q, got %q", ErrInvalid, PolicyListener, PolicyBalancer, c.Policy)
	}
	if !validPort(c.Server.Port, true) {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	for name, d := range map[string]time.Duration{
		"server.read_timeout":    c.Server.ReadTimeout,
		"server.accept_timeout":  c.Server.AcceptTimeout,
		"server.task_period":     c.Server.TaskPeriod,
		"server.backend_timeout": c.Server.BackendTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, name)
		}
	}
	if !validPort(c.Control.Port, true) {
		return fmt.Errorf("%w: control.port %d out of range", ErrInvalid, c.Control.Port)
	}
	if c.Control.Name == "" {
		return fmt.Errorf("%w: control.name is required", ErrInvalid)
	}
	if c.Account.Privileges < 0 || c.Account.Privileges > 7 {
		return fmt.Errorf("%w: account.privileges must be a bitmask between 0 and 7", ErrInvalid)
	}
	if c.Account.CacheTTL < 0 {
		return fmt.Errorf("%w: account.cache_ttl must not be negative", ErrInvalid)
	}
	if c.IsListener() && len(c.Backends) == 0 {
		return fmt.Errorf("%w: listener policy needs a backend", ErrInvalid)
	}
	for i, b := range c.Backends {
		if b.Host == "" || !validPort(b.Port, false) {
			return fmt.Errorf("%w: backends[%d] needs a host and a port", ErrInvalid, i)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", ErrInvalid, c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalid, c.Logging.Format)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("%w: metrics.path must start with /", ErrInvalid)
	}
	return nil
}

func validPort(p int, allowZero bool) bool {
	if p == 0 {
		return allowZero
	}
	return p > 0 && p <= 65535
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func decode(path, data string, cfg *Config) error {
	if isTOML(path) {
		_, err := toml.Decode(data, cfg)
		return err
	}
	return yaml.Unmarshal([]byte(data), cfg)
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envRef.FindStringSubmatch(match)[1])
	})
}

// restoreTemplates puts ${VAR} references back into string fields whose
// current value equals the reference's expansion.
func (c *Config) restoreTemplates(t *Config) {
	if t == nil {
		return
	}
	restore := func(dst *string, tmpl string) {
		if envRef.MatchString(tmpl) && *dst == expandEnvVars(tmpl) {
			*dst = tmpl
		}
	}
	restore(&c.Control.JWTSecret, t.Control.JWTSecret)
	restore(&c.Account.Password, t.Account.Password)
	restore(&c.Status.RedisAddr, t.Status.RedisAddr)
	restore(&c.Status.RedisPassword, t.Status.RedisPassword)
	for i := range c.Backends {
		if i < len(t.Backends) {
			restore(&c.Backends[i].Password, t.Backends[i].Password)
		}
	}
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_timeout", cfg.Server.ReadTimeoutRaw, &cfg.Server.ReadTimeout},
		{"server.accept_timeout", cfg.Server.AcceptTimeoutRaw, &cfg.Server.AcceptTimeout},
		{"server.task_period", cfg.Server.TaskPeriodRaw, &cfg.Server.TaskPeriod},
		{"server.backend_timeout", cfg.Server.BackendTimeoutRaw, &cfg.Server.BackendTimeout},
		{"account.cache_ttl", cfg.Account.CacheTTLRaw, &cfg.Account.CacheTTL},
	}
	for _, f := range fields {
		if f.raw == "" {
			*f.dst = 0
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
