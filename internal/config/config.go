// Package config provides YAML configuration loading with validation and
// environment variable substitution for the development proxy.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level devproxy configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Admin   AdminConfig   `yaml:"admin" json:"admin"`
	DevAuth DevAuthConfig `yaml:"dev_auth" json:"dev_auth"`

	// Warnings holds non-fatal config issues detected during loading.
	Warnings []string `yaml:"-" json:"-"`
}

// ServerConfig holds listener settings, the default upstream and the
// ordered proxy rules.
type ServerConfig struct {
	Port              int               `yaml:"port" json:"port"`
	Host              string            `yaml:"host" json:"host"`
	ReadHeaderTimeout time.Duration     `yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   time.Duration     `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	CORS              *bool             `yaml:"cors" json:"cors"`
	Headers           map[string]string `yaml:"headers" json:"headers,omitempty"`
	TLS               TLSConfig         `yaml:"tls" json:"tls"`
	Fallback          FallbackConfig    `yaml:"fallback" json:"fallback"`
	Proxy             ProxyRules        `yaml:"proxy" json:"proxy"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// CORSEnabled reports whether permissive CORS headers are emitted (defaults to true).
func (s ServerConfig) CORSEnabled() bool {
	if s.CORS == nil {
		return true
	}
	return *s.CORS
}

// TLSConfig holds TLS termination settings for the dev server itself.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	CertFile   string `yaml:"cert_file" json:"cert_file"`
	KeyFile    string `yaml:"key_file" json:"key_file"`
	MinVersion string `yaml:"min_version" json:"min_version"` // "1.2" or "1.3"; default: "1.2"
}

// FallbackConfig selects the default upstream for requests no rule matches.
// At most one of Target and StaticDir may be set.
type FallbackConfig struct {
	Target    string `yaml:"target" json:"target,omitempty"`
	StaticDir string `yaml:"static_dir" json:"static_dir,omitempty"`
	SPA       bool   `yaml:"spa" json:"spa"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`               // debug, info, warn, error; default: info
	Format     string `yaml:"format" json:"format"`             // json or text; default: json
	Output     string `yaml:"output" json:"output"`             // "stdout", "stderr", or file path; default: "stdout"
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`   // default: 100
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`   // default: 3
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"` // default: 30
}

// MetricsConfig holds Prometheus metrics endpoint settings.
// Enabled defaults to true; set to false to disable metrics.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled" json:"enabled"`
}

// IsEnabled returns whether metrics are enabled (defaults to true).
func (m MetricsConfig) IsEnabled() bool {
	if m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// AdminConfig holds the inspection endpoint settings.
type AdminConfig struct {
	Enabled     *bool    `yaml:"enabled" json:"enabled"`
	IPAllowlist []string `yaml:"ip_allowlist" json:"ip_allowlist"` // CIDR notation
}

// IsEnabled returns whether the inspection endpoints are mounted (defaults to true).
func (a AdminConfig) IsEnabled() bool {
	if a.Enabled == nil {
		return true
	}
	return *a.Enabled
}

// DevAuthConfig holds settings for minting development bearer tokens.
type DevAuthConfig struct {
	Secret   string        `yaml:"secret" json:"secret"`
	Issuer   string        `yaml:"issuer" json:"issuer"`
	Audience string        `yaml:"audience" json:"audience"`
	Subject  string        `yaml:"subject" json:"subject"`
	Scopes   []string      `yaml:"scopes" json:"scopes"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// Configured reports whether a signing secret is present.
func (d DevAuthConfig) Configured() bool {
	return d.Secret != ""
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns in s with the corresponding
// environment variable value. Unset variables are left in place.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return match
	})
}

// Load reads and parses a YAML configuration file, applies environment
// variable substitution, sets defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromBytes parses configuration from raw YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.Warnings = collectWarnings(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5173
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.TLS.Enabled && cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = "1.2"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 30
	}

	if len(cfg.Admin.IPAllowlist) == 0 {
		cfg.Admin.IPAllowlist = []string{"127.0.0.0/8", "::1/128"}
	}

	if cfg.DevAuth.Configured() {
		if cfg.DevAuth.Subject == "" {
			cfg.DevAuth.Subject = "devproxy"
		}
		if cfg.DevAuth.TTL == 0 {
			cfg.DevAuth.TTL = time.Hour
		}
	}

	for i := range cfg.Server.Proxy {
		r := &cfg.Server.Proxy[i]
		if r.Secure == nil {
			t := true
			r.Secure = &t
		}
		if r.Match == "" {
			r.Match = MatchLiteral
			if r.IsPattern() {
				r.Match = MatchRegexp
			}
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must be non-negative")
	}

	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when TLS is enabled")
		}
		if cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when TLS is enabled")
		}
		if cfg.Server.TLS.MinVersion != "1.2" && cfg.Server.TLS.MinVersion != "1.3" {
			return fmt.Errorf("server.tls.min_version must be \"1.2\" or \"1.3\", got %q", cfg.Server.TLS.MinVersion)
		}
	}

	fb := cfg.Server.Fallback
	if fb.Target != "" && fb.StaticDir != "" {
		return fmt.Errorf("server.fallback: target and static_dir are mutually exclusive")
	}
	if fb.Target != "" {
		if err := validateTarget(fb.Target); err != nil {
			return fmt.Errorf("server.fallback.target: %w", err)
		}
	}
	if fb.SPA && fb.StaticDir == "" {
		return fmt.Errorf("server.fallback.spa requires static_dir")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.Output != "stderr" && cfg.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be positive when output is a file path")
	}

	if cfg.Admin.IsEnabled() {
		for i, cidr := range cfg.Admin.IPAllowlist {
			if _, _, err := net.ParseCIDR(cidr); err != nil {
				return fmt.Errorf("admin.ip_allowlist[%d]: invalid CIDR %q: %w", i, cidr, err)
			}
		}
	}

	if cfg.DevAuth.TTL < 0 {
		return fmt.Errorf("dev_auth.ttl must be non-negative")
	}

	seen := make(map[string]bool, len(cfg.Server.Proxy))
	for _, r := range cfg.Server.Proxy {
		if seen[r.Prefix] {
			return fmt.Errorf("duplicate proxy rule %q", r.Prefix)
		}
		seen[r.Prefix] = true

		if err := r.validate(); err != nil {
			return fmt.Errorf("server.proxy[%q]: %w", r.Prefix, err)
		}
		if r.DevAuth && !cfg.DevAuth.Configured() {
			return fmt.Errorf("server.proxy[%q]: dev_auth requires dev_auth.secret", r.Prefix)
		}
	}

	return nil
}

// validateTarget checks that raw is an absolute http(s) URL with a host.
func validateTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func collectWarnings(cfg *Config) []string {
	var warnings []string
	if len(cfg.Server.Proxy) == 0 {
		warnings = append(warnings, "server.proxy is empty; every request is passed through")
	}
	if strings.Contains(cfg.DevAuth.Secret, "${") {
		warnings = append(warnings, "dev_auth.secret contains unresolved environment variable")
	}
	for _, r := range cfg.Server.Proxy {
		if r.Secure != nil && !*r.Secure {
			warnings = append(warnings, fmt.Sprintf("server.proxy[%q]: upstream TLS verification disabled", r.Prefix))
		}
	}
	return warnings
}
