// Package config resolves server configuration from defaults, an optional
// .qbd-mcp.yaml file, the environment, CLI flags and --env overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys understood by Load, each bound to the environment variable in envNames.
const (
	KeySecretKey       = "secret-key"
	KeyAPIKey          = "api-key"
	KeyEndUserID       = "end-user-id"
	KeyAPIBaseURL      = "api-base-url"
	KeyLogLevel        = "log-level"
	KeyLogFormat       = "log-format"
	KeyLogFile         = "log-file"
	KeyCacheTTLMinutes = "cache-ttl-minutes"
	KeyCacheMaxSize    = "cache-max-size"
	KeyDisabledTools   = "disabled-tools"
	KeyRequestTimeout  = "request-timeout"
	KeyRateLimit       = "rate-limit"
	KeyMaxRetries      = "max-retries"
	KeyMaxPages        = "max-pages"
	KeyMetricsAddr     = "metrics-addr"
)

const (
	DefaultAPIBaseURL      = "https://api.conductor.is/v1"
	DefaultCacheTTLMinutes = 1440
	DefaultCacheMaxSize    = 1000
	DefaultRequestTimeout  = 30 * time.Second
)

var envNames = map[string]string{
	KeySecretKey:       "CONDUCTOR_SECRET_KEY",
	KeyAPIKey:          "CONDUCTOR_API_KEY",
	KeyEndUserID:       "CONDUCTOR_END_USER_ID",
	KeyAPIBaseURL:      "CONDUCTOR_API_BASE_URL",
	KeyLogLevel:        "LOG_LEVEL",
	KeyLogFormat:       "LOG_FORMAT",
	KeyLogFile:         "QBD_MCP_LOG",
	KeyCacheTTLMinutes: "CACHE_TTL_MINUTES",
	KeyCacheMaxSize:    "CACHE_MAX_SIZE",
	KeyDisabledTools:   "DISABLED_TOOLS",
	KeyRequestTimeout:  "CONDUCTOR_REQUEST_TIMEOUT",
	KeyRateLimit:       "CONDUCTOR_RATE_LIMIT",
	KeyMaxRetries:      "CONDUCTOR_MAX_RETRIES",
	KeyMaxPages:        "CONDUCTOR_MAX_PAGES",
	KeyMetricsAddr:     "METRICS_ADDR",
}

// Config is the validated server configuration.
type Config struct {
	SecretKey      string
	PublishableKey string
	EndUserID      string
	APIBaseURL     string

	LogLevel  string
	LogFormat string
	LogFile   string

	CacheTTL     time.Duration
	CacheMaxSize int

	DisabledTools  []string
	RequestTimeout time.Duration
	RateLimit      float64
	MaxRetries     int
	MaxPages       int
	MetricsAddr    string
}

// Setup registers defaults, environment bindings and config file lookup on v.
func Setup(v *viper.Viper) error {
	v.SetDefault(KeyAPIBaseURL, DefaultAPIBaseURL)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyCacheTTLMinutes, DefaultCacheTTLMinutes)
	v.SetDefault(KeyCacheMaxSize, DefaultCacheMaxSize)
	v.SetDefault(KeyRequestTimeout, DefaultRequestTimeout)
	v.SetDefault(KeyRateLimit, 0)
	v.SetDefault(KeyMaxRetries, 0)
	v.SetDefault(KeyMaxPages, 0)

	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}

	v.SetConfigName(".qbd-mcp")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	return nil
}

// ReadFile merges the config file into v when one exists.
func ReadFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// ApplyEnvArgs applies KEY=VALUE overrides given on the command line. KEY is
// one of the environment variable names above; overrides win over every
// other source.
func ApplyEnvArgs(v *viper.Viper, args []string) error {
	byEnv := make(map[string]string, len(envNames))
	for key, env := range envNames {
		byEnv[env] = key
	}
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid --env value %q, expected KEY=VALUE", arg)
		}
		key, known := byEnv[name]
		if !known {
			return fmt.Errorf("unknown --env variable %q", name)
		}
		v.Set(key, value)
	}
	return nil
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		SecretKey:      strings.TrimSpace(v.GetString(KeySecretKey)),
		PublishableKey: strings.TrimSpace(v.GetString(KeyAPIKey)),
		EndUserID:      strings.TrimSpace(v.GetString(KeyEndUserID)),
		APIBaseURL:     strings.TrimRight(v.GetString(KeyAPIBaseURL), "/"),
		LogLevel:       strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:      strings.ToLower(v.GetString(KeyLogFormat)),
		LogFile:        v.GetString(KeyLogFile),
		CacheTTL:       time.Duration(v.GetInt(KeyCacheTTLMinutes)) * time.Minute,
		CacheMaxSize:   v.GetInt(KeyCacheMaxSize),
		DisabledTools:  splitList(v.GetString(KeyDisabledTools)),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		RateLimit:      v.GetFloat64(KeyRateLimit),
		MaxRetries:     v.GetInt(KeyMaxRetries),
		MaxPages:       v.GetInt(KeyMaxPages),
		MetricsAddr:    v.GetString(KeyMetricsAddr),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var missing []string
	if c.SecretKey == "" {
		missing = append(missing, envNames[KeySecretKey])
	}
	if c.PublishableKey == "" {
		missing = append(missing, envNames[KeyAPIKey])
	}
	if c.EndUserID == "" {
		missing = append(missing, envNames[KeyEndUserID])
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	var errs []error
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", envNames[KeyAPIBaseURL], c.APIBaseURL))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", envNames[KeyCacheTTLMinutes]))
	}
	if c.CacheMaxSize <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", envNames[KeyCacheMaxSize]))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%s must be one of debug, info, warn, error", envNames[KeyLogLevel]))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", envNames[KeyRequestTimeout]))
	}
	if c.RateLimit < 0 || c.MaxRetries < 0 || c.MaxPages < 0 {
		errs = append(errs, errors.New("rate limit, retries and page cap must not be negative"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
