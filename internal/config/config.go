package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/ncecere/insights_dashboard/internal/apperr"
)

// Config captures the runtime configuration for the dashboard service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Auth          AuthConfig          `mapstructure:"auth"`
	APIKeys       APIKeyConfig        `mapstructure:"api_keys"`
	Analytics     AnalyticsConfig     `mapstructure:"analytics"`
	Integrations  IntegrationsConfig  `mapstructure:"integrations"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Bootstrap     BootstrapConfig     `mapstructure:"bootstrap"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	Session SessionConfig   `mapstructure:"session"`
	Local   LocalAuthConfig `mapstructure:"local"`
	OIDC    OIDCConfig      `mapstructure:"oidc"`
}

type SessionConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TTL          time.Duration `mapstructure:"ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	Issuer       string        `mapstructure:"issuer"`
}

type LocalAuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type OIDCConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Issuer         string        `mapstructure:"issuer"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	RedirectURL    string        `mapstructure:"redirect_url"`
	Scopes         []string      `mapstructure:"scopes"`
	AllowedDomains []string      `mapstructure:"allowed_domains"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
}

type APIKeyConfig struct {
	// Store selects the key table backend: "postgres" or "memory".
	Store      string        `mapstructure:"store"`
	Prefix     string        `mapstructure:"prefix"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

type AnalyticsConfig struct {
	Warehouse       WarehouseConfig       `mapstructure:"warehouse"`
	DefaultTopN     int                   `mapstructure:"default_top_n"`
	MaxTopN         int                   `mapstructure:"max_top_n"`
	MaxRangeDays    int                   `mapstructure:"max_range_days"`
	BreakdownField  string                `mapstructure:"breakdown_field"`
	InternalTraffic InternalTrafficConfig `mapstructure:"internal_traffic"`
	RateLimit       RateLimitConfig       `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles analytics queries per caller. Zero disables a limit.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	ParallelQueries   int `mapstructure:"parallel_queries"`
}

type WarehouseConfig struct {
	Host             string        `mapstructure:"host"`
	ProjectID        string        `mapstructure:"project_id"`
	APIKey           string        `mapstructure:"api_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures"`
	BreakerOpenDelay time.Duration `mapstructure:"breaker_open_delay"`
}

type InternalTrafficConfig struct {
	ExcludeLocalhost  bool     `mapstructure:"exclude_localhost"`
	InternalIPs       []string `mapstructure:"internal_ips"`
	PathPatterns      []string `mapstructure:"path_patterns"`
	ExcludeDevelopers bool     `mapstructure:"exclude_developers"`
	DeveloperFlag     string   `mapstructure:"developer_flag"`
}

type IntegrationsConfig struct {
	EncryptionKey string             `mapstructure:"encryption_key"`
	StateTTL      time.Duration      `mapstructure:"state_ttl"`
	IssueTracker  IssueTrackerConfig `mapstructure:"issue_tracker"`
	HRPlatform    HRPlatformConfig   `mapstructure:"hr_platform"`
}

type IssueTrackerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	APIURL       string        `mapstructure:"api_url"`
	AuthURL      string        `mapstructure:"auth_url"`
	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RedirectURL  string        `mapstructure:"redirect_url"`
	Scopes       []string      `mapstructure:"scopes"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type HRPlatformConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

type BootstrapConfig struct {
	Organizations []BootstrapOrganization `mapstructure:"organizations"`
	Users         []BootstrapUser         `mapstructure:"users"`
}

type BootstrapOrganization struct {
	Name string `mapstructure:"name"`
}

type BootstrapUser struct {
	Email        string `mapstructure:"email"`
	Name         string `mapstructure:"name"`
	Password     string `mapstructure:"password"`
	Organization string `mapstructure:"organization"`
	Role         string `mapstructure:"role"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else if cfg := os.Getenv("DASHBOARD_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
	} else {
		v.SetConfigName("dashboard")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("DASHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		timeStringToDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures required values are set and normalizes optional ones.
func (c *Config) Validate() error {
	var missing []string

	c.APIKeys.Store = strings.ToLower(strings.TrimSpace(c.APIKeys.Store))
	if c.APIKeys.Store == "" {
		c.APIKeys.Store = "postgres"
	}
	if c.Database.URL == "" {
		missing = append(missing, "DASHBOARD_DATABASE_URL")
	}
	if c.Redis.URL == "" {
		missing = append(missing, "DASHBOARD_REDIS_URL")
	}
	if c.Auth.Session.JWTSecret == "" {
		missing = append(missing, "DASHBOARD_AUTH_SESSION_JWT_SECRET")
	}
	if c.Analytics.Warehouse.Host == "" {
		missing = append(missing, "DASHBOARD_ANALYTICS_WAREHOUSE_HOST")
	}
	if c.Analytics.Warehouse.ProjectID == "" {
		missing = append(missing, "DASHBOARD_ANALYTICS_WAREHOUSE_PROJECT_ID")
	}
	if len(missing) > 0 {
		return apperr.Configuration(fmt.Sprintf("missing required configuration: %s", strings.Join(missing, ", ")))
	}

	switch c.APIKeys.Store {
	case "postgres", "memory":
	default:
		return apperr.Configuration("api_keys.store must be postgres or memory")
	}
	if strings.TrimSpace(c.APIKeys.Prefix) == "" {
		return apperr.Configuration("api_keys.prefix must be provided")
	}
	if c.APIKeys.DefaultTTL < 0 {
		return apperr.Configuration("api_keys.default_ttl must be >= 0")
	}

	if c.Auth.Session.TTL <= 0 {
		return apperr.Configuration("auth.session.ttl must be > 0")
	}
	if c.Auth.Session.CookieName == "" {
		return apperr.Configuration("auth.session.cookie_name must be provided")
	}
	if !c.Auth.Local.Enabled && !c.Auth.OIDC.Enabled {
		return apperr.Configuration("at least one login method must be enabled (local or oidc)")
	}
	if err := c.Auth.OIDC.validate(); err != nil {
		return err
	}

	if c.Database.MaxConns < 0 {
		return apperr.Configuration("database.max_conns must be >= 0")
	}
	if c.Redis.PoolSize < 0 {
		return apperr.Configuration("redis.pool_size must be >= 0")
	}

	if err := c.Analytics.validate(); err != nil {
		return err
	}
	if err := c.Integrations.validate(); err != nil {
		return err
	}
	return nil
}

func (o *OIDCConfig) validate() error {
	if !o.Enabled {
		return nil
	}
	if o.Issuer == "" {
		return apperr.Configuration("auth.oidc.issuer must be provided when OIDC is enabled")
	}
	if o.ClientID == "" {
		return apperr.Configuration("auth.oidc.client_id must be provided when OIDC is enabled")
	}
	if o.ClientSecret == "" {
		return apperr.Configuration("auth.oidc.client_secret must be provided when OIDC is enabled")
	}
	if o.RedirectURL == "" {
		return apperr.Configuration("auth.oidc.redirect_url must be provided when OIDC is enabled")
	}
	if o.HTTPTimeout <= 0 {
		return apperr.Configuration("auth.oidc.http_timeout must be > 0")
	}
	return nil
}

func (a *AnalyticsConfig) validate() error {
	if a.DefaultTopN <= 0 {
		a.DefaultTopN = 10
	}
	if a.MaxTopN <= 0 {
		a.MaxTopN = 50
	}
	if a.DefaultTopN > a.MaxTopN {
		return apperr.Configuration("analytics.default_top_n cannot exceed analytics.max_top_n")
	}
	if a.MaxRangeDays <= 0 {
		a.MaxRangeDays = 730
	}
	if strings.TrimSpace(a.BreakdownField) == "" {
		a.BreakdownField = "properties.organization_id"
	}
	if a.Warehouse.Timeout <= 0 {
		a.Warehouse.Timeout = 30 * time.Second
	}
	if a.Warehouse.BreakerFailures == 0 {
		a.Warehouse.BreakerFailures = 5
	}
	if a.Warehouse.BreakerOpenDelay <= 0 {
		a.Warehouse.BreakerOpenDelay = 30 * time.Second
	}
	if a.RateLimit.RequestsPerMinute < 0 || a.RateLimit.ParallelQueries < 0 {
		return apperr.Configuration("analytics.rate_limit values cannot be negative")
	}
	a.InternalTraffic.InternalIPs = normalizeStringSlice(a.InternalTraffic.InternalIPs)
	a.InternalTraffic.PathPatterns = normalizeStringSlice(a.InternalTraffic.PathPatterns)
	return nil
}

func (i *IntegrationsConfig) validate() error {
	if i.StateTTL <= 0 {
		i.StateTTL = 10 * time.Minute
	}
	if i.IssueTracker.Enabled {
		it := i.IssueTracker
		if it.APIURL == "" || it.AuthURL == "" || it.TokenURL == "" {
			return apperr.Configuration("integrations.issue_tracker api_url, auth_url and token_url must be provided when enabled")
		}
		if it.ClientID == "" || it.RedirectURL == "" {
			return apperr.Configuration("integrations.issue_tracker client_id and redirect_url must be provided when enabled")
		}
		if strings.TrimSpace(i.EncryptionKey) == "" {
			return apperr.Configuration("integrations.encryption_key must be provided when the issue tracker is enabled")
		}
	}
	if i.IssueTracker.Timeout <= 0 {
		i.IssueTracker.Timeout = 15 * time.Second
	}
	if i.HRPlatform.Enabled && (i.HRPlatform.BaseURL == "" || i.HRPlatform.APIKey == "") {
		return apperr.Configuration("integrations.hr_platform base_url and api_key must be provided when enabled")
	}
	if i.HRPlatform.Timeout <= 0 {
		i.HRPlatform.Timeout = 15 * time.Second
	}
	if key := strings.TrimSpace(i.EncryptionKey); key != "" {
		decoded, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			return apperr.Configuration("integrations.encryption_key must be base64")
		}
		switch len(decoded) {
		case 16, 24, 32:
		default:
			return apperr.Configuration("integrations.encryption_key must be 16/24/32 bytes after decoding")
		}
	}
	return nil
}

// envOnlyKeys have no sensible default but must be registered so that
// AutomaticEnv can populate them during Unmarshal.
var envOnlyKeys = []string{
	"database.url",
	"redis.url",
	"auth.session.jwt_secret",
	"auth.oidc.issuer",
	"auth.oidc.client_id",
	"auth.oidc.client_secret",
	"auth.oidc.redirect_url",
	"analytics.warehouse.host",
	"analytics.warehouse.project_id",
	"analytics.warehouse.api_key",
	"integrations.encryption_key",
	"integrations.issue_tracker.api_url",
	"integrations.issue_tracker.auth_url",
	"integrations.issue_tracker.token_url",
	"integrations.issue_tracker.client_id",
	"integrations.issue_tracker.client_secret",
	"integrations.issue_tracker.redirect_url",
	"integrations.hr_platform.base_url",
	"integrations.hr_platform.api_key",
}

func setDefaults(v *viper.Viper) {
	for _, key := range envOnlyKeys {
		v.SetDefault(key, "")
	}

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.body_limit_mb", 4)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")

	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.query_timeout", "5s")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("auth.session.ttl", "12h")
	v.SetDefault("auth.session.cookie_name", "dash_session")
	v.SetDefault("auth.session.cookie_secure", true)
	v.SetDefault("auth.session.issuer", "insights-dashboard")
	v.SetDefault("auth.local.enabled", true)
	v.SetDefault("auth.oidc.enabled", false)
	v.SetDefault("auth.oidc.scopes", []string{"openid", "email", "profile"})
	v.SetDefault("auth.oidc.http_timeout", "5s")

	v.SetDefault("api_keys.store", "postgres")
	v.SetDefault("api_keys.prefix", "sk_analytics_")
	v.SetDefault("api_keys.default_ttl", "0s")

	v.SetDefault("analytics.default_top_n", 10)
	v.SetDefault("analytics.max_top_n", 50)
	v.SetDefault("analytics.max_range_days", 730)
	v.SetDefault("analytics.breakdown_field", "properties.organization_id")
	v.SetDefault("analytics.warehouse.timeout", "30s")
	v.SetDefault("analytics.warehouse.breaker_failures", 5)
	v.SetDefault("analytics.warehouse.breaker_open_delay", "30s")
	v.SetDefault("analytics.internal_traffic.exclude_localhost", true)
	v.SetDefault("analytics.internal_traffic.exclude_developers", true)
	v.SetDefault("analytics.internal_traffic.developer_flag", "properties.is_developer")
	v.SetDefault("analytics.internal_traffic.internal_ips", []string{})
	v.SetDefault("analytics.internal_traffic.path_patterns", []string{})
	v.SetDefault("analytics.rate_limit.requests_per_minute", 120)
	v.SetDefault("analytics.rate_limit.parallel_queries", 4)

	v.SetDefault("integrations.state_ttl", "10m")
	v.SetDefault("integrations.issue_tracker.enabled", false)
	v.SetDefault("integrations.issue_tracker.scopes", []string{"read"})
	v.SetDefault("integrations.issue_tracker.timeout", "15s")
	v.SetDefault("integrations.hr_platform.enabled", false)
	v.SetDefault("integrations.hr_platform.timeout", "15s")

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")
}

func normalizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clean := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
