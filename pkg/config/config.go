package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "edge"

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	Session       SessionConfig
	Upstream      UpstreamConfig
	Pricing       PricingConfig
	Checkout      CheckoutConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EDGE_APP_ENV" required:"true"`
	Port         string `envconfig:"EDGE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EDGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EDGE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// DBConfig describes the durable cart cache. sqlite is the default so a
// single-node edge needs no extra infrastructure; postgres is for
// multi-replica deployments.
type DBConfig struct {
	Driver string `envconfig:"EDGE_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"EDGE_DB_DSN" default:"storefront-edge.db"`

	MaxOpenConns    int           `envconfig:"EDGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EDGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EDGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EDGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(db.Driver)) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db driver %q (sqlite or postgres)", db.Driver)
	}
	if strings.TrimSpace(db.DSN) == "" {
		return fmt.Errorf("EDGE_DB_DSN is required")
	}
	return nil
}

// IsPostgres reports whether the cache runs on postgres.
func (db DBConfig) IsPostgres() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), "postgres")
}

type RedisConfig struct {
	URL          string        `envconfig:"EDGE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EDGE_REDIS_ADDR"`
	Password     string        `envconfig:"EDGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"EDGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EDGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EDGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EDGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EDGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EDGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SessionConfig controls the edge session cookie and the redis-held
// upstream credentials tied to it.
type SessionConfig struct {
	Secret       string        `envconfig:"EDGE_SESSION_SECRET" required:"true"`
	Issuer       string        `envconfig:"EDGE_SESSION_ISSUER" default:"storefront-edge"`
	CookieName   string        `envconfig:"EDGE_SESSION_COOKIE_NAME" default:"token"`
	UserCookie   string        `envconfig:"EDGE_SESSION_USER_COOKIE" default:"user"`
	CookieTTL    time.Duration `envconfig:"EDGE_SESSION_COOKIE_TTL" default:"168h"`
	CookieDomain string        `envconfig:"EDGE_SESSION_COOKIE_DOMAIN"`
	CookieSecure bool          `envconfig:"EDGE_SESSION_COOKIE_SECURE" default:"true"`
}

type UpstreamConfig struct {
	BaseURL     string        `envconfig:"EDGE_UPSTREAM_BASE_URL" required:"true"`
	Timeout     time.Duration `envconfig:"EDGE_UPSTREAM_TIMEOUT" default:"10s"`
	UserAgent   string        `envconfig:"EDGE_UPSTREAM_USER_AGENT" default:"storefront-edge"`
	TokenHeader string        `envconfig:"EDGE_UPSTREAM_TOKEN_HEADER" default:"Authorization"`
}

// PricingConfig is the single canonical delivery-fee policy. Amounts are
// whole currency units.
type PricingConfig struct {
	FreeDeliveryMin int64 `envconfig:"EDGE_PRICING_FREE_DELIVERY_MIN" default:"200"`
	DeliveryFee     int64 `envconfig:"EDGE_PRICING_DELIVERY_FEE" default:"30"`
}

type CheckoutConfig struct {
	ServiceableCities []string `envconfig:"EDGE_CHECKOUT_SERVICEABLE_CITIES" default:"mumbai,pune,bangalore,hyderabad,delhi"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"EDGE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"EDGE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"EDGE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"EDGE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"EDGE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"EDGE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EDGE_AUTO_MIGRATE" default:"false"`
}
