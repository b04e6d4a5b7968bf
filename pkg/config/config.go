package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CartToken    CartTokenConfig
	Checkout     CheckoutConfig
	Payments     PaymentsConfig
	PayPal       PayPalConfig
	Square       SquareConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	CORS         CORSConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies shopper access tokens minted by the external auth service.
type JWTConfig struct {
	Secret string        `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string        `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	Leeway time.Duration `envconfig:"STOREFRONT_JWT_LEEWAY" default:"30s"`
}

// CartTokenConfig signs the client-held anonymous cart.
type CartTokenConfig struct {
	Secret       string        `envconfig:"STOREFRONT_CART_TOKEN_SECRET" required:"true"`
	Issuer       string        `envconfig:"STOREFRONT_CART_TOKEN_ISSUER" default:"storefront-cart"`
	TTL          time.Duration `envconfig:"STOREFRONT_CART_TOKEN_TTL" default:"720h"`
	CookieName   string        `envconfig:"STOREFRONT_CART_COOKIE_NAME" default:"sf_cart"`
	CookieSecure bool          `envconfig:"STOREFRONT_CART_COOKIE_SECURE" default:"true"`
}

type CheckoutConfig struct {
	ReducedShippingThreshold int64  `envconfig:"STOREFRONT_SHIPPING_REDUCED_THRESHOLD" default:"500000"`
	FreeShippingThreshold    int64  `envconfig:"STOREFRONT_SHIPPING_FREE_THRESHOLD" default:"1000000"`
	StandardShippingFee      int64  `envconfig:"STOREFRONT_SHIPPING_STANDARD_FEE" default:"30000"`
	ReducedShippingFee       int64  `envconfig:"STOREFRONT_SHIPPING_REDUCED_FEE" default:"15000"`
	DecrementStock           bool   `envconfig:"STOREFRONT_CHECKOUT_DECREMENT_STOCK" default:"true"`
	FrontendURL              string `envconfig:"STOREFRONT_FRONTEND_URL" default:"http://localhost:3000"`
}

func (c CheckoutConfig) validate() error {
	if c.ReducedShippingThreshold < 0 || c.FreeShippingThreshold < 0 {
		return fmt.Errorf("shipping thresholds must not be negative")
	}
	if c.FreeShippingThreshold < c.ReducedShippingThreshold {
		return fmt.Errorf("%s must be >= %s", EnvShippingFreeThreshold, EnvShippingReducedThreshold)
	}
	if c.StandardShippingFee < 0 || c.ReducedShippingFee < 0 {
		return fmt.Errorf("shipping fees must not be negative")
	}
	return nil
}

// ConfirmationURL returns the shopper-facing order confirmation page.
func (c CheckoutConfig) ConfirmationURL(orderID string) string {
	return strings.TrimRight(c.FrontendURL, "/") + "/orders/" + url.PathEscape(orderID) + "/confirmation"
}

// CheckoutURL returns the checkout page with an optional notice query value.
func (c CheckoutConfig) CheckoutURL(notice string) string {
	base := strings.TrimRight(c.FrontendURL, "/") + "/checkout"
	if notice == "" {
		return base
	}
	return base + "?notice=" + url.QueryEscape(notice)
}

type PaymentsConfig struct {
	BaseCurrency       string `envconfig:"STOREFRONT_PAYMENTS_BASE_CURRENCY" default:"VND"`
	SettlementCurrency string `envconfig:"STOREFRONT_PAYMENTS_SETTLEMENT_CURRENCY" default:"USD"`
	ConversionRate     string `envconfig:"STOREFRONT_PAYMENTS_CONVERSION_RATE" default:"0.00004"`
	PublicBaseURL      string `envconfig:"STOREFRONT_PUBLIC_BASE_URL" default:"http://localhost:8080"`
}

// CallbackURL builds an absolute API URL for gateway return/cancel redirects.
func (p PaymentsConfig) CallbackURL(gateway, action string) string {
	return fmt.Sprintf("%s/api/v1/payments/%s/%s", strings.TrimRight(p.PublicBaseURL, "/"), gateway, action)
}

type PayPalConfig struct {
	ClientID  string `envconfig:"STOREFRONT_PAYPAL_CLIENT_ID"`
	Secret    string `envconfig:"STOREFRONT_PAYPAL_SECRET"`
	Env       string `envconfig:"STOREFRONT_PAYPAL_ENV" default:"sandbox"`
	BrandName string `envconfig:"STOREFRONT_PAYPAL_BRAND_NAME" default:"Storefront"`
	BaseURL   string `envconfig:"STOREFRONT_PAYPAL_BASE_URL"`
}

// Enabled reports whether PayPal credentials were provided.
func (p PayPalConfig) Enabled() bool {
	return strings.TrimSpace(p.ClientID) != "" && strings.TrimSpace(p.Secret) != ""
}

// Environment returns the normalized PayPal environment (sandbox/live).
func (p PayPalConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type SquareConfig struct {
	AccessToken string `envconfig:"STOREFRONT_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"STOREFRONT_SQUARE_LOCATION_ID"`
	BaseURL     string `envconfig:"STOREFRONT_SQUARE_BASE_URL"`
}

// Enabled reports whether Square credentials were provided.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.LocationID) != ""
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type RateLimitConfig struct {
	CartWindow time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_CART_WINDOW" default:"1m"`
	CartLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_CART_LIMIT" default:"120"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	Outbox      bool `envconfig:"STOREFRONT_FEATURE_OUTBOX" default:"true"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic    string        `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-orders"`
	PublishDelay   time.Duration `envconfig:"STOREFRONT_PUBSUB_PUBLISH_DELAY" default:"10ms"`
	PublishTimeout time.Duration `envconfig:"STOREFRONT_PUBSUB_PUBLISH_TIMEOUT" default:"30s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
