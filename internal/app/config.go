package app

import (
	"os"
	"slices"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds the application configuration, loadable from environment
// variables (SHOP_ prefix), flags, a .env file or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage     string `default:"postgres" usage:"Storage driver: postgres, mongo or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Mongo       MongoConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Auth        AuthConfig
	Checkout    CheckoutConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// MongoConfig selects the MongoDB deployment used by the mongo driver.
type MongoConfig struct {
	URI      string `default:"mongodb://localhost:27017/?replicaSet=rs0" usage:"MongoDB connection URI"`
	Database string `default:"storefront" usage:"MongoDB database name"`
}

// RedisConfig enables the shared checkout lock. Without an address the lock
// is local to the process.
type RedisConfig struct {
	Addr     string        `usage:"Redis address for the checkout lock (host:port)"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	LockTTL  time.Duration `default:"30s" usage:"Lease of a checkout lock" flag:"redis-lock-ttl"`
}

// KafkaConfig enables order events. Without brokers events are dropped.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"orders" usage:"Topic for order events"`
}

// AuthConfig holds credentials material.
type AuthConfig struct {
	JWTSecret    string `usage:"HS256 secret for user bearer tokens (SHOP_AUTH_JWT_SECRET)" flag:"jwt-secret"`
	APIKeyPepper string `usage:"HMAC pepper for admin API key hashing (SHOP_AUTH_API_KEY_PEPPER)" flag:"api-key-pepper"`
}

// CheckoutConfig holds pricing rules. Amounts are decimal strings.
type CheckoutConfig struct {
	FreeDeliveryThreshold string        `default:"500" usage:"Subtotal above which delivery is free" flag:"free-delivery-threshold"`
	DeliveryCharge        string        `default:"50" usage:"Delivery charge below the threshold" flag:"delivery-charge"`
	DefaultCountry        string        `default:"India" usage:"Country used when the address omits it" flag:"default-country"`
	Timeout               time.Duration `default:"10s" usage:"Upper bound for one checkout" flag:"checkout-timeout"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads .env (if present) into the environment, then loads the
// configuration from env, flags and files, and validates it.
func LoadConfig() (*Config, error) {
	cfg, err := load(false)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadToolConfig loads the configuration for command line tools. Flags are
// left to the tool, and only the storage settings are validated.
func LoadToolConfig() (*Config, error) {
	cfg, err := load(true)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(skipFlags bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		SkipFlags: skipFlags,
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	return &cfg, nil
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if err := c.ValidateStorage(); err != nil {
		return err
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required: set SHOP_AUTH_JWT_SECRET")
	}
	if _, _, err := c.Checkout.amounts(); err != nil {
		return err
	}
	return nil
}

// ValidateStorage checks the storage driver and its connection settings.
func (c *Config) ValidateStorage() error {
	if !slices.Contains([]string{DriverPostgres, DriverMongo, DriverMemory}, c.Storage) {
		return errors.Errorf("unknown storage driver %q", c.Storage)
	}
	if c.Storage == DriverPostgres && c.DatabaseURL == "" {
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if c.Storage == DriverMongo && (c.Mongo.URI == "" || c.Mongo.Database == "") {
		return errors.New("mongo URI and database are required")
	}
	return nil
}

// amounts parses the delivery threshold and charge.
func (c CheckoutConfig) amounts() (threshold, charge decimal.Decimal, err error) {
	if threshold, err = decimal.NewFromString(c.FreeDeliveryThreshold); err != nil {
		return threshold, charge, errors.Wrap(err, "parse free delivery threshold")
	}
	if charge, err = decimal.NewFromString(c.DeliveryCharge); err != nil {
		return threshold, charge, errors.Wrap(err, "parse delivery charge")
	}
	if threshold.IsNegative() || charge.IsNegative() {
		return threshold, charge, errors.New("delivery amounts must not be negative")
	}
	return threshold, charge, nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables set by
// hosting platforms onto the SHOP_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
