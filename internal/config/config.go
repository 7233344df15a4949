package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Token signing configuration
	Auth AuthConfig `env:",prefix=AUTH_"`

	// Code generation configuration
	Coupon CouponConfig `env:",prefix=COUPON_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`

	// Tracing configuration
	Tracing TracingConfig `env:",prefix=TRACING_"`

	// Startup seed data
	Seed SeedConfig `env:",prefix=SEED_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port               string   `env:"PORT,default=8080"`
	Host               string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout        int      `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout       int      `env:"WRITE_TIMEOUT,default=30"` // seconds
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:3000,http://localhost:8080"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Driver      string `env:"DRIVER,default=postgres"` // postgres (lib/pq) or pgx
	Host        string `env:"HOST,default=localhost"`
	Port        string `env:"PORT,default=5432"`
	User        string `env:"USER,default=postgres"`
	Password    string `env:"PASSWORD,default=postgres"`
	Name        string `env:"NAME,default=coupon_verification"`
	SSLMode     string `env:"SSL_MODE,default=disable"`
	MaxConns    int    `env:"MAX_CONNS,default=25"`
	MinConns    int    `env:"MIN_CONNS,default=5"`
	AutoMigrate bool   `env:"AUTO_MIGRATE,default=true"`
	Seed        bool   `env:"SEED,default=true"`
}

// AuthConfig holds JWT settings
type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET,default=change-me-in-production"`
	Issuer     string        `env:"ISSUER,default=coupon-verify"`
	TokenTTL   time.Duration `env:"TOKEN_TTL,default=24h"`
	BcryptCost int           `env:"BCRYPT_COST,default=10"`
}

// CouponConfig holds code generation settings
type CouponConfig struct {
	GenerateMaxAttempts int `env:"GENERATE_MAX_ATTEMPTS,default=10"` // per code
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	Debug       bool   `env:"DEBUG,default=false"`
	Timezone    string `env:"TIMEZONE,default=UTC"` // used to interpret report dates
}

// TracingConfig holds OpenTelemetry settings. Tracing is off when the endpoint is empty.
type TracingConfig struct {
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`
	ServiceName  string `env:"SERVICE_NAME,default=coupon-verify"`
}

// SeedConfig holds the records created on first start
type SeedConfig struct {
	OperatorPhone    string   `env:"OPERATOR_PHONE,default=13800138000"`
	OperatorPassword string   `env:"OPERATOR_PASSWORD,default=123456"`
	Companies        []string `env:"COMPANIES,default=阿里巴巴集团,腾讯科技,百度公司,京东集团,美团点评"`
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that envconfig cannot express
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Coupon.GenerateMaxAttempts < 1 {
		return fmt.Errorf("COUPON_GENERATE_MAX_ATTEMPTS must be at least 1")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	return nil
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Location returns the configured report time zone
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
