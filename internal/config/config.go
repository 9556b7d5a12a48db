package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server ServerConfig
	App    AppConfig
	Store  StoreConfig
	Cache  CacheConfig
	Auth   AuthConfig
	Events EventsConfig
	Order  OrderConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"rigshop-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// StoreConfig selects and configures the single-table backend.
type StoreConfig struct {
	Type  string `envconfig:"STORE_TYPE" default:"sqlite"` // memory, sqlite, postgres, mysql, mongodb, dynamodb
	Table string `envconfig:"STORE_TABLE" default:"ecommerce_main"`

	// SQLite settings
	Path string `envconfig:"STORE_SQLITE_PATH" default:"./data/rigshop.db"`

	// PostgreSQL / MySQL settings
	Host     string `envconfig:"STORE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_DB_PORT" default:"0"`
	Name     string `envconfig:"STORE_DB_NAME" default:"rigshop"`
	User     string `envconfig:"STORE_DB_USER" default:"rigshop"`
	Password string `envconfig:"STORE_DB_PASS" default:""`
	SSLMode  string `envconfig:"STORE_DB_SSLMODE" default:"disable"`

	// MongoDB settings
	MongoURI      string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"rigshop"`

	// DynamoDB settings
	AWSRegion        string `envconfig:"AWS_REGION" default:"us-east-1"`
	DynamoDBEndpoint string `envconfig:"DYNAMODB_ENDPOINT" default:""` // DynamoDB Local endpoint
}

// CacheConfig holds catalog cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// AuthConfig controls how the authenticated principal is resolved.
type AuthConfig struct {
	TrustGateway bool          `envconfig:"AUTH_TRUST_GATEWAY" default:"false"`
	SessionTTL   time.Duration `envconfig:"AUTH_SESSION_TTL" default:"24h"`
}

// EventsConfig holds Kafka publisher settings. Empty brokers disables Kafka.
type EventsConfig struct {
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:""`
	Topic        string `envconfig:"KAFKA_ORDER_TOPIC" default:"rigshop.orders"`
	BufferSize   int    `envconfig:"KAFKA_BUFFER_SIZE" default:"1024"`
}

// OrderConfig holds reservation business rules.
type OrderConfig struct {
	MaxQuantity     int           `envconfig:"ORDER_MAX_QUANTITY" default:"10"`
	RestockInterval time.Duration `envconfig:"ORDER_RESTOCK_RETRY_INTERVAL" default:"1m"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, port, s.Name, s.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (s *StoreConfig) MySQLDSN() string {
	port := s.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		s.User, s.Password, s.Host, port, s.Name)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Brokers splits the comma separated broker list.
func (e *EventsConfig) Brokers() []string {
	parts := strings.Split(e.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Order.MaxQuantity < 1 {
		return nil, fmt.Errorf("ORDER_MAX_QUANTITY must be positive, got %d", cfg.Order.MaxQuantity)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
