package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Payment gateway configuration
	Gateway GatewayConfig

	// Kafka configuration
	Kafka KafkaConfig

	// Email configuration
	Email EmailConfig

	// Admin authentication
	Admin AdminConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Ticketing behaviour
	Tickets TicketConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string

	// Connection pool sizing; a sale-open burst saturates the pool long
	// before the CPU, so these are tunable per deployment.
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	// TTL values for different operations
	StockCacheTTL   time.Duration
	WebhookDedupTTL time.Duration
}

// GatewayConfig holds crypto payment gateway configuration
type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	IPNSecret     string
	CallbackURL   string
	PayCurrency   string
	PriceCurrency string
	Timeout       time.Duration
}

// KafkaConfig holds Kafka configuration for the notification pipeline
type KafkaConfig struct {
	Brokers           []string
	NotificationTopic string
	DeadLetterTopic   string
	ConsumerGroup     string
}

// EmailConfig holds SMTP and dispatch configuration
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string

	// Cooldown between manually triggered re-sends of the ticket email
	ResendCooldown time.Duration
}

// AdminConfig holds admin authentication configuration
type AdminConfig struct {
	Email        string
	PasswordHash string
	JWTSecret    string
	JWTExpiresIn time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled          bool          `json:"enabled"`
	WindowDuration   time.Duration `json:"window_duration"`
	DefaultRequests  int           `json:"default_requests"`
	PublicRequests   int           `json:"public_requests"`
	PurchaseRequests int           `json:"purchase_requests"`
	WebhookRequests  int           `json:"webhook_requests"`
	AdminRequests    int           `json:"admin_requests"`
	WhitelistedIPs   []string      `json:"whitelisted_ips"`
}

// TicketConfig holds reservation and fulfillment configuration
type TicketConfig struct {
	// How long a reservation holds stock before the expiry sweep releases it
	ReservationTTL time.Duration
	// How often the expiry sweep runs
	SweepInterval time.Duration
	// Secret used to sign ticket QR payloads
	TicketSecret string
	// Unit price per ticket type, keyed by the type slug
	Prices map[string]float64
	// Upper bound on quantity per order
	MaxQuantityPerOrder int
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "summitpass_db"),
			User:     getEnv("DB_USER", "summitpass_user"),
			Password: getEnv("DB_PASSWORD", "summitpass_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
		},

		// Redis configuration
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),

			StockCacheTTL:   getDurationEnv("REDIS_STOCK_CACHE_TTL", 5*time.Second),
			WebhookDedupTTL: getDurationEnv("REDIS_WEBHOOK_DEDUP_TTL", 2*time.Minute),
		},

		// Payment gateway configuration
		Gateway: GatewayConfig{
			BaseURL:       getEnv("NOWPAYMENTS_BASE_URL", "https://api.nowpayments.io/v1"),
			APIKey:        getEnv("NOWPAYMENTS_API_KEY", ""),
			IPNSecret:     getEnv("NOWPAYMENTS_IPN_SECRET", ""),
			CallbackURL:   getEnv("NOWPAYMENTS_CALLBACK_URL", ""),
			PayCurrency:   getEnv("NOWPAYMENTS_PAY_CURRENCY", "btc"),
			PriceCurrency: getEnv("NOWPAYMENTS_PRICE_CURRENCY", "usd"),
			Timeout:       getDurationEnv("NOWPAYMENTS_TIMEOUT", 10*time.Second),
		},

		// Kafka configuration
		Kafka: KafkaConfig{
			Brokers:           getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "ticket-notifications"),
			DeadLetterTopic:   getEnv("KAFKA_DEAD_LETTER_TOPIC", "ticket-notifications-dlq"),
			ConsumerGroup:     getEnv("KAFKA_CONSUMER_GROUP", "summitpass-notifications"),
		},

		// Email configuration
		Email: EmailConfig{
			SMTPHost:       getEnv("SMTP_HOST", ""),
			SMTPPort:       getIntEnv("SMTP_PORT", 587),
			SMTPUsername:   getEnv("SMTP_USERNAME", ""),
			SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
			FromEmail:      getEnv("FROM_EMAIL", "tickets@summitpass.io"),
			FromName:       getEnv("FROM_NAME", "SummitPass"),
			ResendCooldown: getDurationEnv("EMAIL_RESEND_COOLDOWN", 1*time.Hour),
		},

		// Admin authentication
		Admin: AdminConfig{
			Email:        getEnv("ADMIN_EMAIL", ""),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			JWTSecret:    getEnv("JWT_SECRET", "change-me-in-production"),
			JWTExpiresIn: getDurationEnv("JWT_EXPIRES_IN", 1*time.Hour),
		},

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled:          getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:   getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:  getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			PublicRequests:   getIntEnv("RATE_LIMIT_PUBLIC_REQUESTS", 120),
			PurchaseRequests: getIntEnv("RATE_LIMIT_PURCHASE_REQUESTS", 10),
			WebhookRequests:  getIntEnv("RATE_LIMIT_WEBHOOK_REQUESTS", 120),
			AdminRequests:    getIntEnv("RATE_LIMIT_ADMIN_REQUESTS", 200),
			WhitelistedIPs:   getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		// Ticketing behaviour
		Tickets: TicketConfig{
			ReservationTTL: getDurationEnv("RESERVATION_TTL", 20*time.Minute),
			SweepInterval:  getDurationEnv("RESERVATION_SWEEP_INTERVAL", 2*time.Minute),
			TicketSecret:   getEnv("TICKET_SECRET", "change-me-in-production"),
			Prices: map[string]float64{
				"2-day": getFloatEnv("TICKET_PRICE_2DAY", 99.0),
				"3-day": getFloatEnv("TICKET_PRICE_3DAY", 149.0),
				"vip":   getFloatEnv("TICKET_PRICE_VIP", 299.0),
			},
			MaxQuantityPerOrder: getIntEnv("MAX_QUANTITY_PER_ORDER", 10),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
