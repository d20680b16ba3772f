package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	Server    ServerConfig
	Site      SiteConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Identity  IdentityConfig
	Catalog   CatalogConfig
	Email     EmailConfig
	Push      PushConfig
	Staff     StaffConfig
	Reminder  ReminderConfig
	SentryDSN string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// SiteConfig describes the public storefront that buyers use.
type SiteConfig struct {
	BaseURL        string
	PaymentPath    string
	Timezone       string
	AllowedOrigins []string

	location *time.Location
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	OrderCreated      string
	OrderStateChanged string
	UserRegistered    string
}

type AuthConfig struct {
	OIDCIssuer string
	StaffRole  string
}

// IdentityConfig points at the identity provider's admin API (Keycloak compatible).
type IdentityConfig struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

type CatalogConfig struct {
	BaseURL  string
	APIToken string
	CacheTTL time.Duration
	Timeout  time.Duration
}

type EmailConfig struct {
	BaseURL    string
	APIKey     string
	FromEmail  string
	FromName   string
	TemplateID string
	MockMode   bool
	Timeout    time.Duration
}

type PushConfig struct {
	BaseURL           string
	ChannelToken      string
	CheckRelationship bool
	Timeout           time.Duration
}

type StaffConfig struct {
	PushTargets []string
	ConsoleURL  string
}

// ReminderConfig tunes the reminder dispatcher and trigger. InternalToken
// authenticates the dispatcher's own trigger calls; replicas behind a shared
// TriggerURL must be given the same value.
type ReminderConfig struct {
	TriggerURL    string
	InternalToken string
	Workers       int
	QueueSize     int
	RatePerMin    int
	RateBurst     int
	DrainPeriod   time.Duration
}

func Load() *Config {
	siteURL := strings.TrimRight(getEnv("SITE_BASE_URL", "http://localhost:3000"), "/")
	timezone := getEnv("DISPLAY_TIMEZONE", "Asia/Taipei")

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8084"),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Site: SiteConfig{
			BaseURL:        siteURL,
			PaymentPath:    getEnv("SITE_PAYMENT_PATH", "/orders/%d/payment"),
			Timezone:       timezone,
			AllowedOrigins: withSiteOrigin(getEnvList("ALLOWED_ORIGINS", []string{siteURL}), siteURL),
			location:       loadLocation(timezone),
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "enrollment-service"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				OrderCreated:      getEnv("KAFKA_TOPIC_ORDER_CREATED", "enrollment.order.created"),
				OrderStateChanged: getEnv("KAFKA_TOPIC_ORDER_STATE", "enrollment.order.state_changed"),
				UserRegistered:    getEnv("KAFKA_TOPIC_USER_REGISTERED", "identity.user.registered"),
			},
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			StaffRole:  getEnv("STAFF_ROLE", "staff"),
		},
		Identity: IdentityConfig{
			BaseURL:      strings.TrimRight(getEnv("KEYCLOAK_URL", "http://localhost:8080"), "/"),
			Realm:        getEnv("KEYCLOAK_REALM", "enrollment"),
			ClientID:     getEnv("CLIENT_ID", ""),
			ClientSecret: getEnv("CLIENT_SECRET", ""),
			Timeout:      getEnvDuration("IDENTITY_TIMEOUT", 10*time.Second),
		},
		Catalog: CatalogConfig{
			BaseURL:  strings.TrimRight(getEnv("CATALOG_BASE_URL", "http://localhost:1337/api"), "/"),
			APIToken: getEnv("CATALOG_API_TOKEN", ""),
			CacheTTL: getEnvDuration("CATALOG_CACHE_TTL", 10*time.Minute),
			Timeout:  getEnvDuration("CATALOG_TIMEOUT", 10*time.Second),
		},
		Email: EmailConfig{
			BaseURL:    strings.TrimRight(getEnv("EMAIL_API_URL", "https://api.sendgrid.com"), "/"),
			APIKey:     getEnv("EMAIL_API_KEY", ""),
			FromEmail:  getEnv("EMAIL_FROM", "no-reply@example.com"),
			FromName:   getEnv("EMAIL_FROM_NAME", "Course Enrollment"),
			TemplateID: getEnv("EMAIL_PAYMENT_TEMPLATE_ID", ""),
			MockMode:   getEnvBool("EMAIL_MOCK_MODE", false),
			Timeout:    getEnvDuration("EMAIL_TIMEOUT", 10*time.Second),
		},
		Push: PushConfig{
			BaseURL:           strings.TrimRight(getEnv("PUSH_API_URL", "https://api.line.me"), "/"),
			ChannelToken:      getEnv("PUSH_CHANNEL_TOKEN", ""),
			CheckRelationship: getEnvBool("PUSH_CHECK_RELATIONSHIP", true),
			Timeout:           getEnvDuration("PUSH_TIMEOUT", 10*time.Second),
		},
		Staff: StaffConfig{
			PushTargets: getEnvList("STAFF_PUSH_TARGETS", nil),
			ConsoleURL:  strings.TrimRight(getEnv("STAFF_CONSOLE_URL", siteURL+"/admin"), "/"),
		},
		Reminder: ReminderConfig{
			TriggerURL:    getEnv("REMINDER_TRIGGER_URL", "http://localhost:8084/reminders/payment"),
			InternalToken: getEnv("REMINDER_INTERNAL_TOKEN", uuid.NewString()),
			Workers:       getEnvInt("REMINDER_WORKERS", 4),
			QueueSize:     getEnvInt("REMINDER_QUEUE_SIZE", 256),
			RatePerMin:    getEnvInt("REMINDER_RATE_PER_MINUTE", 30),
			RateBurst:     getEnvInt("REMINDER_RATE_BURST", 10),
			DrainPeriod:   getEnvDuration("REMINDER_DRAIN_PERIOD", 5*time.Second),
		},
		SentryDSN: getEnv("SENTRY_DSN", ""),
	}
}

// PaymentLink renders the buyer-facing payment page URL for an order.
func (s SiteConfig) PaymentLink(orderID int64) string {
	path := s.PaymentPath
	if strings.Contains(path, "%d") {
		path = strings.Replace(path, "%d", strconv.FormatInt(orderID, 10), 1)
	}
	return s.BaseURL + path
}

// Location returns the zone resolved by Load. Hand-built configs resolve it
// on each call.
func (s SiteConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	return loadLocation(s.Timezone)
}

// loadLocation falls back to UTC when the zone database is unavailable.
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// withSiteOrigin appends the storefront's own origin when the list misses it.
// Reminder triggers scheduled by this service present that origin.
func withSiteOrigin(origins []string, siteURL string) []string {
	u, err := url.Parse(siteURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return origins
	}
	own := strings.ToLower(u.Scheme + "://" + u.Host)
	for _, o := range origins {
		if strings.ToLower(strings.TrimRight(o, "/")) == own {
			return origins
		}
	}
	return append(origins, own)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
