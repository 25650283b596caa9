// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// PublicBaseURL is the externally reachable origin used in magic links and QR payloads.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
	// CORSAllowedOrigins lists extra browser origins (comma-separated) allowed to call the API with cookies.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// DatabaseURL is the Postgres DSN holding employees, organizations and QR sessions.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr enables the Redis-backed challenge, QR and provider-session stores. Empty means in-memory.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// QRStore selects the primary QR session backing: "redis" or "postgres".
	QRStore string `mapstructure:"QR_STORE"`

	// DefaultCountryCode is prepended to 10-digit phone numbers during normalization.
	DefaultCountryCode string `mapstructure:"DEFAULT_COUNTRY_CODE"`
	// OTPTTL is the one-time code lifetime (e.g. "5m").
	OTPTTL string `mapstructure:"OTP_TTL"`
	// OTPMaxAttempts caps verify attempts per issued code.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// QRTTL is the cross-device QR session lifetime (e.g. "5m").
	QRTTL string `mapstructure:"QR_TTL"`
	// MagicLinkTTL is the magic link lifetime (e.g. "60m").
	MagicLinkTTL string `mapstructure:"MAGIC_LINK_TTL"`
	// SendRateInterval is how often one send token is refilled per (channel, address).
	SendRateInterval string `mapstructure:"SEND_RATE_INTERVAL"`
	// SendRateBurst is the number of sends allowed back to back per (channel, address).
	SendRateBurst int `mapstructure:"SEND_RATE_BURST"`
	// IPRatePerMinute limits requests per client IP on the auth routes.
	IPRatePerMinute int `mapstructure:"IP_RATE_PER_MINUTE"`

	// SessionCookieName is the cookie carrying the server-side session token.
	SessionCookieName string `mapstructure:"SESSION_COOKIE_NAME"`
	// SessionLifetime is the absolute lifetime of a persisted AuthSession (e.g. "12h").
	SessionLifetime string `mapstructure:"SESSION_LIFETIME"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; signs magic links.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; verifies magic links.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SMS transports, tried in order: Twilio, then SMS Local.
	TwilioAccountSID   string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken    string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioSMSFrom      string `mapstructure:"TWILIO_SMS_FROM"`
	TwilioWhatsAppFrom string `mapstructure:"TWILIO_WHATSAPP_FROM"`
	TwilioBaseURL      string `mapstructure:"TWILIO_BASE_URL"`
	SMSLocalAPIKey     string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalSender     string `mapstructure:"SMS_LOCAL_SENDER"`
	SMSLocalBaseURL    string `mapstructure:"SMS_LOCAL_BASE_URL"`
	// WhatsApp transports, tried in order: Cloud API, Twilio, generic webhook.
	WhatsAppCloudToken         string `mapstructure:"WHATSAPP_CLOUD_TOKEN"`
	WhatsAppCloudPhoneNumberID string `mapstructure:"WHATSAPP_CLOUD_PHONE_NUMBER_ID"`
	WhatsAppCloudBaseURL       string `mapstructure:"WHATSAPP_CLOUD_BASE_URL"`
	WhatsAppWebhookURL         string `mapstructure:"WHATSAPP_WEBHOOK_URL"`
	WhatsAppWebhookSecret      string `mapstructure:"WHATSAPP_WEBHOOK_SECRET"`
	// Email transport (JSON mail API). When unset outside production, emails are written to the log.
	EmailAPIURL string `mapstructure:"EMAIL_API_URL"`
	EmailAPIKey string `mapstructure:"EMAIL_API_KEY"`
	EmailFrom   string `mapstructure:"EMAIL_FROM"`
	// FirebaseCredentialsFile enables FCM sign-in alerts in the worker.
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	// AsynqConcurrency is the worker concurrency for background jobs.
	AsynqConcurrency int `mapstructure:"ASYNQ_CONCURRENCY"`

	// OTPReturnToClient when true enables dev OTP mode: no SMS/WhatsApp transport, codes readable at GET /dev/otp.
	// Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// Telemetry (optional). When Kafka brokers are set, auth events are also written to Kafka.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuthEventsTopic string `mapstructure:"AUTH_EVENTS_KAFKA_TOPIC"`
	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("QR_STORE", "redis")
	v.SetDefault("DEFAULT_COUNTRY_CODE", "1")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("QR_TTL", "5m")
	v.SetDefault("MAGIC_LINK_TTL", "60m")
	v.SetDefault("SEND_RATE_INTERVAL", "30s")
	v.SetDefault("SEND_RATE_BURST", 3)
	v.SetDefault("IP_RATE_PER_MINUTE", 120)
	v.SetDefault("SESSION_COOKIE_NAME", "workforce_session")
	v.SetDefault("SESSION_LIFETIME", "12h")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "workforce-auth")
	v.SetDefault("JWT_AUDIENCE", "workforce-magic-link")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_SMS_FROM", "")
	v.SetDefault("TWILIO_WHATSAPP_FROM", "")
	v.SetDefault("TWILIO_BASE_URL", "https://api.twilio.com")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("WHATSAPP_CLOUD_TOKEN", "")
	v.SetDefault("WHATSAPP_CLOUD_PHONE_NUMBER_ID", "")
	v.SetDefault("WHATSAPP_CLOUD_BASE_URL", "https://graph.facebook.com/v19.0")
	v.SetDefault("WHATSAPP_WEBHOOK_URL", "")
	v.SetDefault("WHATSAPP_WEBHOOK_SECRET", "")
	v.SetDefault("EMAIL_API_URL", "")
	v.SetDefault("EMAIL_API_KEY", "")
	v.SetDefault("EMAIL_FROM", "no-reply@workforce.local")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTH_EVENTS_KAFKA_TOPIC", "workforce-auth-events")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "workforce-auth")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.IsProduction() {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.OTPMaxAttempts < 1 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}
	switch cfg.QRStore {
	case "redis", "postgres":
	default:
		return nil, errors.New("config: QR_STORE must be redis or postgres")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Env, "production")
}

// OTPLifetime parses OTPTTL. Returns 5m if unset or invalid.
func (c *Config) OTPLifetime() time.Duration {
	return parseDuration(c.OTPTTL, 5*time.Minute)
}

// QRLifetime parses QRTTL. Returns 5m if unset or invalid.
func (c *Config) QRLifetime() time.Duration {
	return parseDuration(c.QRTTL, 5*time.Minute)
}

// MagicLinkLifetime parses MagicLinkTTL. Returns 60m if unset or invalid.
func (c *Config) MagicLinkLifetime() time.Duration {
	return parseDuration(c.MagicLinkTTL, 60*time.Minute)
}

// SendInterval parses SendRateInterval. Returns 30s if unset or invalid.
func (c *Config) SendInterval() time.Duration {
	return parseDuration(c.SendRateInterval, 30*time.Second)
}

// SessionTTL parses SessionLifetime. Returns 12h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.SessionLifetime, 12*time.Hour)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka event sink is enabled (non-empty list).
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AllowedOrigins returns the origin of PublicBaseURL followed by CORSAllowedOrigins.
func (c *Config) AllowedOrigins() []string {
	var out []string
	if u, err := url.Parse(c.PublicBaseURL); err == nil && u.Scheme != "" && u.Host != "" {
		out = append(out, u.Scheme+"://"+u.Host)
	}
	for _, p := range strings.Split(c.CORSAllowedOrigins, ",") {
		if s := strings.TrimRight(strings.TrimSpace(p), "/"); s != "" {
			out = append(out, s)
		}
	}
	return out
}
