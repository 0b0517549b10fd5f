// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, the record store, the messaging channel, conversation timings,
// scheduling, rate limiting and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-consent-bot/internal/scheduler"
)

// Channel providers.
const (
	ProviderCloud  = "cloud"
	ProviderTwilio = "twilio"
	ProviderLog    = "log"
)

// Record store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// defaultPolicyDocuments are the data-policy links sent after the consent prompt.
const defaultPolicyDocuments = "https://luismolinatest.com/archivos/1tZYPCZgQ6KTqKS-YUBu_yw50uT5KhcGr," +
	"https://luismolinatest.com/archivos/1BOFQmRfLeCW2BkQn2U1QG5m4WTrke2m4"

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the record store.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	DSN    string // DB_DSN; for sqlite falls back to DB_PATH
}

// WhatsAppConfig holds the Cloud API credentials and webhook verify token.
type WhatsAppConfig struct {
	APIBase       string        // WHATSAPP_API_BASE
	APIVersion    string        // WHATSAPP_API_VERSION
	PhoneNumberID string        // WHATSAPP_PHONE_NUMBER_ID
	Token         string        // WHATSAPP_TOKEN
	VerifyToken   string        // WHATSAPP_VERIFY_TOKEN
	SendTimeout   time.Duration // WHATSAPP_SEND_TIMEOUT
}

// TwilioConfig holds the Twilio WhatsApp credentials.
type TwilioConfig struct {
	AccountSID string // TWILIO_ACCOUNT_SID
	AuthToken  string // TWILIO_AUTH_TOKEN
	From       string // TWILIO_WHATSAPP_FROM, e.g. "whatsapp:+14155238886"
}

// ChannelConfig selects the outbound provider.
type ChannelConfig struct {
	Provider string // CHANNEL_PROVIDER: cloud|twilio|log
	WhatsApp WhatsAppConfig
	Twilio   TwilioConfig
}

// FlowConfig holds conversation timings and content.
type FlowConfig struct {
	PolicyDocuments []string      // POLICY_DOCUMENT_URLS
	WarnAfter       time.Duration // INACTIVITY_WARN_AFTER
	Grace           time.Duration // INACTIVITY_GRACE
	EventTTL        time.Duration // EVENT_TTL
}

// SchedulerConfig holds cron specs for background jobs.
type SchedulerConfig struct {
	SweepEnabled       bool   // SWEEP_ENABLED
	SweepSchedule      string // SWEEP_SCHEDULE
	EventPurgeSchedule string // EVENT_PURGE_SCHEDULE
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for operational API routes

	// App
	DB        DBConfig
	Channel   ChannelConfig
	Flow      FlowConfig
	Scheduler SchedulerConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DB: DBConfig{
			Driver: strings.ToLower(strings.TrimSpace(getenv("DB_DRIVER", DriverSQLite))),
			DSN:    getenv("DB_DSN", ""),
		},
		Channel: ChannelConfig{
			Provider: strings.ToLower(strings.TrimSpace(getenv("CHANNEL_PROVIDER", ProviderLog))),
			WhatsApp: WhatsAppConfig{
				APIBase:       getenv("WHATSAPP_API_BASE", "https://graph.facebook.com"),
				APIVersion:    getenv("WHATSAPP_API_VERSION", "v21.0"),
				PhoneNumberID: getenv("WHATSAPP_PHONE_NUMBER_ID", ""),
				Token:         getenv("WHATSAPP_TOKEN", ""),
				VerifyToken:   getenv("WHATSAPP_VERIFY_TOKEN", ""),
				SendTimeout:   getdur("WHATSAPP_SEND_TIMEOUT", 10*time.Second),
			},
			Twilio: TwilioConfig{
				AccountSID: getenv("TWILIO_ACCOUNT_SID", ""),
				AuthToken:  getenv("TWILIO_AUTH_TOKEN", ""),
				From:       getenv("TWILIO_WHATSAPP_FROM", ""),
			},
		},
		Flow: FlowConfig{
			PolicyDocuments: splitCSV(getenv("POLICY_DOCUMENT_URLS", defaultPolicyDocuments)),
			WarnAfter:       getdur("INACTIVITY_WARN_AFTER", 10*time.Minute),
			Grace:           getdur("INACTIVITY_GRACE", 3*time.Minute),
			EventTTL:        getdur("EVENT_TTL", 24*time.Hour),
		},
		Scheduler: SchedulerConfig{
			SweepEnabled:       getbool("SWEEP_ENABLED", true),
			SweepSchedule:      strings.TrimSpace(getenv("SWEEP_SCHEDULE", "@every 1m")),
			EventPurgeSchedule: strings.TrimSpace(getenv("EVENT_PURGE_SCHEDULE", "@hourly")),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-consent-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = DriverPostgres
	}
	if cfg.DB.DSN == "" && cfg.DB.Driver == DriverSQLite {
		cfg.DB.DSN = getenv("DB_PATH", "consent.db")
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if err := cfg.validateApp(); err != nil {
		return cfg, err
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

func (cfg Config) validateApp() error {
	switch cfg.DB.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if strings.TrimSpace(cfg.DB.DSN) == "" {
		return errors.New("DB_DSN must not be empty")
	}

	ch := cfg.Channel
	switch ch.Provider {
	case ProviderLog:
	case ProviderCloud:
		if strings.TrimSpace(ch.WhatsApp.PhoneNumberID) == "" || strings.TrimSpace(ch.WhatsApp.Token) == "" {
			return errors.New("WHATSAPP_PHONE_NUMBER_ID and WHATSAPP_TOKEN are required for CHANNEL_PROVIDER=cloud")
		}
		if ch.WhatsApp.SendTimeout <= 0 {
			return errors.New("WHATSAPP_SEND_TIMEOUT must be > 0")
		}
	case ProviderTwilio:
		if strings.TrimSpace(ch.Twilio.AccountSID) == "" || strings.TrimSpace(ch.Twilio.AuthToken) == "" || strings.TrimSpace(ch.Twilio.From) == "" {
			return errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_WHATSAPP_FROM are required for CHANNEL_PROVIDER=twilio")
		}
	default:
		return errors.New("CHANNEL_PROVIDER must be one of: cloud, twilio, log")
	}

	if cfg.Flow.WarnAfter <= 0 || cfg.Flow.Grace <= 0 {
		return errors.New("INACTIVITY_WARN_AFTER and INACTIVITY_GRACE must be > 0")
	}
	if cfg.Flow.EventTTL <= 0 {
		return errors.New("EVENT_TTL must be > 0")
	}
	if cfg.Scheduler.SweepEnabled {
		if err := scheduler.ValidSpec(cfg.Scheduler.SweepSchedule); err != nil {
			return fmt.Errorf("SWEEP_SCHEDULE: %w", err)
		}
	}
	if err := scheduler.ValidSpec(cfg.Scheduler.EventPurgeSchedule); err != nil {
		return fmt.Errorf("EVENT_PURGE_SCHEDULE: %w", err)
	}
	return nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
