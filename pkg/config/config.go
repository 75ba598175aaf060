package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Verifier   VerifierConfig
	Admission  AdmissionConfig
	Sweep      SweepConfig
	Index      IndexConfig
	Retention  RetentionConfig
	Attributes AttributesConfig
	Exports    ExportsConfig
	Events     EventsConfig
	Policy     PolicyCacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// VerifierConfig points at the remote verification service.
type VerifierConfig struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
	// ManualPollDelay is how long the synchronous check-now path waits
	// before its single status poll.
	ManualPollDelay time.Duration
}

// AdmissionConfig holds the enqueue rules tunables.
type AdmissionConfig struct {
	MinWords          int
	AllowedExtensions []string
}

// SweepConfig drives the periodic upload and status-control sweeps.
type SweepConfig struct {
	Enabled        bool
	BatchSize      int
	UploadInterval time.Duration
	StatusInterval time.Duration
}

// IndexConfig bounds index add/remove confirmation polling.
type IndexConfig struct {
	PollInterval time.Duration
	PollBudget   time.Duration
}

// RetentionConfig controls the action log cleanup sweep.
type RetentionConfig struct {
	ActionLogMonths int
	CleanupInterval time.Duration
}

// AttributesConfig selects which document attributes accompany uploads.
type AttributesConfig struct {
	SiteName        string
	SiteDescription string
	SiteURL         string
	SendSiteName    bool
	SendSiteInfo    bool
	SendCourseName  bool
	SendModuleName  bool
	SendTopicName   bool
	SendAuthorID    bool
}

// ExportsConfig configures module summary exports.
type ExportsConfig struct {
	Enabled    bool
	StorageDir string
	Workers    int
	Retries    int
}

// EventsConfig configures the submission event intake workers.
type EventsConfig struct {
	Workers    int
	BufferSize int
	Retries    int
}

// PolicyCacheConfig tunes the per-module policy cache.
type PolicyCacheConfig struct {
	TTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Verifier = VerifierConfig{
		BaseURL:         v.GetString("VERIFIER_BASE_URL"),
		Token:           v.GetString("VERIFIER_TOKEN"),
		RequestTimeout:  parseDuration(v.GetString("VERIFIER_REQUEST_TIMEOUT"), 30*time.Second),
		ManualPollDelay: parseDuration(v.GetString("VERIFIER_MANUAL_POLL_DELAY"), 5*time.Second),
	}

	cfg.Admission = AdmissionConfig{
		MinWords:          v.GetInt("ADMISSION_MIN_WORDS"),
		AllowedExtensions: splitAndTrim(v.GetString("ADMISSION_ALLOWED_EXTENSIONS")),
	}

	cfg.Sweep = SweepConfig{
		Enabled:        v.GetBool("SWEEP_ENABLED"),
		BatchSize:      v.GetInt("SWEEP_BATCH_SIZE"),
		UploadInterval: parseDuration(v.GetString("SWEEP_UPLOAD_INTERVAL"), 5*time.Minute),
		StatusInterval: parseDuration(v.GetString("SWEEP_STATUS_INTERVAL"), 5*time.Minute),
	}

	cfg.Index = IndexConfig{
		PollInterval: parseDuration(v.GetString("INDEX_POLL_INTERVAL"), 400*time.Millisecond),
		PollBudget:   parseDuration(v.GetString("INDEX_POLL_BUDGET"), 30*time.Second),
	}

	cfg.Retention = RetentionConfig{
		ActionLogMonths: v.GetInt("ACTION_LOG_RETENTION_MONTHS"),
		CleanupInterval: parseDuration(v.GetString("ACTION_LOG_CLEANUP_INTERVAL"), 24*time.Hour),
	}

	cfg.Attributes = AttributesConfig{
		SiteName:        v.GetString("ATTR_SITE_NAME"),
		SiteDescription: v.GetString("ATTR_SITE_DESCRIPTION"),
		SiteURL:         v.GetString("ATTR_SITE_URL"),
		SendSiteName:    v.GetBool("ATTR_SEND_SITE_NAME"),
		SendSiteInfo:    v.GetBool("ATTR_SEND_SITE_INFO"),
		SendCourseName:  v.GetBool("ATTR_SEND_COURSE_NAME"),
		SendModuleName:  v.GetBool("ATTR_SEND_MODULE_NAME"),
		SendTopicName:   v.GetBool("ATTR_SEND_TOPIC_NAME"),
		SendAuthorID:    v.GetBool("ATTR_SEND_AUTHOR_ID"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:    v.GetBool("ENABLE_EXPORTS"),
		StorageDir: v.GetString("EXPORTS_STORAGE_DIR"),
		Workers:    v.GetInt("EXPORTS_WORKERS"),
		Retries:    v.GetInt("EXPORTS_RETRIES"),
	}

	cfg.Events = EventsConfig{
		Workers:    v.GetInt("EVENTS_WORKERS"),
		BufferSize: v.GetInt("EVENTS_BUFFER_SIZE"),
		Retries:    v.GetInt("EVENTS_RETRIES"),
	}

	cfg.Policy = PolicyCacheConfig{
		TTL: parseDuration(v.GetString("POLICY_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "originality_sma")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "sma-originality-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("VERIFIER_BASE_URL", "http://localhost:9090")
	v.SetDefault("VERIFIER_TOKEN", "")
	v.SetDefault("VERIFIER_REQUEST_TIMEOUT", "30s")
	v.SetDefault("VERIFIER_MANUAL_POLL_DELAY", "5s")

	v.SetDefault("ADMISSION_MIN_WORDS", 20)
	v.SetDefault("ADMISSION_ALLOWED_EXTENSIONS", "doc,docx,pdf,txt,rtf,odt,html,htm")

	v.SetDefault("SWEEP_ENABLED", true)
	v.SetDefault("SWEEP_BATCH_SIZE", 10)
	v.SetDefault("SWEEP_UPLOAD_INTERVAL", "5m")
	v.SetDefault("SWEEP_STATUS_INTERVAL", "5m")

	v.SetDefault("INDEX_POLL_INTERVAL", "400ms")
	v.SetDefault("INDEX_POLL_BUDGET", "30s")

	v.SetDefault("ACTION_LOG_RETENTION_MONTHS", 6)
	v.SetDefault("ACTION_LOG_CLEANUP_INTERVAL", "24h")

	v.SetDefault("ATTR_SEND_SITE_NAME", true)
	v.SetDefault("ATTR_SEND_SITE_INFO", false)
	v.SetDefault("ATTR_SEND_COURSE_NAME", true)
	v.SetDefault("ATTR_SEND_MODULE_NAME", true)
	v.SetDefault("ATTR_SEND_TOPIC_NAME", false)
	v.SetDefault("ATTR_SEND_AUTHOR_ID", true)

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_WORKERS", 1)
	v.SetDefault("EXPORTS_RETRIES", 3)

	v.SetDefault("EVENTS_WORKERS", 2)
	v.SetDefault("EVENTS_BUFFER_SIZE", 64)
	v.SetDefault("EVENTS_RETRIES", 3)

	v.SetDefault("POLICY_CACHE_TTL", "5m")
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
