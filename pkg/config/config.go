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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Attendance    AttendanceConfig
	Notifications NotificationsConfig
	Reports       ReportsConfig
	Documents     DocumentsConfig
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
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AttendanceConfig holds the fallback tolerance window applied when a school
// has no stored settings row and a class block carries no override.
type AttendanceConfig struct {
	DefaultToleranceMin int
	EntryWindowStart    string
	EntryWindowEnd      string
	SummaryCacheTTL     time.Duration
}

// NotificationsConfig tunes the in-process dispatch queue.
type NotificationsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// ReportsConfig configures attendance report exports and signed downloads.
type ReportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// DocumentsConfig controls justification document storage.
type DocumentsConfig struct {
	StorageDir       string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
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
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Attendance = AttendanceConfig{
		DefaultToleranceMin: v.GetInt("ATTENDANCE_DEFAULT_TOLERANCE_MIN"),
		EntryWindowStart:    v.GetString("ATTENDANCE_ENTRY_WINDOW_START"),
		EntryWindowEnd:      v.GetString("ATTENDANCE_ENTRY_WINDOW_END"),
		SummaryCacheTTL:     parseDuration(v.GetString("ATTENDANCE_SUMMARY_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFICATIONS_WORKERS"),
		BufferSize: v.GetInt("NOTIFICATIONS_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFICATIONS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFICATIONS_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:      v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	maxDocSize := v.GetInt64("DOCUMENTS_MAX_FILE_SIZE")
	if maxDocSize <= 0 {
		maxDocSize = 5 * 1024 * 1024
	}
	cfg.Documents = DocumentsConfig{
		StorageDir:       v.GetString("DOCUMENTS_STORAGE_DIR"),
		MaxFileSizeBytes: maxDocSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("DOCUMENTS_ALLOWED_MIME_TYPES")),
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
	v.SetDefault("DB_NAME", "asistencia_ie")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "asistencia-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ATTENDANCE_DEFAULT_TOLERANCE_MIN", 10)
	v.SetDefault("ATTENDANCE_ENTRY_WINDOW_START", "07:00")
	v.SetDefault("ATTENDANCE_ENTRY_WINDOW_END", "08:00")
	v.SetDefault("ATTENDANCE_SUMMARY_CACHE_TTL", "5m")

	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFICATIONS_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATIONS_RETRY_DELAY", "2s")

	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")

	v.SetDefault("DOCUMENTS_STORAGE_DIR", "./documentos")
	v.SetDefault("DOCUMENTS_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("DOCUMENTS_ALLOWED_MIME_TYPES", "application/pdf,image/jpeg,image/png")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
