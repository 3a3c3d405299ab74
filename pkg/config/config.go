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

// Photo storage drivers.
const (
	PhotoDriverLocal = "local"
	PhotoDriverS3    = "s3"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Archive   ArchiveConfig
	Photos    PhotoStorageConfig
	RateLimit RateLimitConfig
	Client    ClientConfig
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
	Enabled  bool
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

// ArchiveConfig drives the monthly retention lifecycle.
type ArchiveConfig struct {
	ReminderThresholdDays int
	CleanupWindowDays     int
	CleanupSchedule       string
	AutoCleanupEnabled    bool
	ClearAllPhrase        string
	Timezone              string
	SummaryCacheTTL       time.Duration
}

// Location resolves the configured timezone, falling back to UTC.
func (c ArchiveConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PhotoStorageConfig selects where attendance photos live.
type PhotoStorageConfig struct {
	Driver      string
	LocalDir    string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string
}

// RateLimitConfig throttles destructive archive routes per user.
type RateLimitConfig struct {
	DestructivePerMinute int
	Burst                int
}

// ClientConfig is read by archivectl when talking to the API.
type ClientConfig struct {
	BaseURL     string
	Token       string
	DownloadDir string
	Timeout     time.Duration
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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
		Enabled:  v.GetBool("ENABLE_REDIS"),
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

	cfg.Archive = ArchiveConfig{
		ReminderThresholdDays: v.GetInt("ARCHIVE_REMINDER_DAYS"),
		CleanupWindowDays:     v.GetInt("ARCHIVE_CLEANUP_WINDOW_DAYS"),
		CleanupSchedule:       v.GetString("ARCHIVE_CLEANUP_SCHEDULE"),
		AutoCleanupEnabled:    v.GetBool("ENABLE_AUTO_CLEANUP"),
		ClearAllPhrase:        v.GetString("ARCHIVE_CLEAR_ALL_PHRASE"),
		Timezone:              v.GetString("ARCHIVE_TIMEZONE"),
		SummaryCacheTTL:       parseDuration(v.GetString("ARCHIVE_SUMMARY_CACHE_TTL"), 30*time.Second),
	}

	cfg.Photos = PhotoStorageConfig{
		Driver:      strings.ToLower(v.GetString("PHOTO_STORAGE_DRIVER")),
		LocalDir:    v.GetString("PHOTO_STORAGE_DIR"),
		S3Bucket:    v.GetString("PHOTO_S3_BUCKET"),
		S3Region:    v.GetString("PHOTO_S3_REGION"),
		S3Endpoint:  v.GetString("PHOTO_S3_ENDPOINT"),
		S3AccessKey: v.GetString("PHOTO_S3_ACCESS_KEY"),
		S3SecretKey: v.GetString("PHOTO_S3_SECRET_KEY"),
		S3Prefix:    v.GetString("PHOTO_S3_PREFIX"),
	}

	cfg.RateLimit = RateLimitConfig{
		DestructivePerMinute: v.GetInt("RATE_LIMIT_DESTRUCTIVE_PER_MINUTE"),
		Burst:                v.GetInt("RATE_LIMIT_DESTRUCTIVE_BURST"),
	}

	cfg.Client = ClientConfig{
		BaseURL:     v.GetString("ARCHIVE_API_URL"),
		Token:       v.GetString("ARCHIVE_API_TOKEN"),
		DownloadDir: v.GetString("ARCHIVE_DOWNLOAD_DIR"),
		Timeout:     parseDuration(v.GetString("ARCHIVE_CLIENT_TIMEOUT"), 2*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 5000)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "attendance_archive")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "attendance-archive-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ARCHIVE_REMINDER_DAYS", 7)
	v.SetDefault("ARCHIVE_CLEANUP_WINDOW_DAYS", 3)
	v.SetDefault("ARCHIVE_CLEANUP_SCHEDULE", "0 * * * *")
	v.SetDefault("ENABLE_AUTO_CLEANUP", true)
	v.SetDefault("ARCHIVE_CLEAR_ALL_PHRASE", "DELETE ALL DATA")
	v.SetDefault("ARCHIVE_TIMEZONE", "UTC")
	v.SetDefault("ARCHIVE_SUMMARY_CACHE_TTL", "30s")

	v.SetDefault("PHOTO_STORAGE_DRIVER", PhotoDriverLocal)
	v.SetDefault("PHOTO_STORAGE_DIR", "./uploads/attendance")
	v.SetDefault("PHOTO_S3_BUCKET", "")
	v.SetDefault("PHOTO_S3_REGION", "us-east-1")
	v.SetDefault("PHOTO_S3_ENDPOINT", "")
	v.SetDefault("PHOTO_S3_ACCESS_KEY", "")
	v.SetDefault("PHOTO_S3_SECRET_KEY", "")
	v.SetDefault("PHOTO_S3_PREFIX", "attendance")

	v.SetDefault("RATE_LIMIT_DESTRUCTIVE_PER_MINUTE", 6)
	v.SetDefault("RATE_LIMIT_DESTRUCTIVE_BURST", 2)

	v.SetDefault("ARCHIVE_API_URL", "http://localhost:5000/api/v1")
	v.SetDefault("ARCHIVE_API_TOKEN", "")
	v.SetDefault("ARCHIVE_DOWNLOAD_DIR", ".")
	v.SetDefault("ARCHIVE_CLIENT_TIMEOUT", "2m")
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file")
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
