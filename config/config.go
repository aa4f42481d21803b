package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Features FeatureConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	Port           string
	GinMode        string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL          string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxIdleConns int
	MaxOpenConns int
}

// DSN returns DB_URL when set, otherwise a key/value DSN built from the parts
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type JWTConfig struct {
	Secret           string
	AccessTTLMinutes int
	RefreshTTLHours  int
}

func (j JWTConfig) AccessTTL() time.Duration {
	return time.Duration(j.AccessTTLMinutes) * time.Minute
}

func (j JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(j.RefreshTTLHours) * time.Hour
}

type StorageConfig struct {
	Driver        string // cloudinary, minio or memory
	MaxUploadSize int64

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIOPublicURL string
}

type RedisConfig struct {
	URL string
}

type FeatureConfig struct {
	// VerifyAlwaysMarksProfileComplete keeps profile_complete set on de-verification
	VerifyAlwaysMarksProfileComplete bool
}

type JobsConfig struct {
	CleanupIntervalMinutes int
}

var AppConfig *Config

func Load() {
	ginMode := getEnv("GIN_MODE", "debug")
	// nothing serves memory uploads, so release builds default to Cloudinary
	storageDriver := "memory"
	if ginMode == "release" {
		storageDriver = "cloudinary"
	}

	AppConfig = &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			GinMode:        ginMode,
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DB_URL", ""),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "password"),
			Name:         getEnv("DB_NAME", "service_marketplace"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		},
		JWT: JWTConfig{
			Secret:           getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-this-in-production"),
			AccessTTLMinutes: getEnvAsInt("JWT_ACCESS_TTL_MINUTES", 60),
			RefreshTTLHours:  getEnvAsInt("JWT_REFRESH_TTL_HOURS", 24*30),
		},
		Storage: StorageConfig{
			Driver:              getEnv("STORAGE_DRIVER", storageDriver),
			MaxUploadSize:       int64(getEnvAsInt("MAX_UPLOAD_SIZE_MB", 5)) << 20,
			CloudinaryCloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
			CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
			CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
			CloudinaryFolder:    getEnv("CLOUDINARY_FOLDER", "marketplace"),
			MinIOEndpoint:       getEnv("MINIO_ENDPOINT", "localhost:9000"),
			MinIOAccessKey:      getEnv("MINIO_ACCESS_KEY", ""),
			MinIOSecretKey:      getEnv("MINIO_SECRET_KEY", ""),
			MinIOBucket:         getEnv("MINIO_BUCKET", "marketplace"),
			MinIOUseSSL:         getEnvAsBool("MINIO_USE_SSL", false),
			MinIOPublicURL:      getEnv("MINIO_PUBLIC_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Features: FeatureConfig{
			VerifyAlwaysMarksProfileComplete: getEnvAsBool("VERIFY_ALWAYS_MARKS_PROFILE_COMPLETE", true),
		},
		Jobs: JobsConfig{
			CleanupIntervalMinutes: getEnvAsInt("CLEANUP_INTERVAL_MINUTES", 60),
		},
	}
}

// Validate rejects settings that cannot work in the configured mode
func (c *Config) Validate() error {
	if c.Server.GinMode == "release" && strings.EqualFold(c.Storage.Driver, "memory") {
		return fmt.Errorf("STORAGE_DRIVER=memory is not allowed when GIN_MODE=release")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
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
