package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	ListenAddr          string
	DBPath              string
	FlatStorePath       string
	ContentPath         string
	PublicURL           string
	DefaultProfileImage string
	AdminSecret         string
	AdminSecretHash     string
	SessionKey          string
	SessionTTL          time.Duration
	MirrorBackend       string
	S3Bucket            string
	S3Endpoint          string
	S3Region            string
	S3AccessKey         string
	S3SecretKey         string
	SyncInterval        time.Duration
	LogLevel            string
	LogFormat           string
	LogFile             string
}

func Load() (*Config, error) {
	sessionTTL, err := getDuration("SESSION_TTL", 12*time.Hour)
	if err != nil {
		return nil, err
	}
	syncInterval, err := getDuration("SYNC_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	return &Config{
		ListenAddr:          getEnv("LISTEN_ADDR", ":8080"),
		DBPath:              getEnv("DB_PATH", "/data/folio.db"),
		FlatStorePath:       getEnv("FLAT_STORE_PATH", "/data/flat"),
		ContentPath:         getEnv("CONTENT_PATH", ""),
		PublicURL:           getEnv("PUBLIC_URL", "http://localhost:8080"),
		DefaultProfileImage: getEnv("DEFAULT_PROFILE_IMAGE", "/static/profile-default.svg"),
		AdminSecret:         getEnv("ADMIN_SECRET", ""),
		AdminSecretHash:     getEnv("ADMIN_SECRET_HASH", ""),
		SessionKey:          getEnv("SESSION_KEY", ""),
		SessionTTL:          sessionTTL,
		MirrorBackend:       getEnv("MIRROR_BACKEND", "none"),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3Region:            getEnv("S3_REGION", "auto"),
		S3AccessKey:         getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:         getEnv("S3_SECRET_KEY", ""),
		SyncInterval:        syncInterval,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		LogFile:             getEnv("LOG_FILE", ""),
	}, nil
}

// AdminEnabled reports whether an admin secret has been configured.
func (c *Config) AdminEnabled() bool {
	return c.AdminSecret != "" || c.AdminSecretHash != ""
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, val)
	}
	return d, nil
}
