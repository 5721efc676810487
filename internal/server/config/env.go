package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config fields from the process environment, loading a
// .env file from the working directory first if one exists.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	setString(&config.EndpointAddrHTTP, "ADDRESS")
	setString(&config.DatabaseDSN, "DATABASE_URL")
	setString(&config.AccessSecretKey, "SECRET_WORD_JWT")
	setString(&config.RefreshSecretKey, "SECRET_WORD_REFRESH")
	setString(&config.VaultEncryptionKey, "AES_KEY")
	setString(&config.StorageBackend, "STORAGE_BACKEND")
	setString(&config.StorageRootDir, "STORAGE_ROOT_DIR")
	setString(&config.S3RootUser, "S3_ROOT_USER")
	setString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	setString(&config.S3Bucket, "S3_BUCKET")
	setString(&config.S3Region, "S3_REGION")
	setString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	setString(&config.SentryDSN, "SENTRY_DSN")
	setString(&config.Environment, "APP_ENV")

	setDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_TTL_MINUTES", time.Minute)
	setDuration(&config.RefreshTokenValidityDuration, "REFRESH_TOKEN_TTL_HOURS", time.Hour)
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name string, unit time.Duration) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return
	}
	*dst = time.Duration(n) * unit
}
