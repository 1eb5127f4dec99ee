package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RefreshPolicy controls what happens to older refresh tokens when a new one is issued.
type RefreshPolicy string

const (
	// RefreshPolicySingle keeps one active refresh token per user; issuing a new one revokes the rest.
	RefreshPolicySingle RefreshPolicy = "single"
	// RefreshPolicyMultiple lets refresh tokens coexist until they expire or the user logs out.
	RefreshPolicyMultiple RefreshPolicy = "multiple"
)

const defaultJWTSecret = "dev-only-secret-change-me"

// Config is built once at startup and passed to whatever needs it.
type Config struct {
	Port        string
	Environment string
	DatabaseURL string

	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	RefreshPolicy   RefreshPolicy

	AllowedOrigins     []string
	RateLimitPerMinute int

	MaxFileSize      int64
	AllowedFileTypes []string
	UploadDir        string

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	CDNBaseURL        string

	SeedDefaults bool
}

// Load reads configuration from environment variables with sensible defaults.
// godotenv.Load is expected to have run before this.
func Load() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "5200"),
		Environment: getEnv("ENVIRONMENT", "development"),
		DatabaseURL: getEnv("DATABASE_URL", "sqlite:we_planet.db"),

		JWTSecret: getEnv("JWT_SECRET", defaultJWTSecret),
		JWTIssuer: getEnv("JWT_ISSUER", "we-planet-api"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")),
		AllowedFileTypes: splitList(getEnv("ALLOWED_FILE_TYPES",
			"image/jpeg,image/png,image/gif,image/webp")),
		UploadDir: getEnv("UPLOAD_DIR", "uploads"),

		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		CDNBaseURL:        strings.TrimRight(os.Getenv("CDN_BASE_URL"), "/"),
	}

	accessMinutes, err := getInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)
	if err != nil {
		return Config{}, err
	}
	refreshMinutes, err := getInt("REFRESH_TOKEN_EXPIRE_MINUTES", 60*24*7)
	if err != nil {
		return Config{}, err
	}
	cfg.AccessTokenTTL = time.Duration(accessMinutes) * time.Minute
	cfg.RefreshTokenTTL = time.Duration(refreshMinutes) * time.Minute

	if cfg.RateLimitPerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return Config{}, err
	}
	maxSize, err := getInt("MAX_FILE_SIZE", 10*1024*1024)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxFileSize = int64(maxSize)

	if cfg.SeedDefaults, err = getBool("SEED_DEFAULTS", true); err != nil {
		return Config{}, err
	}

	switch policy := RefreshPolicy(strings.ToLower(getEnv("REFRESH_TOKEN_POLICY", string(RefreshPolicySingle)))); policy {
	case RefreshPolicySingle, RefreshPolicyMultiple:
		cfg.RefreshPolicy = policy
	default:
		return Config{}, fmt.Errorf("REFRESH_TOKEN_POLICY must be %q or %q, got %q",
			RefreshPolicySingle, RefreshPolicyMultiple, policy)
	}

	if cfg.IsProduction() && cfg.JWTSecret == defaultJWTSecret {
		return Config{}, fmt.Errorf("JWT_SECRET must be set in production")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// UseS3 reports whether images go to an S3-compatible bucket instead of local disk.
func (c Config) UseS3() bool {
	return c.S3Bucket != ""
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
