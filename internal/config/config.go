package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBTimeZone string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecret              string
	JWTAccessTokenDuration time.Duration

	// Artifact storage
	StorageBackend  string // "local" | "s3"
	LocalAssetsPath string

	// S3 (only used when StorageBackend == "s3")
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool
	S3Bucket          string

	// Upload limits
	UploadMaxImageSize   int64 // bytes
	MinImageDimension    int   // px, reject below on either axis
	VeryLargeDimension   int   // px, warn above
	MaxPhotosPerUser     int
	UploadMaxConcurrent  int // bounded parallel decodes
	UploadRateLimitDaily int // per-owner uploads per day (0 disables)

	// Transform tiers
	FullMaxDimension int // long edge bound for the full tier
	FullMaxPixels    int // pixel-count bound for the full tier
	FullMinDimension int // floor re-applied after downscale
	MediumSize       int     // medium tier fits within MediumSize x MediumSize
	ThumbnailSize    int
	BlurSigma        float64 // gaussian sigma for the blurred privacy rendition
	JPEGQuality      int
	WebPQuality      int

	// Moderation
	AutoApproveScore int // score >= threshold skips manual review

	// Security
	RateLimitRequests int
	RateLimitDuration time.Duration

	// CORS
	AllowedOrigins []string
}

func New() *Config {
	return &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "galleria"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "galleria_db"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),
		DBTimeZone: getEnv("DB_TIMEZONE", "UTC"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// JWT
		JWTSecret:              getEnv("JWT_SECRET", "your-secret-key"),
		JWTAccessTokenDuration: getEnvAsDuration("JWT_ACCESS_TOKEN_DURATION", "1h"),

		// Artifact storage
		StorageBackend:  getEnv("STORAGE_BACKEND", "local"),
		LocalAssetsPath: getEnv("LOCAL_ASSETS_PATH", "./data/photos"),

		// S3
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "eu-central-1"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3UsePathStyle:    getEnvAsBool("S3_USE_PATH_STYLE", true),
		S3Bucket:          getEnv("S3_BUCKET", "galleria-photos"),

		// Upload limits
		UploadMaxImageSize:   getEnvAsInt64("UPLOAD_MAX_IMAGE_SIZE", 10*1024*1024),
		MinImageDimension:    getEnvAsInt("MIN_IMAGE_DIMENSION", 100),
		VeryLargeDimension:   getEnvAsInt("VERY_LARGE_DIMENSION", 4000),
		MaxPhotosPerUser:     getEnvAsInt("MAX_PHOTOS_PER_USER", 6),
		UploadMaxConcurrent:  getEnvAsInt("UPLOAD_MAX_CONCURRENT", 3),
		UploadRateLimitDaily: getEnvAsInt("UPLOAD_RATE_LIMIT_DAILY", 30),

		// Transform tiers
		FullMaxDimension: getEnvAsInt("FULL_MAX_DIMENSION", 800),
		FullMaxPixels:    getEnvAsInt("FULL_MAX_PIXELS", 1_000_000),
		FullMinDimension: getEnvAsInt("FULL_MIN_DIMENSION", 200),
		MediumSize:       getEnvAsInt("MEDIUM_SIZE", 400),
		ThumbnailSize:    getEnvAsInt("THUMBNAIL_SIZE", 150),
		BlurSigma:        getEnvAsFloat64("BLUR_SIGMA", 12),
		JPEGQuality:      getEnvAsInt("JPEG_QUALITY", 90),
		WebPQuality:      getEnvAsInt("WEBP_QUALITY", 90),

		// Moderation
		AutoApproveScore: getEnvAsInt("AUTO_APPROVE_SCORE", 70),

		// Security
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitDuration: getEnvAsDuration("RATE_LIMIT_DURATION", "1m"),

		// CORS
		AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
