package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Terracast server
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	ObjectStore ObjectStoreConfig
	Terrain     TerrainConfig
	DEM         DEMConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	Environment    string
	AllowedOrigins []string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ObjectStoreConfig holds S3 object store configuration.
// Endpoint is empty for real AWS; set it (plus ForcePathStyle and static
// keys) for a local MinIO-style store.
type ObjectStoreConfig struct {
	Bucket         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
	AccessKey      string
	SecretKey      string
}

// TerrainConfig holds the world mapping and fabrication configuration
type TerrainConfig struct {
	OriginLat          float64
	OriginLon          float64
	ChunkSizeMeters    float64
	MetersPerDegreeLat float64
	DBWriteLimit       int
	TileCacheSize      int
	WorldVersions      []string
	VersionRefresh     time.Duration
}

// DEMConfig holds elevation tile ingestion configuration
type DEMConfig struct {
	DatasetBaseURL string
	FetchTimeout   time.Duration
	PollInterval   time.Duration
}

// AuthConfig holds admin authentication configuration
type AuthConfig struct {
	AdminSecret     string
	TokenExpiration time.Duration
}

// RateLimitConfig holds per-IP rate limit configuration for public endpoints
type RateLimitConfig struct {
	RequestsPerMinute int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables and .env file
// It returns a Config struct with all settings populated
// The .env file is loaded from the current working directory
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found (this is OK if using environment variables): %v", err)
	}

	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost:5173",
			}),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getIntEnv("DB_PORT", 5432),
			User:            getEnv("DB_USER", "terracast"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "terracast"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxConnections:  getIntEnv("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		ObjectStore: ObjectStoreConfig{
			Bucket:         getEnv("S3_BUCKET", "terracast-world"),
			Region:         getEnv("S3_REGION", "us-east-1"),
			Endpoint:       getEnv("S3_ENDPOINT", ""),
			ForcePathStyle: getBoolEnv("S3_FORCE_PATH_STYLE", false),
			AccessKey:      getEnv("S3_ACCESS_KEY", ""),
			SecretKey:      getEnv("S3_SECRET_KEY", ""),
		},
		Terrain: TerrainConfig{
			OriginLat:          getFloatEnv("TERRAIN_ORIGIN_LAT", 46.0),
			OriginLon:          getFloatEnv("TERRAIN_ORIGIN_LON", -113.0),
			ChunkSizeMeters:    getFloatEnv("TERRAIN_CHUNK_SIZE_METERS", 100),
			MetersPerDegreeLat: getFloatEnv("TERRAIN_METERS_PER_DEGREE_LAT", 111320),
			DBWriteLimit:       getIntEnv("TERRAIN_DB_WRITE_LIMIT", 8),
			TileCacheSize:      getIntEnv("TERRAIN_TILE_CACHE_SIZE", 64),
			WorldVersions:      getListEnv("WORLD_VERSIONS", []string{"v1"}),
			VersionRefresh:     getDurationEnv("WORLD_VERSION_REFRESH_INTERVAL", 0),
		},
		DEM: DEMConfig{
			DatasetBaseURL: getEnv("DEM_DATASET_BASE_URL", "https://elevation-tiles-prod.s3.amazonaws.com/skadi"),
			FetchTimeout:   getDurationEnv("DEM_FETCH_TIMEOUT", 60*time.Second),
			PollInterval:   getDurationEnv("DEM_POLL_INTERVAL", 1*time.Second),
		},
		Auth: AuthConfig{
			AdminSecret:     getEnv("AUTH_ADMIN_SECRET", ""),
			TokenExpiration: getDurationEnv("AUTH_TOKEN_EXPIRATION", 12*time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 120),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.ObjectStore.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	if c.Terrain.ChunkSizeMeters <= 0 {
		return fmt.Errorf("TERRAIN_CHUNK_SIZE_METERS must be positive")
	}
	if c.Terrain.MetersPerDegreeLat <= 0 {
		return fmt.Errorf("TERRAIN_METERS_PER_DEGREE_LAT must be positive")
	}
	if c.Terrain.OriginLat < -90 || c.Terrain.OriginLat > 90 {
		return fmt.Errorf("TERRAIN_ORIGIN_LAT must be within [-90, 90]")
	}
	if c.Terrain.OriginLon < -180 || c.Terrain.OriginLon > 180 {
		return fmt.Errorf("TERRAIN_ORIGIN_LON must be within [-180, 180]")
	}
	if c.Terrain.DBWriteLimit < 1 {
		return fmt.Errorf("TERRAIN_DB_WRITE_LIMIT must be at least 1")
	}
	if len(c.Terrain.WorldVersions) == 0 {
		return fmt.Errorf("WORLD_VERSIONS must list at least one version")
	}
	if c.DEM.PollInterval <= 0 {
		return fmt.Errorf("DEM_POLL_INTERVAL must be positive")
	}
	if c.Auth.AdminSecret == "" {
		return fmt.Errorf("AUTH_ADMIN_SECRET is required")
	}
	return nil
}

// DatabaseURL returns a PostgreSQL connection string
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

// IsDevelopment returns true if running in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions for environment variable access

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return intValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: invalid float value for %s: %s, using default: %g", key, value, defaultValue)
		return defaultValue
	}
	return floatValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid boolean value for %s: %s, using default: %t", key, value, defaultValue)
		return defaultValue
	}
	return boolValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration value for %s: %s, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return duration
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	if len(list) == 0 {
		return defaultValue
	}
	return list
}
