package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the cache service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	GCP      GCPConfig
	Auth     AuthConfig
	Cache    CacheConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

// DatabaseConfig holds the operational audit trail's database connection
// configuration. No secret values are ever persisted here.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GCPConfig holds the upstream adapter's GCP project configuration.
// Credentials are loaded via Workload Identity / ADC; no explicit
// credentials are accepted.
type GCPConfig struct {
	ProjectID string
}

// AuthConfig holds the internal-service allowlist read from
// INTERNAL_SERVICE_ALLOWLIST. No route checks it; the default upstream
// region lives in CacheConfig.
type AuthConfig struct {
	AllowedServices []string
}

// CacheConfig holds the tunables for the tenant cache, refresh loop and
// pacer.
type CacheConfig struct {
	APIURL              string
	IdentityURL         string
	RefreshInterval     time.Duration
	RequestInterval     time.Duration
	SecretTTL           time.Duration
	ParseSecretValues   bool
	RefreshKeyMapOnMiss bool
}

// RegionDefaults maps a BWS_REGION/X-BWS-Region value to its well-known
// API/identity URL pair. CUSTOM and NONE resolve to empty strings: CUSTOM
// requires the API/identity URLs to be set explicitly (via config or the
// X-BWS-API-URL/X-BWS-IDENTITY-URL headers), NONE means there is no
// default and every request must carry region headers. Exported so the
// HTTP layer can resolve the same table from the per-request
// X-BWS-Region header (spec §6).
func RegionDefaults(region string) (apiURL, identityURL string) {
	switch region {
	case "EU":
		return "https://api.bitwarden.eu", "https://identity.bitwarden.eu"
	case "CUSTOM", "NONE":
		return "", ""
	default:
		return "https://api.bitwarden.com", "https://identity.bitwarden.com"
	}
}

// NewConfig creates a new Config from environment variables.
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Host:        getEnv("HOST", "0.0.0.0"),
			Environment: getEnv("ENVIRONMENT", "devtest"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "bws_cache"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		GCP: GCPConfig{
			ProjectID: getEnv("GCP_PROJECT_ID", ""),
		},
		Auth: AuthConfig{
			AllowedServices: getSliceEnv("INTERNAL_SERVICE_ALLOWLIST", []string{"admin-bff"}),
		},
		Cache: func() CacheConfig {
			defaultAPI, defaultIdentity := RegionDefaults(getEnv("BWS_REGION", "DEFAULT"))
			return CacheConfig{
				APIURL:              getEnv("BWS_API_URL", defaultAPI),
				IdentityURL:         getEnv("BWS_IDENTITY_URL", defaultIdentity),
				RefreshInterval:     getDurationEnv("REFRESH_RATE", 10*time.Second),
				RequestInterval:     getDurationEnv("REQUEST_RATE", 1*time.Second),
				SecretTTL:           getDurationEnv("SECRET_TTL", 10*time.Minute),
				ParseSecretValues:   getBoolEnv("PARSE_SECRET_VALUES", false),
				RefreshKeyMapOnMiss: getBoolEnv("REFRESH_KEYMAP_ON_MISS", false),
			}
		}(),
	}
}

// DSN returns the audit database connection string.
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" sslmode=" + c.SSLMode
}

// IsProd returns true if running in production environment.
func (c *ServerConfig) IsProd() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// Helper functions

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func getSliceEnv(key string, fallback []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
