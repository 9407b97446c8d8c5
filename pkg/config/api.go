package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	LogLevel           string
	Addr               string
	PublicURL          string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	JiraBaseURL        string
	JiraSharedSecret   string
	JiraRetryMax       int
	JiraTimeout        time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		Addr:               GetString("API_ADDR", ":4000"),
		PublicURL:          GetString("APP_URL", "http://localhost:4000"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://peep:peep@db:5432/peep?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", ""),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		JiraBaseURL:        GetString("JIRA_BASE_URL", ""),
		JiraSharedSecret:   GetString("JIRA_SHARED_SECRET", ""),
		JiraRetryMax:       GetInt("JIRA_RETRY_MAX", 3),
		JiraTimeout:        GetSeconds("JIRA_TIMEOUT_SECONDS", 15),
	}
}
