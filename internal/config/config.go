package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/remote"
)

// Config holds runtime configuration parsed from environment variables and .env files.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	ERPBaseURL        string
	ERPAPIToken       string
	ERPRequestTimeout time.Duration

	DBConnString string

	GeminiAPIKey string
	GenAIModel   string

	CORSAllowedOrigins []string
	CatalogCacheTTL    time.Duration
	DiscoveryFile      string
	ExposeDebug        bool

	LogLevel  string
	LogFormat string
}

// EnvFiles are loaded, when present, before the environment is read. Variables already set in
// the process environment win.
var EnvFiles = []string{".env.local", ".env"}

// FromEnv builds Config with defaults, overridden by environment variables.
func FromEnv() Config {
	loadEnvFiles()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 10)
	v.SetDefault("GENAI_MODEL", "gemini-2.0-flash")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "auto")

	baseURL := v.GetString("ERP_BASE_URL")
	if baseURL == "" {
		baseURL = v.GetString("NEXT_PUBLIC_ERP_BASE_URL")
	}

	return Config{
		HTTPAddr:           v.GetString("HTTP_ADDR"),
		ShutdownTimeout:    time.Duration(v.GetInt("SHUTDOWN_TIMEOUT_SECONDS")) * time.Second,
		ERPBaseURL:         strings.TrimRight(baseURL, "/"),
		ERPAPIToken:        v.GetString("ERP_API_TOKEN"),
		ERPRequestTimeout:  envDuration(v, "ERP_REQUEST_TIMEOUT", remote.DefaultRequestTimeout),
		DBConnString:       v.GetString("DB_DSN"),
		GeminiAPIKey:       v.GetString("GEMINI_API_KEY"),
		GenAIModel:         v.GetString("GENAI_MODEL"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		CatalogCacheTTL:    envDuration(v, "CATALOG_CACHE_TTL", 60*time.Second),
		DiscoveryFile:      v.GetString("DISCOVERY_FILE"),
		ExposeDebug:        v.GetBool("EXPOSE_DEBUG"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
	}
}

// Remote returns the injected configuration of the remote store client.
func (c Config) Remote() remote.Config {
	return remote.Config{
		Endpoint:       c.ERPBaseURL,
		Credential:     c.ERPAPIToken,
		RequestTimeout: c.ERPRequestTimeout,
	}
}

// Validate fails fast when the remote store cannot be reached with this configuration.
func (c Config) Validate() error {
	if err := c.Remote().Validate(); err != nil {
		return err
	}
	if c.ShutdownTimeout <= 0 {
		return &domain.ConfigError{Component: "http", Message: "SHUTDOWN_TIMEOUT_SECONDS must be positive"}
	}
	return nil
}

func loadEnvFiles() {
	for _, f := range EnvFiles {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// envDuration accepts Go duration syntax ("15s") or a bare number of seconds.
func envDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
