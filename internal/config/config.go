package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StrategySequential = "sequential"
	StrategyParallel   = "parallel"

	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	ClientOpenAI = "openai"
	ClientOllama = "ollama"
)

// secretsDir is where Docker secrets are mounted.
var secretsDir = "/run/secrets"

// Config holds the storybook service configuration.
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development"`
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Generation backends
	AIClientType  string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIBaseURL     string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com/v1"`
	AITextModel   string        `envconfig:"AI_TEXT_MODEL" default:"gpt-4o"`
	AIImageModel  string        `envconfig:"AI_IMAGE_MODEL" default:"gpt-image-1"`
	AIEditModel   string        `envconfig:"AI_EDIT_MODEL" default:"gpt-image-1"`
	AISpeechModel string        `envconfig:"AI_SPEECH_MODEL" default:"tts-1"`
	AISpeechVoice string        `envconfig:"AI_SPEECH_VOICE" default:"nova"`
	AIImageSize   string        `envconfig:"AI_IMAGE_SIZE" default:"1024x1024"`
	AITimeout     time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	OllamaURL     string        `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	// Secret, read from /run/secrets/ai_api_key or AI_API_KEY
	AIAPIKey string `ignored:"true"`

	// Illustration
	IllustrationStrategy    string        `envconfig:"ILLUSTRATION_STRATEGY" default:"sequential"`
	IllustrationPacing      time.Duration `envconfig:"ILLUSTRATION_PACING" default:"1500ms"`
	IllustrationMaxParallel int           `envconfig:"ILLUSTRATION_MAX_PARALLEL" default:"4"`
	MaxPages                int           `envconfig:"MAX_PAGES" default:"25"`

	// Durable storage
	StoreBackend  string `envconfig:"STORE_BACKEND" default:"memory"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	// Zero keeps saved storybooks forever.
	SavedStoryTTL time.Duration `envconfig:"SAVED_STORY_TTL" default:"720h"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBName     string `envconfig:"DB_NAME" default:"storybook"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	// Secret, read from /run/secrets/db_password or DB_PASSWORD
	DBPassword string `ignored:"true"`

	// Events
	RabbitMQURL    string `envconfig:"RABBITMQ_URL" default:""`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"storybook.events"`

	// HTTP
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	PublicBaseURL      string        `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080/"`
	SessionIdleTTL     time.Duration `envconfig:"SESSION_IDLE_TTL" default:"2h"`
}

// LoadConfig reads .env (when present), the environment and the secrets.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	key, err := ReadSecret("ai_api_key", "AI_API_KEY")
	if err != nil && cfg.AIClientType == ClientOpenAI {
		return nil, err
	}
	cfg.AIAPIKey = key

	if cfg.StoreBackend == BackendPostgres {
		cfg.DBPassword, err = ReadSecret("db_password", "DB_PASSWORD")
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.IllustrationStrategy {
	case StrategySequential, StrategyParallel:
	default:
		errs = append(errs, fmt.Errorf("unknown ILLUSTRATION_STRATEGY %q", c.IllustrationStrategy))
	}
	switch c.StoreBackend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	switch c.AIClientType {
	case ClientOpenAI, ClientOllama:
	default:
		errs = append(errs, fmt.Errorf("unknown AI_CLIENT_TYPE %q", c.AIClientType))
	}
	if c.MaxPages <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PAGES must be positive, got %d", c.MaxPages))
	}
	if c.IllustrationPacing < 0 {
		errs = append(errs, fmt.Errorf("ILLUSTRATION_PACING must not be negative"))
	}
	return errors.Join(errs...)
}

// GetDSN returns the PostgreSQL connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// MaskedDSN returns the DSN with the password replaced, for logging.
func (c *Config) MaskedDSN() string {
	dsn := c.GetDSN()
	parts := strings.SplitN(dsn, "@", 2)
	if len(parts) != 2 {
		return "[invalid dsn format]"
	}
	userInfo := strings.Split(parts[0], ":")
	if len(userInfo) >= 3 {
		userInfo[len(userInfo)-1] = "********"
	}
	return strings.Join(userInfo, ":") + "@" + parts[1]
}

// ReadSecret reads a Docker secret and falls back to the named environment variable.
func ReadSecret(secretName, envName string) (string, error) {
	filePath := fmt.Sprintf("%s/%s", secretsDir, secretName)
	if data, err := os.ReadFile(filePath); err == nil {
		if secret := strings.TrimSpace(string(data)); secret != "" {
			return secret, nil
		}
	}
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret %s not found in %s or $%s", secretName, filePath, envName)
}
