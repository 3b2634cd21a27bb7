package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"chapterquiz/pkg/ai"
	"chapterquiz/pkg/auth"
)

// ConfigPath is read when Load is given an empty path.
const ConfigPath = "services/studio/config.yaml"

const (
	defaultPort              = "8080"
	defaultSessionTTLMinutes = 60 * 24
	defaultMaxUploadBytes    = 20 << 20
	defaultBcryptCost        = 12
	defaultAttempts          = 3
	defaultAttemptTimeoutSec = 90
	defaultMaxElapsedSec     = 180
	defaultSignupPerMinute   = 5
	defaultLoginPerMinute    = 10
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseURL"`
	LogLevel    string `yaml:"logLevel"`

	GenerationProvider      string `yaml:"generationProvider"`
	GenerationModel         string `yaml:"generationModel"`
	GenerationBaseURL       string `yaml:"generationBaseURL"`
	OpenAIAPIKey            string `yaml:"openaiAPIKey"`
	GeminiAPIKey            string `yaml:"geminiAPIKey"`
	GenerationMaxAttempts   int    `yaml:"generationMaxAttempts"`
	GenerationTimeoutSec    int    `yaml:"generationAttemptTimeoutSeconds"`
	GenerationMaxElapsedSec int    `yaml:"generationMaxElapsedSeconds"`

	PasswordHash      string `yaml:"passwordHash"`
	BcryptCost        int    `yaml:"bcryptCost"`
	JWTSecret         string `yaml:"jwtSecret"`
	SessionTTLMinutes int    `yaml:"sessionTTLMinutes"`

	RedisAddr                string   `yaml:"redisAddr"`
	RedisPassword            string   `yaml:"redisPassword"`
	SignupRateLimitPerMinute int      `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int      `yaml:"loginRateLimitPerMinute"`
	TrustedProxies           []string `yaml:"trustedProxies"`
	AllowedOrigins           []string `yaml:"allowedOrigins"`

	MaxUploadBytes int64 `yaml:"maxUploadBytes"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to ConfigPath), applies environment
// overrides and defaults, then validates.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString(&cfg.Port, "PORT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.GenerationProvider, "GENERATION_PROVIDER")
	setString(&cfg.GenerationModel, "GENERATION_MODEL")
	setString(&cfg.GenerationBaseURL, "GENERATION_BASE_URL")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	setInt(&cfg.GenerationMaxAttempts, "GENERATION_MAX_ATTEMPTS")
	setString(&cfg.PasswordHash, "PASSWORD_HASH")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.GenerationProvider == "" {
		cfg.GenerationProvider = ai.ProviderOpenAI
	}
	cfg.GenerationProvider = strings.ToLower(cfg.GenerationProvider)
	if cfg.GenerationModel == "" && cfg.GenerationProvider == ai.ProviderOpenAI {
		cfg.GenerationModel = ai.DefaultOpenAIModel
	}
	if cfg.GenerationMaxAttempts == 0 {
		cfg.GenerationMaxAttempts = defaultAttempts
	}
	if cfg.GenerationTimeoutSec == 0 {
		cfg.GenerationTimeoutSec = defaultAttemptTimeoutSec
	}
	if cfg.GenerationMaxElapsedSec == 0 {
		cfg.GenerationMaxElapsedSec = defaultMaxElapsedSec
	}
	if cfg.PasswordHash == "" {
		cfg.PasswordHash = auth.AlgorithmBcrypt
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = defaultBcryptCost
	}
	if cfg.SessionTTLMinutes == 0 {
		cfg.SessionTTLMinutes = defaultSessionTTLMinutes
	}
	if cfg.SignupRateLimitPerMinute == 0 {
		cfg.SignupRateLimitPerMinute = defaultSignupPerMinute
	}
	if cfg.LoginRateLimitPerMinute == 0 {
		cfg.LoginRateLimitPerMinute = defaultLoginPerMinute
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
}

func validateConfig(cfg FileConfig) error {
	if len(cfg.JWTSecret) < 32 {
		return errors.New("config: jwtSecret of at least 32 bytes is required (set in config.yaml or JWT_SECRET)")
	}
	switch cfg.GenerationProvider {
	case ai.ProviderOpenAI, ai.ProviderGemini, ai.ProviderOllama:
	default:
		return fmt.Errorf("config: generationProvider %q is not one of openai, gemini, ollama", cfg.GenerationProvider)
	}
	switch strings.ToLower(cfg.PasswordHash) {
	case auth.AlgorithmBcrypt, auth.AlgorithmArgon2id:
	default:
		return fmt.Errorf("config: passwordHash %q is not one of bcrypt, argon2id", cfg.PasswordHash)
	}
	if cfg.GenerationMaxAttempts < 1 {
		return errors.New("config: generationMaxAttempts must be at least 1")
	}
	if cfg.SessionTTLMinutes < 0 || cfg.MaxUploadBytes < 0 {
		return errors.New("config: sessionTTLMinutes and maxUploadBytes must be positive")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must not be negative")
	}
	if cfg.MinioEnabled() {
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required when minioEndpoint is set")
		}
	}
	return nil
}

// GenerationAPIKey returns the credential of the selected provider.
func (c FileConfig) GenerationAPIKey() string {
	switch c.GenerationProvider {
	case ai.ProviderGemini:
		return c.GeminiAPIKey
	case ai.ProviderOllama:
		return ""
	default:
		return c.OpenAIAPIKey
	}
}

// GenerationConfigured reports whether the selected provider has what it
// needs to be called. A missing key is a startup warning, not an error.
func (c FileConfig) GenerationConfigured() bool {
	switch c.GenerationProvider {
	case ai.ProviderOllama:
		return true
	case ai.ProviderOpenAI:
		return c.OpenAIAPIKey != "" || c.GenerationBaseURL != ""
	default:
		return c.GenerationAPIKey() != ""
	}
}

// MinioEnabled reports whether uploads are archived to object storage.
func (c FileConfig) MinioEnabled() bool {
	return c.MinioEndpoint != ""
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
