package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	JWTSecret              string
	NATSURL                string
	NATSSubject            string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	DockerHost             string
	UploadDir              string
	WorkRoot               string
	SonarServerURL         string
	SonarToken             string
	SonarOrganization      string
	SonarScannerImage      string
	ScannerTimeout         time.Duration
	ScannerRetries         int
	ScannerRetryBackoff    time.Duration
	MetricsRetries         int
	MetricsRetryBackoff    time.Duration
	SettleInterval         time.Duration
	AllowFallback          bool
	WatchdogTimeout        time.Duration
	StatusCacheTTL         time.Duration
	MaxPerFileAnalyses     int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CODEGRADE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CodeGrade API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cloudinary.folder", "codegrade/submissions")
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("work.root", "/tmp/codegrade")
	v.SetDefault("sonar.server_url", "https://sonarcloud.io")
	v.SetDefault("sonar.scanner_image", "sonarsource/sonar-scanner-cli:latest")
	v.SetDefault("scanner.timeout", "60s")
	v.SetDefault("scanner.retries", 3)
	v.SetDefault("scanner.retry_backoff", "2s")
	v.SetDefault("metrics.retries", 3)
	v.SetDefault("metrics.retry_backoff", "1s")
	v.SetDefault("settle.interval", "5s")
	v.SetDefault("allow.fallback", true)
	v.SetDefault("watchdog.timeout", "3m")
	v.SetDefault("status.cache_ttl", "10s")
	v.SetDefault("max.per_file_analyses", 20)

	var durationErr error
	duration := func(key string) time.Duration {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil && durationErr == nil {
			durationErr = fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		NATSURL:                v.GetString("nats.url"),
		NATSSubject:            v.GetString("nats.subject"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		DockerHost:             v.GetString("docker_host"),
		UploadDir:              v.GetString("upload.dir"),
		WorkRoot:               v.GetString("work.root"),
		SonarServerURL:         v.GetString("sonar.server_url"),
		SonarToken:             v.GetString("sonar.token"),
		SonarOrganization:      v.GetString("sonar.organization"),
		SonarScannerImage:      v.GetString("sonar.scanner_image"),
		ScannerTimeout:         duration("scanner.timeout"),
		ScannerRetries:         v.GetInt("scanner.retries"),
		ScannerRetryBackoff:    duration("scanner.retry_backoff"),
		MetricsRetries:         v.GetInt("metrics.retries"),
		MetricsRetryBackoff:    duration("metrics.retry_backoff"),
		SettleInterval:         duration("settle.interval"),
		AllowFallback:          v.GetBool("allow.fallback"),
		WatchdogTimeout:        duration("watchdog.timeout"),
		StatusCacheTTL:         duration("status.cache_ttl"),
		MaxPerFileAnalyses:     v.GetInt("max.per_file_analyses"),
	}

	if durationErr != nil {
		return Config{}, durationErr
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.ScannerRetries <= 0 {
		cfg.ScannerRetries = 3
	}

	if cfg.MetricsRetries <= 0 {
		cfg.MetricsRetries = 3
	}

	if cfg.MaxPerFileAnalyses <= 0 {
		cfg.MaxPerFileAnalyses = 20
	}

	return cfg, nil
}
