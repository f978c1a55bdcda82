package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppConfig       *AppConfig
	BrowserConfig   *BrowserConfig
	ArtifactConfig  *ArtifactConfig
	ServerConfig    *ServerConfig
	RunConfig       *RunConfig
	EventsConfig    *EventsConfig
	TelemetryConfig *TelemetryConfig
}

type AppConfig struct {
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	Debug          bool   `envconfig:"DEBUG" default:"false"`
	LogFile        string `envconfig:"LOG_FILE" default:""`
	LogMaxSizeMB   int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	LogMaxBackups  int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	LogMaxAgeDays  int    `envconfig:"LOG_MAX_AGE_DAYS" default:"14"`
	LogCompression bool   `envconfig:"LOG_COMPRESS" default:"false"`
}

// BrowserConfig holds the session defaults. Per-request options override
// any of them for a single run.
type BrowserConfig struct {
	Headless       bool   `envconfig:"BROWSER_HEADLESS" default:"true"`
	SlowMo         int    `envconfig:"BROWSER_SLOW_MO" default:"0"`
	Timeout        int    `envconfig:"BROWSER_TIMEOUT" default:"30000"`
	ViewportWidth  int    `envconfig:"BROWSER_VIEWPORT_WIDTH" default:"1280"`
	ViewportHeight int    `envconfig:"BROWSER_VIEWPORT_HEIGHT" default:"720"`
	RecordVideo    bool   `envconfig:"BROWSER_RECORD_VIDEO" default:"false"`
	Engine         string `envconfig:"BROWSER_ENGINE" default:"browser"`
	Install        bool   `envconfig:"BROWSER_INSTALL" default:"true"`
}

type ArtifactConfig struct {
	Root string `envconfig:"ARTIFACT_ROOT" default:"./public"`
}

type ServerConfig struct {
	Addr            string        `envconfig:"SERVER_ADDR" default:":3000"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

type RunConfig struct {
	MaxConcurrent int64 `envconfig:"RUN_MAX_CONCURRENT" default:"4"`
}

type EventsConfig struct {
	NatsURL       string `envconfig:"NATS_URL" default:""`
	SubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"pagepilot"`
}

type TelemetryConfig struct {
	TracingExporter string `envconfig:"TRACING_EXPORTER" default:"none"`
}

func GetConfig() (*Config, error) {
	_ = godotenv.Load()

	var conf Config

	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}

	if conf.RunConfig.MaxConcurrent < 1 {
		return nil, fmt.Errorf("RUN_MAX_CONCURRENT must be positive, got %d", conf.RunConfig.MaxConcurrent)
	}

	return &conf, nil
}
