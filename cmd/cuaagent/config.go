package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfiguration is returned when required settings are missing or invalid.
var ErrConfiguration = errors.New("invalid configuration")

const defaultInstruction = "Find Kernel's company page on the YCombinator website and write a blog post about their product offering."

// Config holds all application configuration.
type Config struct {
	App         AppConfig
	Browser     BrowserConfig
	Agent       AgentConfig
	Task        TaskConfig
	Automation  AutomationConfig
	Credentials CredentialsConfig
	Server      ServerConfig
	Log         LogConfig
	History     HistoryConfig
	Artifacts   ArtifactsConfig
}

// AppConfig names the remote action.
type AppConfig struct {
	Name   string
	Action string
}

// BrowserConfig holds remote browser settings.
type BrowserConfig struct {
	Stealth bool
}

// AgentConfig holds computer-use agent settings.
type AgentConfig struct {
	Provider string
	Model    string
	MaxSteps int
}

// TaskConfig holds the task run when an invocation overrides nothing.
type TaskConfig struct {
	StartURL    string
	Instruction string
}

// AutomationConfig holds CDP driver and page-understanding settings.
type AutomationConfig struct {
	Driver           string
	Model            string
	DOMSettleTimeout time.Duration
}

// CredentialsConfig holds provider API keys.
type CredentialsConfig struct {
	GoogleAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	KernelAPIKey  string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	ShutdownTimeout      time.Duration
	MaxConcurrentActions int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// HistoryConfig selects the run history database. An empty Driver disables it.
type HistoryConfig struct {
	Driver       string // "", "sqlite" or "mysql"
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// ArtifactsConfig selects where run artifacts are written. An empty Type disables them.
type ArtifactsConfig struct {
	Type            string        // "", "local" or "s3"
	BaseDir         string        // For local: "./artifacts"
	S3Bucket        string        // For S3: bucket name
	S3Region        string        // For S3: AWS region
	S3PresignExpiry time.Duration // Presigned URL expiration
}

// LoadConfig loads configuration from an optional .env file, an optional
// config file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Provider SDKs use unprefixed names for their keys.
	v.BindEnv("credentials.google_api_key", "GOOGLE_API_KEY")
	v.BindEnv("credentials.openai_api_key", "OPENAI_API_KEY")
	v.BindEnv("credentials.openai_base_url", "OPENAI_BASE_URL")
	v.BindEnv("credentials.kernel_api_key", "KERNEL_API_KEY")

	v.SetDefault("app.name", "go-google-cua-agent")
	v.SetDefault("app.action", "google-cua-agent-task")

	v.SetDefault("browser.stealth", true)

	v.SetDefault("agent.provider", "google")
	v.SetDefault("agent.model", "gemini-2.5-computer-use-preview-10-2025")
	v.SetDefault("agent.max_steps", 20)

	v.SetDefault("task.start_url", "https://www.ycombinator.com/companies")
	v.SetDefault("task.instruction", defaultInstruction)

	v.SetDefault("automation.driver", "chromedp")
	v.SetDefault("automation.model", "gpt-4o")
	v.SetDefault("automation.dom_settle_timeout", "30s")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30m")
	v.SetDefault("server.shutdown_timeout", "2m")
	v.SetDefault("server.max_concurrent_actions", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("history.driver", "")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.max_open_conns", 10)
	v.SetDefault("history.max_idle_conns", 2)

	v.SetDefault("artifacts.type", "")
	v.SetDefault("artifacts.base_dir", "./artifacts")
	v.SetDefault("artifacts.s3_bucket", "")
	v.SetDefault("artifacts.s3_region", "us-east-1")
	v.SetDefault("artifacts.s3_presign_expiry", "15m")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config

	config.App.Name = v.GetString("app.name")
	config.App.Action = v.GetString("app.action")

	config.Browser.Stealth = v.GetBool("browser.stealth")

	config.Agent.Provider = v.GetString("agent.provider")
	config.Agent.Model = v.GetString("agent.model")
	config.Agent.MaxSteps = v.GetInt("agent.max_steps")

	config.Task.StartURL = v.GetString("task.start_url")
	config.Task.Instruction = v.GetString("task.instruction")

	config.Automation.Driver = v.GetString("automation.driver")
	config.Automation.Model = v.GetString("automation.model")
	config.Automation.DOMSettleTimeout = v.GetDuration("automation.dom_settle_timeout")

	config.Credentials.GoogleAPIKey = v.GetString("credentials.google_api_key")
	config.Credentials.OpenAIAPIKey = v.GetString("credentials.openai_api_key")
	config.Credentials.OpenAIBaseURL = v.GetString("credentials.openai_base_url")
	config.Credentials.KernelAPIKey = v.GetString("credentials.kernel_api_key")

	config.Server.Host = v.GetString("server.host")
	config.Server.Port = v.GetInt("server.port")
	config.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	config.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	config.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	config.Server.MaxConcurrentActions = v.GetInt("server.max_concurrent_actions")

	config.Log.Level = v.GetString("log.level")
	config.Log.Format = v.GetString("log.format")

	config.History.Driver = v.GetString("history.driver")
	config.History.DSN = v.GetString("history.dsn")
	config.History.MaxOpenConns = v.GetInt("history.max_open_conns")
	config.History.MaxIdleConns = v.GetInt("history.max_idle_conns")

	config.Artifacts.Type = v.GetString("artifacts.type")
	config.Artifacts.BaseDir = v.GetString("artifacts.base_dir")
	config.Artifacts.S3Bucket = v.GetString("artifacts.s3_bucket")
	config.Artifacts.S3Region = v.GetString("artifacts.s3_region")
	config.Artifacts.S3PresignExpiry = v.GetDuration("artifacts.s3_presign_expiry")

	return &config, nil
}

// Validate checks that every setting a run depends on is present. It makes
// no network calls.
func (c *Config) Validate() error {
	var missing []string
	if c.Credentials.GoogleAPIKey == "" {
		missing = append(missing, "GOOGLE_API_KEY")
	}
	if c.Credentials.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}

	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("%w: agent.max_steps must be positive", ErrConfiguration)
	}
	if strings.TrimSpace(c.Task.Instruction) == "" {
		return fmt.Errorf("%w: task.instruction is empty", ErrConfiguration)
	}

	switch c.History.Driver {
	case "":
	case "sqlite", "mysql":
		if c.History.DSN == "" {
			return fmt.Errorf("%w: history.dsn is required for %s history", ErrConfiguration, c.History.Driver)
		}
	default:
		return fmt.Errorf("%w: unsupported history driver %q", ErrConfiguration, c.History.Driver)
	}

	switch c.Artifacts.Type {
	case "", "local", "s3":
	default:
		return fmt.Errorf("%w: unsupported artifacts type %q", ErrConfiguration, c.Artifacts.Type)
	}

	return nil
}
