package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	LLM        LLMConfig        `yaml:"llm"`
	Decompose  DecomposeConfig  `yaml:"decompose"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Validation ValidationConfig `yaml:"validation"`
	Queue      QueueConfig      `yaml:"queue"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string   `yaml:"http_addr" validate:"required"`
	GRPCAddr       string   `yaml:"grpc_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadMB    int64    `yaml:"max_upload_mb" validate:"gt=0"`
}

// StoreConfig selects and configures the execution record store
type StoreConfig struct {
	Driver           string        `yaml:"driver" validate:"required,oneof=postgres sqlite mongo"`
	DSN              string        `yaml:"dsn" validate:"required_unless=Driver mongo"`
	MaxConns         int32         `yaml:"max_conns" validate:"gte=0"`
	MinConns         int32         `yaml:"min_conns" validate:"gte=0"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
	MongoURI         string        `yaml:"mongo_uri" validate:"required_if=Driver mongo"`
	MongoDatabase    string        `yaml:"mongo_database"`
}

// LLMConfig holds inference collaborator configuration
type LLMConfig struct {
	BaseURL      string        `yaml:"base_url" validate:"required,url"`
	APIKey       string        `yaml:"api_key" validate:"required"`
	Model        string        `yaml:"model" validate:"required"`
	Temperature  float32       `yaml:"temperature" validate:"gte=0,lte=2"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxAttempts  int           `yaml:"max_attempts" validate:"gte=1,lte=5"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// DecomposeConfig holds document rasterization configuration
type DecomposeConfig struct {
	Pdftoppm      string `yaml:"pdftoppm"`
	HeicConverter string `yaml:"heic_converter" validate:"omitempty,oneof=heif-convert magick sips"`
	DPI           int    `yaml:"dpi" validate:"gte=72,lte=600"`
	MaxPages      int    `yaml:"max_pages" validate:"gte=0"`
}

// PipelineConfig holds stage execution configuration
type PipelineConfig struct {
	ExtractConcurrency int `yaml:"extract_concurrency" validate:"gte=1,lte=64"`
}

// ValidationConfig holds the fraud rule configuration
type ValidationConfig struct {
	Mode            string              `yaml:"mode" validate:"oneof=rules llm"`
	AmountThreshold float64             `yaml:"amount_threshold" validate:"gt=0"`
	Currency        string              `yaml:"currency" validate:"len=3"`
	NearbyCities    map[string][]string `yaml:"nearby_cities"`
}

// QueueConfig holds asynchronous session processing configuration
type QueueConfig struct {
	Workers        int           `yaml:"workers" validate:"gte=1"`
	Size           int           `yaml:"size" validate:"gte=1"`
	SessionTimeout time.Duration `yaml:"session_timeout" validate:"gt=0"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:       ":8000",
			GRPCAddr:       ":8081",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:8081", "http://127.0.0.1:8081"},
			MaxUploadMB:    32,
		},
		Store: StoreConfig{
			Driver:          "sqlite",
			DSN:             "file:expense-auditor.db?_pragma=busy_timeout(5000)",
			MaxConns:        20,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
			MongoDatabase:   "expense_auditor",
		},
		LLM: LLMConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			Temperature:  0,
			Timeout:      45 * time.Second,
			MaxAttempts:  2,
			RetryBackoff: 500 * time.Millisecond,
		},
		Decompose: DecomposeConfig{
			Pdftoppm:      "pdftoppm",
			HeicConverter: "magick",
			DPI:           200,
		},
		Pipeline: PipelineConfig{
			ExtractConcurrency: 4,
		},
		Validation: ValidationConfig{
			Mode:            "rules",
			AmountThreshold: 1000,
			Currency:        "MAD",
		},
		Queue: QueueConfig{
			Workers:        2,
			Size:           64,
			SessionTimeout: 10 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration: defaults, then .env, then the YAML file named by CONFIG_FILE,
// then environment variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, NewAppError("CONFIG_ERROR", "load .env", err)
	}

	cfg := DefaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeYAMLFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeYAMLFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("read %s", path), err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("parse %s", path), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.HTTPAddr, "HTTP_ADDR")
	setString(&c.Server.GRPCAddr, "GRPC_ADDR")
	setList(&c.Server.AllowedOrigins, "CORS_ALLOWED_ORIGINS")
	setInt64(&c.Server.MaxUploadMB, "MAX_UPLOAD_MB")

	setString(&c.Store.Driver, "STORE_DRIVER")
	setString(&c.Store.DSN, "DB_URL")
	setInt32(&c.Store.MaxConns, "DB_MAX_CONNS")
	setInt32(&c.Store.MinConns, "DB_MIN_CONNS")
	setDuration(&c.Store.MaxConnLifetime, "DB_MAX_CONN_LIFETIME")
	setDuration(&c.Store.MaxConnIdleTime, "DB_MAX_CONN_IDLE_TIME")
	setDuration(&c.Store.DialTimeout, "DB_DIAL_TIMEOUT")
	setDuration(&c.Store.StatementTimeout, "DB_STATEMENT_TIMEOUT")
	setString(&c.Store.MongoURI, "MONGO_URI")
	setString(&c.Store.MongoDatabase, "MONGO_DATABASE")

	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.Model, "LLM_MODEL")
	setFloat32(&c.LLM.Temperature, "LLM_TEMPERATURE")
	setDuration(&c.LLM.Timeout, "LLM_TIMEOUT")
	setInt(&c.LLM.MaxAttempts, "LLM_MAX_ATTEMPTS")
	setDuration(&c.LLM.RetryBackoff, "LLM_RETRY_BACKOFF")

	setString(&c.Decompose.Pdftoppm, "PDFTOPPM")
	setString(&c.Decompose.HeicConverter, "HEIC_CONVERTER")
	setInt(&c.Decompose.DPI, "RASTER_DPI")
	setInt(&c.Decompose.MaxPages, "MAX_PAGES")

	setInt(&c.Pipeline.ExtractConcurrency, "EXTRACT_CONCURRENCY")

	setString(&c.Validation.Mode, "VALIDATION_MODE")
	setFloat64(&c.Validation.AmountThreshold, "AMOUNT_THRESHOLD")
	setString(&c.Validation.Currency, "BASE_CURRENCY")

	setInt(&c.Queue.Workers, "QUEUE_WORKERS")
	setInt(&c.Queue.Size, "QUEUE_SIZE")
	setDuration(&c.Queue.SessionTimeout, "SESSION_TIMEOUT")

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.File, "LOG_FILE")
}

// Helper functions for environment variable parsing
func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setList(dst *[]string, key string) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			*dst = intVal
		}
	}
}

func setInt32(dst *int32, key string) {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			*dst = int32(intVal)
		}
	}
}

func setInt64(dst *int64, key string) {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			*dst = intVal
		}
	}
}

func setFloat32(dst *float32, key string) {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			*dst = float32(floatVal)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			*dst = floatVal
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			*dst = duration
		}
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid configuration", err)
	}
	return nil
}
