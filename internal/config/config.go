package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Output formats
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// JPEG encoder backends. EncoderStd writes baseline JPEG with default
// Huffman tables; EncoderTurbo writes progressive, optimized JPEG and needs
// a binary built with the turbojpeg tag. The two give different size per
// quality, so the chosen quality for a target differs between them.
const (
	EncoderStd   = "std"
	EncoderTurbo = "turbo"
)

// Config holds application configuration
type Config struct {
	Port            int
	MaxUploadMB     int
	MaxBatchFiles   int
	MaxConcurrent   int
	RateLimitPerSec int
	RateLimitBurst  int
	WorkerCount     int
	OutputFormat    string
	Encoder         string
	LogLevel        string
	LogFormat       string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	cfg := &Config{
		Port:            getEnvInt("PORT", 8080),
		MaxUploadMB:     getEnvInt("MAX_UPLOAD_MB", 10),
		MaxBatchFiles:   getEnvInt("MAX_BATCH_FILES", 50),
		MaxConcurrent:   getEnvInt("MAX_CONCURRENT", 50),
		RateLimitPerSec: getEnvInt("RATE_LIMIT", 10),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 20),
		WorkerCount:     getEnvInt("WORKER_COUNT", runtime.NumCPU()),
		OutputFormat:    strings.ToLower(getEnv("OUTPUT_FORMAT", FormatJPEG)),
		Encoder:         strings.ToLower(getEnv("ENCODER", EncoderStd)),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}
	return cfg
}

// Validate returns an error if the configuration is inconsistent
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be in 1-65535, got %d", c.Port))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB))
	}
	if c.MaxBatchFiles <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BATCH_FILES must be positive, got %d", c.MaxBatchFiles))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT must be positive, got %d", c.MaxConcurrent))
	}
	if c.RateLimitPerSec <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT and RATE_LIMIT_BURST must be positive"))
	}
	if c.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount))
	}
	if c.OutputFormat != FormatJPEG && c.OutputFormat != FormatWebP {
		errs = append(errs, fmt.Errorf("OUTPUT_FORMAT must be %q or %q, got %q", FormatJPEG, FormatWebP, c.OutputFormat))
	}
	if c.Encoder != EncoderStd && c.Encoder != EncoderTurbo {
		errs = append(errs, fmt.Errorf("ENCODER must be %q or %q, got %q", EncoderStd, EncoderTurbo, c.Encoder))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// MaxUploadBytes is the multipart body limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultValue
}
