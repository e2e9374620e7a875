package config

import (
	"os"
	"strconv"

	"whisperd/internal/asr"
)

// Config holds the server configuration, read from the environment.
type Config struct {
	Port          string
	DataDir       string
	ModelsDir     string
	QueueCapacity int
	ASRThreads    int

	// Defaults applied when a submission omits parameters.
	DefaultModel     string
	DefaultDevice    string
	DefaultPrecision string
	DefaultLanguage  string
}

// Load reads the configuration from environment variables, applying
// defaults for anything unset.
func Load() *Config {
	return &Config{
		Port:             getenv("PORT", "8080"),
		DataDir:          getenv("DATA_DIR", "data"),
		ModelsDir:        getenv("MODELS_DIR", "models"),
		QueueCapacity:    getenvInt("QUEUE_CAPACITY", 32),
		ASRThreads:       getenvInt("ASR_THREADS", 4),
		DefaultModel:     getenv("ASR_MODEL", "large-v3"),
		DefaultDevice:    getenv("ASR_DEVICE", asr.DeviceCPU),
		DefaultPrecision: getenv("ASR_PRECISION", asr.PrecisionFloat16),
		DefaultLanguage:  getenv("ASR_LANGUAGE", "en"),
	}
}

// DefaultConfig returns the submission defaults as a resource configuration.
func (c *Config) DefaultConfig() asr.ResourceConfig {
	return asr.ResourceConfig{
		Model:     c.DefaultModel,
		Device:    c.DefaultDevice,
		Precision: c.DefaultPrecision,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
