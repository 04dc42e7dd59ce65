package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Hausgeist configuration.
type Config struct {
	Listen         string          `yaml:"listen"`
	DataDir        string          `yaml:"data_dir"`
	DBPath         string          `yaml:"db_path"`
	FallbackDir    string          `yaml:"fallback_dir"`
	StreetViewKey  string          `yaml:"street_view_key"`
	GoogleAIKey    string          `yaml:"google_ai_key"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	Cache          CacheConfig     `yaml:"cache"`
	Queue          QueueConfig     `yaml:"queue"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Models         ModelsConfig    `yaml:"models"`
}

// CacheConfig sizes the three resource caches independently.
type CacheConfig struct {
	StreetView ResourceCacheConfig `yaml:"street_view"`
	Aerial     ResourceCacheConfig `yaml:"aerial"`
	Identity   ResourceCacheConfig `yaml:"identity"`
}

// ResourceCacheConfig bounds a single resource cache.
type ResourceCacheConfig struct {
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
}

// QueueConfig bounds the synthesis queue.
type QueueConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// RateLimitConfig holds the per-IP admission ceilings, per minute.
type RateLimitConfig struct {
	GeneralPerMinute    int `yaml:"general_per_minute"`
	GenerationPerMinute int `yaml:"generation_per_minute"`
}

// ModelsConfig names the provider models used by the pipeline.
type ModelsConfig struct {
	Vision        string `yaml:"vision"`
	Image         string `yaml:"image"`
	ImageFallback string `yaml:"image_fallback"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:         ":8080",
		DataDir:        "data",
		DBPath:         "hausgeist.db",
		FallbackDir:    "assets/fallback",
		RequestTimeout: 2 * time.Minute,
		Cache: CacheConfig{
			StreetView: ResourceCacheConfig{MaxSize: 100, TTL: time.Hour},
			Aerial:     ResourceCacheConfig{MaxSize: 100, TTL: time.Hour},
			Identity:   ResourceCacheConfig{MaxSize: 200, TTL: 24 * time.Hour},
		},
		Queue: QueueConfig{MaxConcurrent: 2},
		RateLimit: RateLimitConfig{
			GeneralPerMinute:    100,
			GenerationPerMinute: 5,
		},
		Models: ModelsConfig{
			Vision:        "gemini-2.5-flash",
			Image:         "gemini-2.5-flash-image",
			ImageFallback: "gemini-2.0-flash-preview-image-generation",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
