package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the whole application configuration.
type Config struct {
	Images  ImagesConfig  `mapstructure:"images"`
	TTS     TTSConfig     `mapstructure:"tts"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
	Library LibraryConfig `mapstructure:"library"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ImagesConfig controls the image generation pipeline and its rate limiting.
type ImagesConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Style           string        `mapstructure:"style"`
	Concurrency     int           `mapstructure:"concurrency"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
	SafetyMargin    time.Duration `mapstructure:"safety_margin"`
	TopEntities     int           `mapstructure:"top_entities"`
	SceneSeedOffset int           `mapstructure:"scene_seed_offset"`
}

type TTSConfig struct {
	Type     string  `mapstructure:"type"`
	Voice    string  `mapstructure:"voice"`
	Language string  `mapstructure:"language"`
	Speed    float64 `mapstructure:"speed"`
	MaxChars int     `mapstructure:"max_chars"`
}

type GeminiConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	MaxChars int    `mapstructure:"max_chars"`
}

type LibraryConfig struct {
	UploadDir string `mapstructure:"upload_dir"`
	OutputDir string `mapstructure:"output_dir"`
	DBFile    string `mapstructure:"db_file"`
}

type CatalogConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	CacheDir    string        `mapstructure:"cache_dir"`
	CacheMaxAge time.Duration `mapstructure:"cache_max_age"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("images.endpoint", "https://image.pollinations.ai")
	v.SetDefault("images.style", "storybook")
	v.SetDefault("images.concurrency", 1) // the endpoint throttles anything faster
	v.SetDefault("images.attempt_timeout", 90*time.Second)
	v.SetDefault("images.max_attempts", 5)
	v.SetDefault("images.cooldown", 10*time.Second)
	v.SetDefault("images.backoff_base", time.Second)
	v.SetDefault("images.max_jitter", time.Second)
	v.SetDefault("images.safety_margin", 100*time.Millisecond)
	v.SetDefault("images.top_entities", 3)
	v.SetDefault("images.scene_seed_offset", 200)

	v.SetDefault("tts.type", "auto")
	v.SetDefault("tts.voice", "en-US-Chirp3-HD-Charon")
	v.SetDefault("tts.language", "en-US")
	v.SetDefault("tts.speed", 1.0)
	v.SetDefault("tts.max_chars", 2000)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.max_chars", 5000)

	v.SetDefault("library.upload_dir", "temp_upload")
	v.SetDefault("library.output_dir", "storyreel_output")
	v.SetDefault("library.db_file", "library.json")

	v.SetDefault("catalog.base_url", "https://gutendex.com")
	v.SetDefault("catalog.cache_dir", "")
	v.SetDefault("catalog.cache_max_age", 24*time.Hour)

	v.SetDefault("server.addr", ":8000")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load reads configuration from path, or from storyreel.yaml in
// $HOME/.storyreel and the working directory when path is empty. A missing
// config file is not an error; defaults and STORYREEL_* environment
// variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("storyreel")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("storyreel")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.storyreel")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail late or silently.
func (c *Config) Validate() error {
	if c.Images.Concurrency < 1 {
		return fmt.Errorf("images.concurrency must be at least 1")
	}
	if c.Images.MaxAttempts < 1 {
		return fmt.Errorf("images.max_attempts must be at least 1")
	}
	for key, d := range map[string]time.Duration{
		"images.attempt_timeout": c.Images.AttemptTimeout,
		"images.cooldown":        c.Images.Cooldown,
		"images.backoff_base":    c.Images.BackoffBase,
		"images.max_jitter":      c.Images.MaxJitter,
		"images.safety_margin":   c.Images.SafetyMargin,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	if c.Images.TopEntities < 0 {
		return fmt.Errorf("images.top_entities must not be negative")
	}
	// Entity i is seeded base+i+1 and scene i base+offset+i; the offset has
	// to clear every entity seed or two images in a run share a seed.
	if c.Images.SceneSeedOffset <= c.Images.TopEntities {
		return fmt.Errorf("images.scene_seed_offset (%d) must be greater than images.top_entities (%d)",
			c.Images.SceneSeedOffset, c.Images.TopEntities)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}
