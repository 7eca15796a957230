package config

import (
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/spf13/viper"

	"imagecompress-go/internal/codec"
	"imagecompress-go/internal/compressor"
)

// Config represents the main configuration structure
type Config struct {
	Compression CompressionConfig `mapstructure:"compression"`
	Upload      UploadConfig      `mapstructure:"upload"`
	Session     SessionConfig     `mapstructure:"session"`
	Server      ServerConfig      `mapstructure:"server"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig contains search settings
type CompressionConfig struct {
	MinQuality int    `mapstructure:"min_quality"`
	MaxQuality int    `mapstructure:"max_quality"`
	FloorFirst bool   `mapstructure:"floor_first"`
	Resampler  string `mapstructure:"resampler"`
	AutoOrient bool   `mapstructure:"auto_orient"`
	// PNGLevels lists zlib effort from most to least compression:
	// best, default, speed, none. The default table omits none.
	PNGLevels []string `mapstructure:"png_levels"`
}

// UploadConfig contains upload limits
type UploadConfig struct {
	MaxContentLength  int64    `mapstructure:"max_content_length"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

// SessionConfig contains temp storage settings
type SessionConfig struct {
	UploadDir       string        `mapstructure:"upload_dir"`
	OutputDir       string        `mapstructure:"output_dir"`
	MaxAge          time.Duration `mapstructure:"max_age"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	WorkerThreads int `mapstructure:"worker_threads"`
	// BatchTimeout bounds how long a batch keeps scheduling new images.
	// Zero disables the limit.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

var pngLevelNames = map[string]png.CompressionLevel{
	"best":    png.BestCompression,
	"default": png.DefaultCompression,
	"speed":   png.BestSpeed,
	"none":    png.NoCompression,
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Compression: CompressionConfig{
			MinQuality: compressor.DefaultMinQuality,
			MaxQuality: compressor.DefaultMaxQuality,
			FloorFirst: true,
			Resampler:  string(codec.ResamplerLanczos),
			AutoOrient: true,
			PNGLevels:  []string{"best", "default", "speed"},
		},
		Upload: UploadConfig{
			MaxContentLength:  500 * 1024 * 1024,
			AllowedExtensions: []string{".jpg", ".jpeg", ".png"},
		},
		Session: SessionConfig{
			UploadDir:       "/tmp/imagecompress/uploads",
			OutputDir:       "/tmp/imagecompress/output",
			MaxAge:          time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Server: ServerConfig{
			Port:            5050,
			ReadTimeout:     5 * time.Minute,
			WriteTimeout:    10 * time.Minute,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Performance: PerformanceConfig{
			WorkerThreads: 4,
			BatchTimeout:  5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// setDefaults registers every key so environment overrides apply even
// without a config file.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("compression.min_quality", c.Compression.MinQuality)
	v.SetDefault("compression.max_quality", c.Compression.MaxQuality)
	v.SetDefault("compression.floor_first", c.Compression.FloorFirst)
	v.SetDefault("compression.resampler", c.Compression.Resampler)
	v.SetDefault("compression.auto_orient", c.Compression.AutoOrient)
	v.SetDefault("compression.png_levels", c.Compression.PNGLevels)

	v.SetDefault("upload.max_content_length", c.Upload.MaxContentLength)
	v.SetDefault("upload.allowed_extensions", c.Upload.AllowedExtensions)

	v.SetDefault("session.upload_dir", c.Session.UploadDir)
	v.SetDefault("session.output_dir", c.Session.OutputDir)
	v.SetDefault("session.max_age", c.Session.MaxAge)
	v.SetDefault("session.cleanup_interval", c.Session.CleanupInterval)

	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", c.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)

	v.SetDefault("performance.worker_threads", c.Performance.WorkerThreads)
	v.SetDefault("performance.batch_timeout", c.Performance.BatchTimeout)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())

	// Unmarshal into a zero value: mapstructure overwrites existing slices
	// element by element, so a prefilled list would keep its default tail.
	config := &Config{}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.imagecompress")
		v.AddConfigPath("/etc/imagecompress")
	}

	// Enable environment variable support
	v.SetEnvPrefix("IMAGE_COMPRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	q := c.Compression
	if q.MinQuality <= 0 || q.MaxQuality > 100 || q.MinQuality > q.MaxQuality {
		return fmt.Errorf("invalid quality bounds [%d, %d] (need 0 < min <= max <= 100)", q.MinQuality, q.MaxQuality)
	}

	if _, err := codec.ParseResampler(q.Resampler); err != nil {
		return err
	}

	if _, err := c.PNGCompressionLevels(); err != nil {
		return err
	}

	c.Upload.AllowedExtensions = normalizeExtensions(c.Upload.AllowedExtensions)
	if c.Upload.MaxContentLength <= 0 {
		c.Upload.MaxContentLength = 500 * 1024 * 1024
	}

	if c.Session.UploadDir == "" || c.Session.OutputDir == "" {
		return fmt.Errorf("session upload_dir and output_dir are required")
	}
	if c.Session.MaxAge <= 0 {
		c.Session.MaxAge = time.Hour
	}
	if c.Session.CleanupInterval <= 0 {
		c.Session.CleanupInterval = 10 * time.Minute
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if c.Performance.WorkerThreads <= 0 {
		c.Performance.WorkerThreads = 4
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// PNGCompressionLevels resolves the configured PNG effort table.
func (c *Config) PNGCompressionLevels() ([]png.CompressionLevel, error) {
	if len(c.Compression.PNGLevels) == 0 {
		return codec.DefaultPNGLevels, nil
	}
	levels := make([]png.CompressionLevel, 0, len(c.Compression.PNGLevels))
	for _, name := range c.Compression.PNGLevels {
		level, ok := pngLevelNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("invalid png level: %s (valid: best, default, speed, none)", name)
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// CodecOptions builds codec options from the compression section.
func (c *Config) CodecOptions() (codec.Options, error) {
	resampler, err := codec.ParseResampler(c.Compression.Resampler)
	if err != nil {
		return codec.Options{}, err
	}
	levels, err := c.PNGCompressionLevels()
	if err != nil {
		return codec.Options{}, err
	}
	return codec.Options{
		Resampler:  resampler,
		AutoOrient: c.Compression.AutoOrient,
		PNGLevels:  levels,
	}, nil
}

// IsAllowedExtension checks if the extension is accepted for upload
func (c *Config) IsAllowedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range c.Upload.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
