// Package config loads service settings from defaults, an optional config
// file, an optional .env file and FITMIRROR_ environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// FITMIRROR_REDIS_ADDR for redis.addr.
const EnvPrefix = "FITMIRROR"

// Config is the full service configuration.
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Pose       PoseConfig       `mapstructure:"pose"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Output     OutputConfig     `mapstructure:"output"`
	Sizing     SizingConfig     `mapstructure:"sizing"`
	JWT        JWTConfig        `mapstructure:"jwt"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	MaxUploadBytes  int64         `mapstructure:"maxUploadBytes"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

// PoseConfig points at the pose landmarker and sets how detectors are shared.
// Mode "pool" checks out one of PoolSize detectors per request; "mutex"
// serializes every request through a single detector.
type PoseConfig struct {
	Addr     string `mapstructure:"addr"`
	PoolSize int    `mapstructure:"poolSize"`
	Mode     string `mapstructure:"mode"`
}

type ProcessingConfig struct {
	Deadline time.Duration `mapstructure:"deadline"`
}

type OutputConfig struct {
	Format      string `mapstructure:"format"`
	JPEGQuality int    `mapstructure:"jpegQuality"`
}

type SizingConfig struct {
	Strategy string `mapstructure:"strategy"`
}

type JWTConfig struct {
	Secret   string `mapstructure:"secret"`
	Audience string `mapstructure:"audience"`
}

// Options selects the optional files Load reads.
type Options struct {
	// ConfigFile is a JSON or YAML file. Empty skips it.
	ConfigFile string
	// EnvFile is a dotenv file. Empty tries ./.env and ignores its absence.
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdownTimeout", "15s")
	v.SetDefault("http.maxUploadBytes", 10<<20)

	v.SetDefault("log.level", "info")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "host=postgres user=postgres password=postgres dbname=fitmirror port=5432 sslmode=disable")

	v.SetDefault("redis.addr", "redis:6379")

	v.SetDefault("pose.addr", "pose-landmarker:50051")
	v.SetDefault("pose.poolSize", 4)
	v.SetDefault("pose.mode", "pool")

	v.SetDefault("processing.deadline", "10s")

	v.SetDefault("output.format", "jpeg")
	v.SetDefault("output.jpegQuality", 90)

	v.SetDefault("sizing.strategy", "pixel")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.audience", "")
}

// Load builds a Config. Environment values win over the config file, which
// wins over the defaults.
func Load(opts Options) (Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Validate rejects values that cannot be wired.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("db.driver must be postgres or sqlite, got %q", c.DB.Driver)
	}
	switch c.Pose.Mode {
	case "pool", "mutex":
	default:
		return fmt.Errorf("pose.mode must be pool or mutex, got %q", c.Pose.Mode)
	}
	if c.Pose.Mode == "pool" && c.Pose.PoolSize < 1 {
		return fmt.Errorf("pose.poolSize must be at least 1, got %d", c.Pose.PoolSize)
	}
	if c.Processing.Deadline <= 0 {
		return fmt.Errorf("processing.deadline must be positive, got %s", c.Processing.Deadline)
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		return fmt.Errorf("http.maxUploadBytes must be positive, got %d", c.HTTP.MaxUploadBytes)
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpegQuality must be within 1..100, got %d", c.Output.JPEGQuality)
	}
	return nil
}
