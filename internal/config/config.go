// Package config loads server settings from defaults, an optional YAML file,
// .env files, TRADESIM_* environment variables and command line flags, in
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "TRADESIM"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	TCPAddr  string        `mapstructure:"tcp_addr"`
	HTTPAddr string        `mapstructure:"http_addr"`
	LogLevel string        `mapstructure:"log_level"`
	Audit    AuditConfig   `mapstructure:"audit"`
	History  HistoryConfig `mapstructure:"history"`
	Kafka    KafkaConfig   `mapstructure:"kafka"`
}

type AuditConfig struct {
	// Dir is where the CSV files are written. Empty disables the audit trail.
	Dir string `mapstructure:"dir"`
	// Buffer is the ring buffer capacity and must be a power of 2.
	Buffer int64 `mapstructure:"buffer"`
}

type HistoryConfig struct {
	Size int `mapstructure:"size"`
}

type KafkaConfig struct {
	// Brokers enables the book event sink when non-empty.
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Options controls where Load looks for settings.
type Options struct {
	// File is an explicit config file. When empty, tradesim.yaml is looked up
	// in the working directory and a missing file is not an error.
	File string
	// EnvFiles are loaded into the process environment before reading
	// variables; missing files are skipped. Defaults to ".env".
	EnvFiles []string
	// Flags overrides keys with the flags of the same name that were set on
	// the command line, see FlagKeys.
	Flags *pflag.FlagSet
}

// FlagKeys maps the flags added by RegisterFlags to config keys.
var FlagKeys = map[string]string{
	"tcp-addr":     "tcp_addr",
	"http-addr":    "http_addr",
	"log-level":    "log_level",
	"audit-dir":    "audit.dir",
	"history-size": "history.size",
	"kafka-broker": "kafka.brokers",
	"kafka-topic":  "kafka.topic",
}

// RegisterFlags adds one override flag per entry of FlagKeys. Their defaults
// are empty; unset flags never shadow the file or the environment.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("tcp-addr", "", "line protocol listen address")
	fs.String("http-addr", "", "HTTP API listen address")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("audit-dir", "", "directory for the CSV audit trail")
	fs.Int("history-size", 0, "number of recent trades kept for TRADES")
	fs.StringSlice("kafka-broker", nil, "Kafka broker address, repeatable; enables the book event sink")
	fs.String("kafka-topic", "", "Kafka topic for book events")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tcp_addr", ":9001")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("audit.dir", "logs")
	v.SetDefault("audit.buffer", 4096)
	v.SetDefault("history.size", 1000)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "tradesim.book")
}

// Load reads the configuration and validates it.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFiles(opts.EnvFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName("tradesim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.TCPAddr == "" {
		return fmt.Errorf("%w: tcp_addr is required", ErrInvalidConfig)
	}
	if b := c.Audit.Buffer; b <= 0 || b&(b-1) != 0 {
		return fmt.Errorf("%w: audit.buffer must be a power of 2, got %d", ErrInvalidConfig, b)
	}
	if c.History.Size <= 0 {
		return fmt.Errorf("%w: history.size must be positive, got %d", ErrInvalidConfig, c.History.Size)
	}
	if c.KafkaEnabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("%w: kafka.topic is required when brokers are set", ErrInvalidConfig)
	}
	return nil
}

// KafkaEnabled reports whether book events should be published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
