package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Storage backend names
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendMySQL = "mysql"
)

// Config holds all configuration for the application
type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

// TelegramConfig holds bot credentials and polling settings
type TelegramConfig struct {
	ControlToken   string `mapstructure:"control_token"`
	AdminID        int64  `mapstructure:"admin_id"`
	ForwarderToken string `mapstructure:"forwarder_token"`
	PollTimeout    int    `mapstructure:"poll_timeout"`
	Debug          bool   `mapstructure:"debug"`
}

// StorageConfig selects where the rule snapshot lives
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	FilePath   string `mapstructure:"file_path"`
	RecordName string `mapstructure:"record_name"`
	SeedFile   string `mapstructure:"seed_file"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr          string        `mapstructure:"addr"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	Key           string        `mapstructure:"key"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	PingTimeout   time.Duration `mapstructure:"ping_timeout"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	ConnectTries  int           `mapstructure:"connect_tries"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AdminToken   string        `mapstructure:"admin_token"`
}

// SchedulerConfig holds periodic job configuration
type SchedulerConfig struct {
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	SuperviseInterval time.Duration `mapstructure:"supervise_interval"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration from environment variables and a config
// file in the working directory or ./config
func LoadConfig() (*Config, error) {
	return Load(".", "./config")
}

// Load reads config.yaml from the first of paths that has one, then applies
// environment overrides
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("telegram.debug", false)

	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.file_path", "data/config.json")
	v.SetDefault("storage.record_name", "default")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key", "telegram-forwarder:config")
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.ping_timeout", "5s")
	v.SetDefault("redis.retry_interval", "2s")
	v.SetDefault("redis.connect_tries", 5)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("scheduler.refresh_interval", "30s")
	v.SetDefault("scheduler.supervise_interval", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	// Telegram
	v.BindEnv("telegram.control_token", "CONTROL_BOT_TOKEN", "BOT_TOKEN")
	v.BindEnv("telegram.admin_id", "ADMIN_ID")
	v.BindEnv("telegram.forwarder_token", "FORWARDER_BOT_TOKEN")
	v.BindEnv("telegram.poll_timeout", "TELEGRAM_POLL_TIMEOUT")
	v.BindEnv("telegram.debug", "TELEGRAM_DEBUG")

	// Storage
	v.BindEnv("storage.backend", "STORAGE_BACKEND")
	v.BindEnv("storage.file_path", "CONFIG_FILE_PATH")
	v.BindEnv("storage.record_name", "STORAGE_RECORD_NAME")
	v.BindEnv("storage.seed_file", "SEED_FILE")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")

	// Redis
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.username", "REDIS_USERNAME")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("redis.key", "REDIS_KEY")

	// Server
	v.BindEnv("server.enabled", "SERVER_ENABLED")
	v.BindEnv("server.port", "SERVER_PORT", "PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.admin_token", "ADMIN_API_TOKEN")

	// Scheduler
	v.BindEnv("scheduler.refresh_interval", "SCHEDULER_REFRESH_INTERVAL")
	v.BindEnv("scheduler.supervise_interval", "SCHEDULER_SUPERVISE_INTERVAL")

	// Logging
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Telegram.ControlToken == "" {
		return fmt.Errorf("control bot token is required")
	}
	if c.Telegram.AdminID == 0 {
		return fmt.Errorf("admin id is required")
	}

	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.FilePath == "" {
			return fmt.Errorf("storage file path is required for the file backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" || c.Redis.Key == "" {
			return fmt.Errorf("redis addr and key are required for the redis backend")
		}
	case BackendMySQL:
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required for the mysql backend")
		}
		if c.Storage.RecordName == "" {
			return fmt.Errorf("storage record name is required for the mysql backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Server.Enabled && c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Scheduler.RefreshInterval <= 0 {
		return fmt.Errorf("scheduler refresh interval must be greater than 0")
	}
	if c.Scheduler.SuperviseInterval <= 0 {
		return fmt.Errorf("scheduler supervise interval must be greater than 0")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	return nil
}
