package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Workers  WorkersConfig  `yaml:"workers"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadSize   int64         `yaml:"max_upload_size"`
	AllowedOrigin   string        `yaml:"allowed_origin"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
	AutoMigrate        bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	Password            string `yaml:"password"`
	DB                  int    `yaml:"db"`
	PoolSize            int    `yaml:"pool_size"`
	StudentQueue        string `yaml:"student_queue"`
	EventQueue          string `yaml:"event_queue"`
	DLQSuffix           string `yaml:"dlq_suffix"`
	DLQMaxLen           int64  `yaml:"dlq_max_len"`
	NotificationChannel string `yaml:"notification_channel"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	AdminRole string `yaml:"admin_role"`
}

type WorkersConfig struct {
	Import ImportWorkerConfig `yaml:"import"`
}

type ImportWorkerConfig struct {
	Count         int           `yaml:"count"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// TrackerConfig bounds how long an open batch may wait for its rows.
type TrackerConfig struct {
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	// .env is optional; values already in the environment win.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document, applies environment overrides and fills
// defaults for anything left unset.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"JWT_SECRET":     &c.Auth.JWTSecret,
		"DB_PASSWORD":    &c.Database.Password,
		"REDIS_PASSWORD": &c.Redis.Password,
		"S3_ACCESS_KEY":  &c.Storage.S3.AccessKey,
		"S3_SECRET_KEY":  &c.Storage.S3.SecretKey,
	}
	for key, target := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*target = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxUploadSize == 0 {
		c.Server.MaxUploadSize = 10 << 20
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Loc == "" {
		c.Database.Loc = "UTC"
	}
	if c.Redis.StudentQueue == "" {
		c.Redis.StudentQueue = "studentQueue"
	}
	if c.Redis.EventQueue == "" {
		c.Redis.EventQueue = "studentQueue:events"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.Redis.DLQMaxLen == 0 {
		c.Redis.DLQMaxLen = 100
	}
	if c.Redis.NotificationChannel == "" {
		c.Redis.NotificationChannel = "notifications:"
	}
	if c.Auth.AdminRole == "" {
		c.Auth.AdminRole = "admin"
	}
	if c.Workers.Import.Count == 0 {
		c.Workers.Import.Count = 4
	}
	if c.Workers.Import.RetryAttempts == 0 {
		c.Workers.Import.RetryAttempts = 3
	}
	if c.Workers.Import.RetryDelay == 0 {
		c.Workers.Import.RetryDelay = 500 * time.Millisecond
	}
	if c.Tracker.BatchTimeout == 0 {
		c.Tracker.BatchTimeout = 30 * time.Minute
	}
	if c.Tracker.SweepInterval == 0 {
		c.Tracker.SweepInterval = time.Minute
	}
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
