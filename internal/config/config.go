package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Redis    RedisConfig    `yaml:"redis"`
	Provider ProviderConfig `yaml:"provider"`
	Log      LogConfig      `yaml:"log"`
}

type AppConfig struct {
	Name           string   `yaml:"name"`
	Env            string   `yaml:"env"`
	Port           int      `yaml:"port"`
	Debug          bool     `yaml:"debug"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimit      int      `yaml:"rate_limit"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type RedisConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Password    string        `yaml:"password"`
	HoldingsTTL time.Duration `yaml:"holdings_ttl"`
}

type ProviderConfig struct {
	BaseURL     string        `yaml:"base_url"`
	ClientID    string        `yaml:"client_id"`
	ConsumerKey string        `yaml:"consumer_key"`
	Timeout     time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) loadFromEnv() error {
	if env := os.Getenv("APP_ENV"); env != "" {
		c.App.Env = env
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.App.Port = p
		}
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		dbConfig, err := parseDatabaseURL(url)
		if err != nil {
			return err
		}
		c.Database = *dbConfig
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}

	if clientID := os.Getenv("SNAPTRADE_CLIENT_ID"); clientID != "" {
		c.Provider.ClientID = clientID
	}

	if consumerKey := os.Getenv("SNAPTRADE_CONSUMER_KEY"); consumerKey != "" {
		c.Provider.ConsumerKey = consumerKey
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		host, port, err := splitHostPort(addr)
		if err != nil {
			return err
		}
		c.Redis.Host = host
		c.Redis.Port = port
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}

	return nil
}

func (c *Config) validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.App.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if c.App.RateLimit <= 0 {
		c.App.RateLimit = 100
	}

	if c.Redis.HoldingsTTL <= 0 {
		c.Redis.HoldingsTTL = 5 * time.Minute
	}

	return nil
}

func splitHostPort(addr string) (string, int, error) {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("invalid redis address: %s", addr)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid redis port: %v", err)
	}
	return parts[0], port, nil
}

func parseDatabaseURL(url string) (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{
		SSLMode: "disable",
	}

	// Remove postgresql:// prefix if present
	url = strings.TrimPrefix(url, "postgresql://")
	url = strings.TrimPrefix(url, "postgres://")

	// Split credentials and host info
	parts := strings.Split(url, "@")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid database URL format")
	}

	// Parse credentials
	credentials := strings.Split(parts[0], ":")
	if len(credentials) != 2 {
		return nil, fmt.Errorf("invalid credentials format")
	}
	cfg.User = credentials[0]
	cfg.Password = credentials[1]

	// Parse host, port, and database name
	hostInfo := strings.Split(parts[1], "/")
	if len(hostInfo) != 2 {
		return nil, fmt.Errorf("invalid host info format")
	}

	hostPort := strings.Split(hostInfo[0], ":")
	if len(hostPort) != 2 {
		return nil, fmt.Errorf("invalid host/port format")
	}
	cfg.Host = hostPort[0]
	port, err := strconv.Atoi(hostPort[1])
	if err != nil {
		return nil, fmt.Errorf("invalid port number: %v", err)
	}
	cfg.Port = port

	// Parse database name and options
	dbNameOpts := strings.Split(hostInfo[1], "?")
	cfg.Name = dbNameOpts[0]

	if len(dbNameOpts) > 1 {
		opts := strings.Split(dbNameOpts[1], "&")
		for _, opt := range opts {
			kv := strings.Split(opt, "=")
			if len(kv) == 2 && kv[0] == "sslmode" {
				cfg.SSLMode = kv[1]
			}
		}
	}

	return cfg, nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
