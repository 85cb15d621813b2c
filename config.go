package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          string         `yaml:"port"`
	SessionSecret string         `yaml:"session_secret"`
	AdminPassword string         `yaml:"admin_password"`
	SecureCookies bool           `yaml:"secure_cookies"`
	PublicDir     string         `yaml:"public_dir"`
	SiteTitle     string         `yaml:"site_title"`
	LogLevel      string         `yaml:"log_level"`
	LogFormat     string         `yaml:"log_format"` // text|json
	Database      DatabaseConfig `yaml:"database"`

	// generatedSecret is set when SessionSecret was filled in at startup.
	generatedSecret bool
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite|postgres
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	PoolSize int    `yaml:"pool_size"`
	Seed     bool   `yaml:"seed"`
}

func defaultConfig() *Config {
	return &Config{
		Port:      "3000",
		PublicDir: "public",
		SiteTitle: "Portfolio Hub",
		LogLevel:  "info",
		LogFormat: "text",
		Database: DatabaseConfig{
			Driver:   "sqlite",
			Path:     "portfolio.db",
			Host:     "localhost",
			Port:     "5432",
			PoolSize: 10,
		},
	}
}

// loadConfig builds the configuration from defaults, an optional YAML file
// and the environment, in that order of precedence.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"PORT":           &c.Port,
		"SESSION_SECRET": &c.SessionSecret,
		"ADMIN_PASSWORD": &c.AdminPassword,
		"PUBLIC_DIR":     &c.PublicDir,
		"SITE_TITLE":     &c.SiteTitle,
		"LOG_LEVEL":      &c.LogLevel,
		"LOG_FORMAT":     &c.LogFormat,
		"DB_DRIVER":      &c.Database.Driver,
		"DB_PATH":        &c.Database.Path,
		"DB_HOST":        &c.Database.Host,
		"DB_PORT":        &c.Database.Port,
		"DB_USER":        &c.Database.User,
		"DB_PASSWORD":    &c.Database.Password,
		"DB_NAME":        &c.Database.Name,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"SECURE_COOKIES": &c.SecureCookies,
		"DB_SEED":        &c.Database.Seed,
	}
	for key, dst := range bools {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = b
	}

	if v := os.Getenv("DB_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing DB_POOL_SIZE: %w", err)
		}
		c.Database.PoolSize = n
	}

	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("port must not be empty")
	}
	if c.AdminPassword == "" {
		return errors.New("ADMIN_PASSWORD must be set")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("sqlite driver requires DB_PATH")
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			return errors.New("postgres driver requires DB_HOST and DB_NAME")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Database.PoolSize <= 0 {
		return errors.New("DB_POOL_SIZE must be > 0")
	}

	if c.SessionSecret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generating session secret: %w", err)
		}
		c.SessionSecret = hex.EncodeToString(secret)
		c.generatedSecret = true
	}

	return nil
}

func (c *Config) Addr() string {
	return ":" + c.Port
}
