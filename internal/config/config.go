package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"prod"`
	HTTPServer `yaml:"http_server"`

	// DatabaseDSN is the go-sql-driver DSN; parseTime=true is required so
	// DATE/DATETIME columns scan into time.Time.
	DatabaseDSN string `yaml:"database_dsn" env:"DATABASE_DSN" env-default:"bitzer:bitzer123@tcp(localhost:3306)/orders_db?parseTime=true"`

	// OrdersDir is the default archive root (subfolders like 01-2020).
	OrdersDir string `yaml:"orders_dir" env:"ORDERS_DIR" env-default:"./Orders"`

	AdminLogin string `yaml:"admin_login" env:"ADMIN_LOGIN" env-default:"admin"`
	AdminPass  string `yaml:"admin_pass" env:"ADMIN_PASS"`
}

type HTTPServer struct {
	Address        string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:4001"`
	Timeout        time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"4s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-default:"http://localhost:3000"`
}

// MustConfig reads CONFIG_PATH (default ./config/local.yaml) and falls back
// to environment variables alone when no config file exists, so the importer
// CLI can run on a bare DATABASE_DSN.
func MustConfig() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/local.yaml"
	}

	var cfg Config

	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			log.Fatalf("cannot read config %s: %s", configPath, err)
		}
		return &cfg
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("cannot read config from env: %s", err)
	}

	return &cfg
}
