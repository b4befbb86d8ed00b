package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"tourism_media/internal/domain/models"
)

type Config struct {
	Env         string            `yaml:"env" env:"ENV" env-default:"local"`
	DSN         string            `yaml:"dsn" env:"DSN" env-required:"true"`
	HTTP        HTTPConfig        `yaml:"http"`
	FileStorage FileStorageConfig `yaml:"file_storage"`
	Moderation  ModerationConfig  `yaml:"moderation"`
	Redis       RedisConf         `yaml:"redis"`
	Views       ViewsConfig       `yaml:"views"`
	Gallery     GalleryConfig     `yaml:"gallery"`
	Auth        AuthConfig        `yaml:"auth"`
}

type HTTPConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

type FileStorageConfig struct {
	BaseDir          string        `yaml:"base_dir" env-default:"./uploads"`
	BaseURL          string        `yaml:"base_url" env-default:"http://localhost:8080/uploads"`
	MaxSize          int64         `yaml:"max_size" env-default:"10485760"`
	AllowedMimeTypes []string      `yaml:"allowed_mime_types" env-default:"image/jpeg,image/png,image/webp"`
	OrphanTTL        time.Duration `yaml:"orphan_ttl" env-default:"1h"`
	SweepInterval    time.Duration `yaml:"sweep_interval" env-default:"15m"`
}

type ModerationConfig struct {
	Endpoint             string        `yaml:"endpoint" env:"MODERATION_ENDPOINT" env-required:"true"`
	APIKey               string        `yaml:"api_key" env:"MODERATION_API_KEY"`
	Timeout              time.Duration `yaml:"timeout" env-default:"5s"`
	AutoApproveThreshold float64       `yaml:"auto_approve_threshold" env-default:"0.1"`
	AutoRejectThreshold  float64       `yaml:"auto_reject_threshold" env-default:"0.8"`
	PerCategoryThreshold float64       `yaml:"per_category_threshold" env-default:"0.7"`
	CacheSize            int           `yaml:"cache_size" env-default:"1024"`
	CacheTTL             time.Duration `yaml:"cache_ttl" env-default:"10m"`
}

type RedisConf struct {
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env-default:"0"`
}

type ViewsConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval" env-default:"30s"`
}

type GalleryConfig struct {
	// CacheTTL страховка на случай потерянного события сброса, больше 10s не бывает
	CacheTTL time.Duration `yaml:"cache_ttl" env-default:"5s"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	SessionSecret string `yaml:"session_secret" env:"SESSION_SECRET" env-required:"true"`
}

// Policy собирает пороги модерации в доменную политику
func (c ModerationConfig) Policy() models.ModerationPolicy {
	return models.ModerationPolicy{
		AutoApproveThreshold: c.AutoApproveThreshold,
		AutoRejectThreshold:  c.AutoRejectThreshold,
		PerCategoryThreshold: c.PerCategoryThreshold,
	}
}

func (c FileStorageConfig) UploadPolicy() models.UploadPolicy {
	return models.UploadPolicy{
		AllowedMimeTypes: c.AllowedMimeTypes,
		MaxFileSize:      c.MaxSize,
	}
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	return MustLoadPath(path)
}

func MustLoadPath(configPath string) *Config {
	cfg, err := LoadPath(configPath)
	if err != nil {
		panic(err.Error())
	}

	return cfg
}

// LoadPath читает конфиг и проверяет пороги модерации
func LoadPath(configPath string) (*Config, error) {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.New("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	if err := cfg.Moderation.Policy().Validate(); err != nil {
		return nil, fmt.Errorf("invalid moderation thresholds: %w", err)
	}

	return &cfg, nil
}

func fetchConfigPath() string {
	var res string

	// --config="path/to/config.yaml"
	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
