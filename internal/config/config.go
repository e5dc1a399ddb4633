// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Repository RepositoryConfig `yaml:"repository"`
	Sync       SyncConfig       `yaml:"sync"`
	Worker     WorkerConfig     `yaml:"worker"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int           `yaml:"max_connections"`
	MinConnections int           `yaml:"min_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

type LoggingConfig struct {
	Development bool `yaml:"development"`
}

type RepositoryConfig struct {
	Type string `yaml:"type"` // "postgres" или "inmemory"
}

type SyncConfig struct {
	// сколько записей change log отдаём за один pull
	PullBatchSize int `yaml:"pull_batch_size"`
	// дефолтный срок follow-up для waiting, в днях
	WaitingDays int `yaml:"waiting_days"`
}

type WorkerConfig struct {
	// cron-выражение фоновой проверки check-in'ов
	CheckinSchedule string `yaml:"checkin_schedule"`
	BatchSize       int    `yaml:"batch_size"`
}

func Load() (*Config, error) {
	file, err := os.Open("config.yml")
	if err != nil {
		return nil, fmt.Errorf("не могу открыть config.yml: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга config.yml: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.PullBatchSize <= 0 {
		c.Sync.PullBatchSize = 500
	}
	if c.Sync.WaitingDays <= 0 {
		c.Sync.WaitingDays = 3
	}
	if c.Worker.CheckinSchedule == "" {
		c.Worker.CheckinSchedule = "@every 5m"
	}
	if c.Worker.BatchSize <= 0 {
		c.Worker.BatchSize = 100
	}
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
