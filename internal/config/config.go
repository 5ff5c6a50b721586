package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	EventBus EventBusConfig `yaml:"eventbus"`
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

type StorageConfig struct {
	// BasePath корень дерева артефактов на диске.
	BasePath string `yaml:"base_path"`
	// PublicPrefix префикс URL, под которым дерево отдаётся наружу.
	PublicPrefix string `yaml:"public_prefix"`
}

type PipelineConfig struct {
	// Seed сид генерации шума для синтетических коллабораторов.
	Seed int64 `yaml:"seed"`
	// TileSizePx размер растра одной ячейки в пикселях.
	TileSizePx int `yaml:"tile_size_px"`
	// PreserveOverride определяет, остаётся ли пользовательская правка
	// landcover авторитетной при повторном прогоне пайплайна создания.
	PreserveOverride *bool `yaml:"preserve_override"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "TERRAGEN_REST_PORT", 7777)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "TERRAGEN_METRICS_PORT", 2112)
}

// GetBasePath возвращает корень хранилища с приоритетом: config -> env -> default
func (s *StorageConfig) GetBasePath() string {
	if s.BasePath != "" {
		return s.BasePath
	}
	if env := os.Getenv("TERRAGEN_TILES_PATH"); env != "" {
		return env
	}
	return "public/tiles"
}

// GetPublicPrefix возвращает URL-префикс публичного дерева артефактов
func (s *StorageConfig) GetPublicPrefix() string {
	if s.PublicPrefix != "" {
		return s.PublicPrefix
	}
	return "/tiles"
}

// GetSeed возвращает сид генерации; 0 в конфиге означает дефолт
func (p *PipelineConfig) GetSeed() int64 {
	if p.Seed != 0 {
		return p.Seed
	}
	return 42
}

// GetTileSizePx возвращает размер растра ячейки в пикселях
func (p *PipelineConfig) GetTileSizePx() int {
	if p.TileSizePx > 0 {
		return p.TileSizePx
	}
	return 256
}

// GetPreserveOverride возвращает политику сохранения override при повторном прогоне
func (p *PipelineConfig) GetPreserveOverride() bool {
	if p.PreserveOverride == nil {
		return true
	}
	return *p.PreserveOverride
}

// GetRetention возвращает срок хранения событий в стриме
func (e *EventBusConfig) GetRetention() time.Duration {
	if e.Retention > 0 {
		return time.Duration(e.Retention) * time.Hour
	}
	return 24 * time.Hour
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV TERRAGEN_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TERRAGEN_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
