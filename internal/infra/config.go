package infra

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации роутера.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки ops HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig описывает подключение к PostgreSQL (хранилище статистики и журнал вызовов).
// Пустой URL — работаем без базы.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub статусов). Пустой Addr — без Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CatalogConfig — YAML-каталог эндпоинтов (файл или директория).
type CatalogConfig struct {
	Path     string        `mapstructure:"path"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// EngineConfig содержит настройки исполнителя и автомата здоровья.
type EngineConfig struct {
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
	FailureThreshold   int           `mapstructure:"failure_threshold"`
	DegradedThreshold  time.Duration `mapstructure:"degraded_threshold"`
	MaxFailover        int           `mapstructure:"max_failover"`
	ResultCacheSize    int           `mapstructure:"result_cache_size"`
	ResultCacheTTL     time.Duration `mapstructure:"result_cache_ttl"`
	StatsFlushInterval time.Duration `mapstructure:"stats_flush_interval"`
}

// ProbeConfig — активные проверки. Interval 0 — периодических проверок нет.
type ProbeConfig struct {
	Workers  int           `mapstructure:"workers"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig — буфер и пакетная запись журнала вызовов.
type TelemetryConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// Без аргументов файл ищется в "." и "./configs".
func LoadConfig(searchPaths ...string) (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config") // имя файла без расширения
	v.SetConfigType("yaml")   // формат
	if len(searchPaths) == 0 {
		searchPaths = []string{".", "./configs"}
	}
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ловит конфигурации, с которыми роутер заведомо не поднимется
func (c *Config) Validate() error {
	if c.Catalog.Path == "" && c.Database.URL == "" {
		return errors.New("config: neither catalog.path nor database.url is set, no endpoint source")
	}
	if c.Engine.FailureThreshold < 1 {
		return errors.New("config: engine.failure_threshold must be >= 1")
	}
	if c.Engine.DegradedThreshold <= 0 {
		return errors.New("config: engine.degraded_threshold must be positive")
	}
	if c.Engine.StatsFlushInterval < 0 || c.Probe.Interval < 0 {
		return errors.New("config: engine.stats_flush_interval and probe.interval must not be negative (0 disables)")
	}
	if c.Telemetry.BatchSize < 1 || c.Telemetry.BufferSize < 1 {
		return errors.New("config: telemetry buffer_size and batch_size must be >= 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.watch", false)
	v.SetDefault("catalog.debounce", 500*time.Millisecond)

	v.SetDefault("engine.call_timeout", 30*time.Second)
	v.SetDefault("engine.failure_threshold", 3)
	v.SetDefault("engine.degraded_threshold", 5*time.Second)
	v.SetDefault("engine.max_failover", 3)
	v.SetDefault("engine.result_cache_size", 0)
	v.SetDefault("engine.result_cache_ttl", 0)
	v.SetDefault("engine.stats_flush_interval", 30*time.Second)

	v.SetDefault("probe.workers", 4)
	v.SetDefault("probe.interval", 0)
	v.SetDefault("probe.timeout", 15*time.Second)

	v.SetDefault("telemetry.buffer_size", 10000)
	v.SetDefault("telemetry.batch_size", 100)
	v.SetDefault("telemetry.flush_interval", 500*time.Millisecond)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}
