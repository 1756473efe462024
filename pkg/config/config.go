package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"budgetPilot/business/bandit"
	"budgetPilot/business/changequeue"
	"budgetPilot/business/decisionloop"
	"budgetPilot/business/fatigue"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Platform PlatformConfig
	Refresh  RefreshConfig
	Patterns PatternConfig
	Influx   InfluxConfig
	Otel     OtelConfig
	Tuning   Tuning
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

type ServerConfig struct {
	Port string
}

type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `validate:"oneof=postgres memory"`
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	// PoolSize 0 sizes the pool to the queue workers
	PoolSize int
	Timeout  time.Duration
}

type PlatformConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type RefreshConfig struct {
	WebhookURL      string
	WebhookUsername string
	WebhookPassword string
}

type PatternConfig struct {
	// DBPath is the badger directory; empty keeps the vector log in memory.
	DBPath    string
	CacheSize int
}

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type OtelConfig struct {
	CollectorEndpoint string
	SamplingRate      float64
}

// Tuning is the decision-making configuration. It is read once at startup
// and handed to each component by value.
type Tuning struct {
	Bandit  bandit.Config       `yaml:"bandit"`
	Fatigue fatigue.Config      `yaml:"fatigue"`
	Queue   changequeue.Config  `yaml:"queue"`
	Loop    decisionloop.Config `yaml:"loop"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Bandit:  bandit.DefaultConfig(),
		Fatigue: fatigue.DefaultConfig(),
		Queue:   changequeue.DefaultConfig(),
		Loop:    decisionloop.DefaultConfig(),
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "budget-pilot"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", StoragePostgres),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "budget_pilot"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			RedisHost:     getEnv("REDIS_HOST", ""),
			RedisPort:     getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
		},
		Platform: PlatformConfig{
			BaseURL: getEnv("PLATFORM_BASE_URL", ""),
			APIKey:  getEnv("PLATFORM_API_KEY", ""),
		},
		Refresh: RefreshConfig{
			WebhookURL:      getEnv("REFRESH_WEBHOOK_URL", ""),
			WebhookUsername: getEnv("REFRESH_WEBHOOK_USER", ""),
			WebhookPassword: getEnv("REFRESH_WEBHOOK_PASSWORD", ""),
		},
		Patterns: PatternConfig{
			DBPath: getEnv("PATTERN_DB_PATH", ""),
		},
		Influx: InfluxConfig{
			URL:    getEnv("INFLUXDB_URL", ""),
			Token:  getEnv("INFLUXDB_TOKEN", ""),
			Org:    getEnv("INFLUXDB_ORG", ""),
			Bucket: getEnv("INFLUXDB_BUCKET", ""),
		},
		Otel: OtelConfig{
			CollectorEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", ""),
		},
	}

	var err error
	if cfg.Redis.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.PoolSize, err = getEnvInt("REDIS_POOL_SIZE", 0); err != nil {
		return nil, err
	}
	redisTimeoutMs, err := getEnvInt("REDIS_TIMEOUT_MS", 500)
	if err != nil {
		return nil, err
	}
	cfg.Redis.Timeout = time.Duration(redisTimeoutMs) * time.Millisecond
	timeoutMs, err := getEnvInt("PLATFORM_TIMEOUT_MS", 10000)
	if err != nil {
		return nil, err
	}
	cfg.Platform.Timeout = time.Duration(timeoutMs) * time.Millisecond
	if cfg.Patterns.CacheSize, err = getEnvInt("PATTERN_CACHE_SIZE", 1024); err != nil {
		return nil, err
	}
	if cfg.Otel.SamplingRate, err = getEnvFloat("OTEL_SAMPLING_RATE", 1.0); err != nil {
		return nil, err
	}

	cfg.Tuning, err = LoadTuning(getEnv("TUNING_FILE", ""))
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Driver == StoragePostgres && cfg.Database.Password == "" {
		return nil, errors.New("missing database password")
	}

	if err := validator.New().Struct(cfg.Storage); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	return cfg, nil
}

// LoadTuning layers defaults, the optional YAML file and environment
// overrides, in that order, then validates the result.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Tuning{}, fmt.Errorf("read tuning file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return Tuning{}, fmt.Errorf("parse tuning file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&t); err != nil {
		return Tuning{}, err
	}

	t.Queue = t.Queue.Normalize()
	// one reward mode drives both the allocator and the flatline rule
	t.Fatigue.Mode = string(t.Bandit.Mode)

	v := validator.New()
	for name, section := range map[string]any{
		"bandit":  t.Bandit,
		"fatigue": t.Fatigue,
		"queue":   t.Queue,
		"loop":    t.Loop,
	} {
		if err := v.Struct(section); err != nil {
			return Tuning{}, fmt.Errorf("invalid %s tuning: %w", name, err)
		}
	}
	return t, nil
}

func applyEnvOverrides(t *Tuning) error {
	floats := []struct {
		key string
		dst *float64
	}{
		{"IGNORANCE_ZONE_DAYS", &t.Bandit.IgnoranceZoneDays},
		{"KILL_THRESHOLD", &t.Bandit.KillThreshold},
		{"SCALE_THRESHOLD", &t.Bandit.ScaleThreshold},
		{"PROXY_HALF_LIFE_DAYS", &t.Bandit.ProxyHalfLifeDays},
		{"CONTEXT_BOOST_CAP", &t.Bandit.ContextBoostCap},
		{"PLATFORM_RATE_PER_SEC", &t.Queue.RatePerSecond},
	}
	for _, f := range floats {
		val, err := getEnvFloat(f.key, *f.dst)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_ATTEMPTS", &t.Queue.MaxAttempts},
		{"WORKER_COUNT", &t.Queue.Workers},
	}
	for _, i := range ints {
		val, err := getEnvInt(i.key, *i.dst)
		if err != nil {
			return err
		}
		*i.dst = val
	}

	durations := []struct {
		key  string
		unit time.Duration
		dst  *time.Duration
	}{
		{"JITTER_MIN_MS", time.Millisecond, &t.Queue.JitterMin},
		{"JITTER_MAX_MS", time.Millisecond, &t.Queue.JitterMax},
		{"CLAIM_LEASE_SECONDS", time.Second, &t.Queue.ClaimLease},
	}
	for _, d := range durations {
		n, err := getEnvInt(d.key, int(*d.dst/d.unit))
		if err != nil {
			return err
		}
		*d.dst = time.Duration(n) * d.unit
	}

	t.Queue.WorkerIDPrefix = getEnv("WORKER_ID_PREFIX", t.Queue.WorkerIDPrefix)
	t.Bandit.Mode = bandit.Mode(getEnv("ALLOCATION_MODE", string(t.Bandit.Mode)))

	if raw := os.Getenv("LOOP_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid LOOP_INTERVAL %q: %w", raw, err)
		}
		t.Loop.LoopInterval = d
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return f, nil
}
