package config

import (
	"os"
	"strconv"
	"time"

	"github.com/LJTian/InsightHub/internal/logger"
	"github.com/LJTian/InsightHub/internal/processor"
)

// RulesMinImpact 表示沿用规则文件里的截断阈值；0 是合法阈值
const RulesMinImpact = -1

type Config struct {
	AppPort string

	PostgresDSN string
	SQLitePath  string
	RedisAddr   string

	CronSpec string

	SourcesPath string
	RulesPath   string

	FetchWorkers int
	FetchTimeout time.Duration
	FetchLimit   int
	MinImpact    int
	CacheTTL     time.Duration
	Timezone     string

	LogLevel string

	BasicAuthUser string
	BasicAuthPass string
}

func Load() *Config {
	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "research.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		CronSpec:      getEnv("CRON_SPEC", "0 */4 * * *"),
		SourcesPath:   getEnv("SOURCES_PATH", "sources.csv"),
		RulesPath:     getEnv("RULES_PATH", ""),
		FetchWorkers:  getEnvInt("FETCH_WORKERS", 8),
		FetchTimeout:  getEnvDuration("FETCH_TIMEOUT", 15*time.Second),
		FetchLimit:    getEnvInt("FETCH_LIMIT", 10),
		MinImpact:     getEnvMinImpact("MIN_IMPACT"),
		CacheTTL:      getEnvDuration("CACHE_TTL", 4*time.Hour),
		Timezone:      getEnv("TIMEZONE", "UTC"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		BasicAuthUser: getEnv("APP_BASIC_USER", ""),
		BasicAuthPass: getEnv("APP_BASIC_PASS", ""),
	}

	logger.Component("config").
		WithField("port", cfg.AppPort).
		WithField("cron", cfg.CronSpec).
		WithField("sources", cfg.SourcesPath).
		Info("config loaded")
	return cfg
}

// Location 解析时区，非法值回退到 UTC
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		logger.Component("config").Warnf("unknown timezone %q, using UTC", c.Timezone)
		return time.UTC
	}
	return loc
}

// Rules 未配置 RULES_PATH 时使用内置规则；MinImpact 非负时覆盖截断阈值
func (c *Config) Rules() (processor.Rules, error) {
	r := processor.DefaultRules()
	if c.RulesPath != "" {
		loaded, err := processor.LoadRules(c.RulesPath)
		if err != nil {
			return processor.Rules{}, err
		}
		r = loaded
	}
	if c.MinImpact >= 0 {
		r.MinImpact = c.MinImpact
		if err := r.Validate(); err != nil {
			return processor.Rules{}, err
		}
	}
	return r, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		logger.Component("config").Warnf("invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

// getEnvMinImpact 未设置或非法时返回 RulesMinImpact
func getEnvMinImpact(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return RulesMinImpact
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < RulesMinImpact {
		logger.Component("config").Warnf("invalid %s=%q, using ruleset cutoff", key, v)
		return RulesMinImpact
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.Component("config").Warnf("invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

// Now returns current time, 方便后续做可测试封装
func Now() time.Time {
	return time.Now()
}
