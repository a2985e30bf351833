package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"agilekit/internal/infra/setup"
)

// 调度器和事件总线的可选实现
const (
	SchedulerAsynq = "asynq"
	SchedulerLocal = "local"
	EventBusRedis  = "redis"
	EventBusLocal  = "local"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBDriver   string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string // Redis key 和频道前缀

	JWTSecret      string
	JWTExpiryHours int

	ServerPort      string
	LogLevel        string
	AppEnv          string // development / production
	CORSOrigins     []string
	RateLimitMax    int
	RateLimitWindow time.Duration

	AutoRevealCountdown time.Duration
	RetentionDays       int
	RevealScheduler     string
	EventBus            string
	DemoEnabled         bool
}

// LoadConfig 先加载 envFile (不存在时忽略)，再从环境变量读取配置
func LoadConfig(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	cfg := &Config{
		DBDriver:        envString("DB_DRIVER", setup.DriverMySQL),
		DBUser:          os.Getenv("DB_USER"),
		DBPassword:      os.Getenv("DB_PASSWORD"),
		DBHost:          envString("DB_HOST", "localhost"),
		DBPort:          os.Getenv("DB_PORT"),
		DBName:          envString("DB_NAME", "agilekit"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:       envString("REDIS_KEY_PREFIX", "ak:"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		ServerPort:      envString("SERVER_PORT", "8080"),
		LogLevel:        envString("LOG_LEVEL", "info"),
		AppEnv:          envString("APP_ENV", "development"),
		RevealScheduler: envString("REVEAL_SCHEDULER", SchedulerAsynq),
		EventBus:        envString("EVENT_BUS", EventBusRedis),
	}
	for _, origin := range strings.Split(envString("CORS_ALLOWED_ORIGIN", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.JWTExpiryHours, err = envInt("JWT_EXPIRY_HOURS", 24); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = envInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", time.Second); err != nil {
		return nil, err
	}
	if cfg.AutoRevealCountdown, err = envDuration("AUTO_REVEAL_COUNTDOWN", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetentionDays, err = envInt("RETENTION_DAYS", 5); err != nil {
		return nil, err
	}
	if cfg.DemoEnabled, err = envBool("DEMO_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.DBPort == "" {
		cfg.DBPort = "3306"
		if cfg.DBDriver == setup.DriverPostgres {
			cfg.DBPort = "5432"
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	switch c.DBDriver {
	case setup.DriverMySQL, setup.DriverPostgres, setup.DriverMemory:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.RevealScheduler != SchedulerAsynq && c.RevealScheduler != SchedulerLocal {
		return fmt.Errorf("unsupported REVEAL_SCHEDULER %q", c.RevealScheduler)
	}
	if c.EventBus != EventBusRedis && c.EventBus != EventBusLocal {
		return fmt.Errorf("unsupported EVENT_BUS %q", c.EventBus)
	}
	if c.AutoRevealCountdown <= 0 || c.RetentionDays <= 0 {
		return fmt.Errorf("AUTO_REVEAL_COUNTDOWN and RETENTION_DAYS must be positive")
	}

	// 非法日志级别回退到 info
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", c.LogLevel)
		c.LogLevel = "info"
	}
	return nil
}

// DSN 根据驱动构建数据库连接字符串
func (c *Config) DSN() string {
	if c.DBDriver == setup.DriverPostgres {
		return setup.PostgresDSN(c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
	}
	return setup.MySQLDSN(c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// Retention 返回房间的保留时长
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return n, nil
}

// envDuration 接受 time.ParseDuration 格式，纯数字按秒处理
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a duration: %w", key, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("environment variable %s must be a boolean: %w", key, err)
	}
	return b, nil
}
