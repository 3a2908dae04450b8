package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Режимы коллабораторов
const (
	CollaboratorsLocal  = "local"
	CollaboratorsRemote = "remote"
)

// Config хранит все настройки приложения
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Session       SessionConfig
	Collaborators CollaboratorsConfig
	Email         EmailConfig
	CORS          CORSConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт).
	// Для 'single', если не пуст, используется первый адрес из списка.
	Addrs []string `mapstructure:"addrs"`

	// Addr: адрес для режима 'single', если Addrs пустой.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"` // мс
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"` // мс
}

// JWTConfig содержит настройки токенов учащихся и WS-тикетов
type JWTConfig struct {
	Secret            string `mapstructure:"secret"`
	Issuer            string `mapstructure:"issuer"`
	TokenTTLHrs       int    `mapstructure:"tokenTTLHrs"`
	WSTicketExpirySec int    `mapstructure:"wsTicketExpirySec"`
}

// SessionConfig содержит настройки сессий прохождения оценок
type SessionConfig struct {
	TickIntervalMs        int     `mapstructure:"tickIntervalMs"`
	PassThreshold         float64 `mapstructure:"passThreshold"`
	SubmitTimeoutSec      int     `mapstructure:"submitTimeoutSec"`
	EvaluationCacheTTLSec int     `mapstructure:"evaluationCacheTTLSec"`
	LockTTLSec            int     `mapstructure:"lockTTLSec"`
	HistoryLimit          int     `mapstructure:"historyLimit"`
	CompletedRetentionMin int     `mapstructure:"completedRetentionMin"`
	MaxSessionAgeHrs      int     `mapstructure:"maxSessionAgeHrs"`
}

// CollaboratorsConfig выбирает реализацию поставщика оценок, сервиса оценивания и истории
type CollaboratorsConfig struct {
	// Mode: "local" - встроенный сервис на PostgreSQL, "remote" - HTTP-клиент
	Mode       string `mapstructure:"mode"`
	BaseURL    string `mapstructure:"baseURL"`
	TimeoutSec int    `mapstructure:"timeoutSec"`
	// ServiceKey защищает эндпоинты коллабораторов и передается удаленным клиентом
	ServiceKey string `mapstructure:"serviceKey"`
}

// EmailConfig содержит настройки писем с результатом
type EmailConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ResendAPIKey string `mapstructure:"resendAPIKey"`
	From         string `mapstructure:"from"`
}

// CORSConfig общий для CORS и проверки origin WebSocket
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// TickInterval возвращает период тика обратного отсчета
func (s SessionConfig) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMs) * time.Millisecond
}

// SubmitTimeout возвращает таймаут одного запроса к сервису оценивания
func (s SessionConfig) SubmitTimeout() time.Duration {
	return time.Duration(s.SubmitTimeoutSec) * time.Second
}

// LockTTL возвращает время жизни блокировки отправки
func (s SessionConfig) LockTTL() time.Duration {
	return time.Duration(s.LockTTLSec) * time.Second
}

// EvaluationCacheTTL возвращает время жизни оценки в кеше
func (s SessionConfig) EvaluationCacheTTL() time.Duration {
	return time.Duration(s.EvaluationCacheTTLSec) * time.Second
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.readTimeout", 15)
	vip.SetDefault("server.writeTimeout", 15)

	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")

	vip.SetDefault("redis.mode", "single")

	vip.SetDefault("jwt.issuer", "evaluation-api")
	vip.SetDefault("jwt.tokenTTLHrs", 24)
	vip.SetDefault("jwt.wsTicketExpirySec", 60)

	vip.SetDefault("session.tickIntervalMs", 1000)
	vip.SetDefault("session.passThreshold", 70.0)
	vip.SetDefault("session.submitTimeoutSec", 15)
	vip.SetDefault("session.evaluationCacheTTLSec", 300)
	vip.SetDefault("session.lockTTLSec", 300)
	vip.SetDefault("session.historyLimit", 100)
	vip.SetDefault("session.completedRetentionMin", 30)
	vip.SetDefault("session.maxSessionAgeHrs", 24)

	vip.SetDefault("collaborators.mode", CollaboratorsLocal)
	vip.SetDefault("collaborators.timeoutSec", 10)

	vip.SetDefault("email.enabled", false)
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Новый экземпляр Viper, чтобы избежать глобального состояния

	setDefaults(vip)

	// Переменные окружения привязываются явно
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("jwt.secret", "JWT_SECRET")
	vip.BindEnv("jwt.issuer", "JWT_ISSUER")
	vip.BindEnv("jwt.tokenTTLHrs", "JWT_TOKENTTLHRS")
	vip.BindEnv("jwt.wsTicketExpirySec", "JWT_WSTICKETEXPIRYSEC")

	vip.BindEnv("session.passThreshold", "SESSION_PASSTHRESHOLD")
	vip.BindEnv("session.submitTimeoutSec", "SESSION_SUBMITTIMEOUTSEC")

	vip.BindEnv("collaborators.mode", "COLLABORATORS_MODE")
	vip.BindEnv("collaborators.baseURL", "COLLABORATORS_BASEURL")
	vip.BindEnv("collaborators.serviceKey", "COLLABORATORS_SERVICEKEY")

	vip.BindEnv("email.enabled", "EMAIL_ENABLED")
	vip.BindEnv("email.resendAPIKey", "RESEND_API_KEY")
	vip.BindEnv("email.from", "EMAIL_FROM")

	vip.BindEnv("server.port", "SERVER_PORT")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		// Файла может не быть: значения придут из окружения и умолчаний
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Mode: %s", cfg.Redis.Mode)
		log.Printf("Collaborators Mode: %s", cfg.Collaborators.Mode)
		log.Printf("Session Tick: %dms, Pass Threshold: %.1f%%", cfg.Session.TickIntervalMs, cfg.Session.PassThreshold)
		log.Printf("Email Enabled: %t", cfg.Email.Enabled)
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 bytes (check JWT_SECRET env var)")
	}
	if c.Session.TickIntervalMs <= 0 {
		return fmt.Errorf("session tick interval must be positive, got %d", c.Session.TickIntervalMs)
	}
	if c.Session.PassThreshold < 0 || c.Session.PassThreshold > 100 {
		return fmt.Errorf("session pass threshold must be within 0..100, got %.2f", c.Session.PassThreshold)
	}

	switch c.Collaborators.Mode {
	case CollaboratorsLocal:
		// База нужна только встроенным коллабораторам
		if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
			return fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
		}
	case CollaboratorsRemote:
		if c.Collaborators.BaseURL == "" {
			return fmt.Errorf("collaborators base URL is required in remote mode (check COLLABORATORS_BASEURL env var)")
		}
	default:
		return fmt.Errorf("unsupported collaborators mode: %q", c.Collaborators.Mode)
	}

	if c.Email.Enabled && (c.Email.ResendAPIKey == "" || c.Email.From == "") {
		return fmt.Errorf("email is enabled but RESEND_API_KEY or EMAIL_FROM is not set")
	}
	return nil
}
