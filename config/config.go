package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/farellandr/ucshop/internal/models"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// Proxies allowed to set X-Forwarded-For. Empty trusts none.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	JWTSecret      string `env:"JWT_SECRET,required,notEmpty"`
	SettingsKey    string `env:"SETTINGS_KEY,required,notEmpty"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`

	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	KafkaBrokers    []string      `env:"KAFKA_BROKERS" envSeparator:","`
	CallbackLockTTL time.Duration `env:"CALLBACK_LOCK_TTL" envDefault:"30s"`

	GatewayTimeout     time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	GatewayCurrency    string        `env:"GATEWAY_CURRENCY" envDefault:"TL"`
	GatewayLocale      string        `env:"GATEWAY_LOCALE" envDefault:"tr"`
	GatewayCallbackURL string        `env:"GATEWAY_CALLBACK_URL"`
	GatewayReturnURL   string        `env:"GATEWAY_RETURN_URL"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
	)
}

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if cfg.LogDevelopment {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	if err := enableUUIDExtension(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return models.Migrate(db)
}
