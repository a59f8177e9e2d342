/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payments service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                     string  `mapstructure:"SERVER_PORT"`
	DatabaseURL                    string  `mapstructure:"DATABASE_URL"`
	RedisURL                       string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix           string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                    string  `mapstructure:"RABBITMQ_URL"`
	JWTSecret                      string  `mapstructure:"JWT_SECRET"`
	MPAPIBaseURL                   string  `mapstructure:"MP_API_BASE_URL"`
	MPAccessToken                  string  `mapstructure:"MP_ACCESS_TOKEN"`
	CommissionRatePercent          float64 `mapstructure:"COMMISSION_RATE_PERCENT"`
	EscrowHoldHours                int     `mapstructure:"ESCROW_HOLD_HOURS"`
	MaxPaymentAmount               int64   `mapstructure:"MAX_PAYMENT_AMOUNT"`
	GenerationHorizonDays          int     `mapstructure:"GENERATION_HORIZON_DAYS"`
	EscrowReleaseJobSchedule       string  `mapstructure:"ESCROW_RELEASE_JOB_SCHEDULE"`
	RecurringGenerationJobSchedule string  `mapstructure:"RECURRING_GENERATION_JOB_SCHEDULE"`
	WebhookRateLimitPerMinute      int     `mapstructure:"WEBHOOK_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "servipagos:rate_limit")
	viper.SetDefault("MP_API_BASE_URL", "https://api.mercadopago.com")
	viper.SetDefault("COMMISSION_RATE_PERCENT", 10.0)
	viper.SetDefault("ESCROW_HOLD_HOURS", 24)
	viper.SetDefault("MAX_PAYMENT_AMOUNT", 1_000_000)
	viper.SetDefault("GENERATION_HORIZON_DAYS", 30)
	viper.SetDefault("ESCROW_RELEASE_JOB_SCHEDULE", "0 * * * *")
	viper.SetDefault("RECURRING_GENERATION_JOB_SCHEDULE", "0 2 * * *")
	viper.SetDefault("WEBHOOK_RATE_LIMIT_PER_MINUTE", 120)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("MP_API_BASE_URL")
	_ = viper.BindEnv("MP_ACCESS_TOKEN")
	_ = viper.BindEnv("COMMISSION_RATE_PERCENT")
	_ = viper.BindEnv("ESCROW_HOLD_HOURS")
	_ = viper.BindEnv("MAX_PAYMENT_AMOUNT")
	_ = viper.BindEnv("GENERATION_HORIZON_DAYS")
	_ = viper.BindEnv("ESCROW_RELEASE_JOB_SCHEDULE")
	_ = viper.BindEnv("RECURRING_GENERATION_JOB_SCHEDULE")
	_ = viper.BindEnv("WEBHOOK_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "servipagos:rate_limit"
	}

	if config.CommissionRatePercent < 0 {
		log.Printf("level=warn component=config msg=\"negative commission rate configured; coercing to zero\" rate_percent=%f", config.CommissionRatePercent)
		config.CommissionRatePercent = 0
	}
	if config.CommissionRatePercent > 100 {
		log.Printf("level=warn component=config msg=\"commission rate too high; capping at 100\" rate_percent=%f", config.CommissionRatePercent)
		config.CommissionRatePercent = 100
	}

	if config.EscrowHoldHours <= 0 {
		config.EscrowHoldHours = 24
	}
	if config.MaxPaymentAmount <= 0 {
		config.MaxPaymentAmount = 1_000_000
	}
	if config.GenerationHorizonDays <= 0 {
		config.GenerationHorizonDays = 30
	}
	if config.WebhookRateLimitPerMinute <= 0 {
		config.WebhookRateLimitPerMinute = 120
	}
	if strings.TrimSpace(config.EscrowReleaseJobSchedule) == "" {
		config.EscrowReleaseJobSchedule = "0 * * * *"
	}
	if strings.TrimSpace(config.RecurringGenerationJobSchedule) == "" {
		config.RecurringGenerationJobSchedule = "0 2 * * *"
	}

	return
}
