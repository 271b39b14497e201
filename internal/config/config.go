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
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the credit-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	CreditEventQueue        string `mapstructure:"CREDIT_EVENT_QUEUE"`
	ClerkJWKSURL            string `mapstructure:"CLERK_JWKS_URL"`
	InternalAPIKey          string `mapstructure:"INTERNAL_API_KEY"`
	SpendRateLimitPerMinute int    `mapstructure:"SPEND_RATE_LIMIT_PER_MINUTE"`
	ToolCostOverrides       string `mapstructure:"TOOL_COST_OVERRIDES"`
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
	viper.SetDefault("CREDIT_EVENT_QUEUE", "credit_service.platform_events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "gigmarket:rate_limit")
	viper.SetDefault("SPEND_RATE_LIMIT_PER_MINUTE", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "CREDIT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("CREDIT_EVENT_QUEUE")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "CREDIT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("SPEND_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("TOOL_COST_OVERRIDES")

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
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("CREDIT_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "gigmarket:rate_limit"
	}

	if config.SpendRateLimitPerMinute <= 0 {
		config.SpendRateLimitPerMinute = 60
	}

	return
}

// ParseToolCostOverrides turns the TOOL_COST_OVERRIDES value into a cost map.
// The format is a comma-separated list of tool=cost pairs, e.g.
// "promo_video=30,route_summary=2". Malformed pairs are logged and skipped so
// a typo in one override cannot take the whole service down.
func ParseToolCostOverrides(raw string) map[string]int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	overrides := make(map[string]int64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, costStr, ok := strings.Cut(pair, "=")
		if !ok {
			log.Printf("level=warn component=config msg=\"invalid tool cost override; skipping\" pair=%q", pair)
			continue
		}
		name = strings.TrimSpace(name)
		cost, parseErr := strconv.ParseInt(strings.TrimSpace(costStr), 10, 64)
		if parseErr != nil || name == "" || cost <= 0 {
			log.Printf("level=warn component=config msg=\"invalid tool cost override; skipping\" pair=%q err=%v", pair, parseErr)
			continue
		}
		overrides[name] = cost
	}
	if len(overrides) == 0 {
		return nil
	}
	return overrides
}
