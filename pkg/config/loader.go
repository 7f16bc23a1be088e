package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("CSMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Common env vars without the CSMS_ prefix for Docker/VM deploys.
	viper.BindEnv("http.port", "HTTP_PORT", "CSMS_HTTP_PORT")
	viper.BindEnv("ocpp.port", "OCPP_PORT", "CSMS_OCPP_PORT")
	viper.BindEnv("database.url", "DATABASE_URL", "CSMS_DATABASE_URL")
	viper.BindEnv("redis.url", "REDIS_URL", "CSMS_REDIS_URL")
	viper.BindEnv("queue.nats_url", "NATS_URL", "CSMS_QUEUE_NATS_URL")
	viper.BindEnv("queue.rabbitmq_url", "RABBITMQ_URL", "CSMS_QUEUE_RABBITMQ_URL")
	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY", "CSMS_JWT_SECRET_KEY")
	viper.BindEnv("jwt.access_expire_minutes", "ACCESS_TOKEN_EXPIRE_MINUTES")
	viper.BindEnv("jwt.refresh_expire_days", "REFRESH_TOKEN_EXPIRE_DAYS")
	viper.BindEnv("payment.callback_secret", "PAYMENT_CALLBACK_SECRET")
	viper.BindEnv("payment.billplz.api_key", "BILLPLZ_API_KEY")
	viper.BindEnv("payment.billplz.x_signature_key", "BILLPLZ_X_SIGNATURE_KEY")
	viper.BindEnv("payment.billplz.collection_id", "BILLPLZ_COLLECTION_ID")
	viper.BindEnv("payment.ocbc.api_key", "OCBC_API_KEY")
	viper.BindEnv("payment.ocbc.api_secret", "OCBC_API_SECRET")
	viper.BindEnv("payment.stripe.secret_key", "STRIPE_SECRET_KEY")
	viper.BindEnv("payment.stripe.webhook_secret", "STRIPE_WEBHOOK_SECRET")
	viper.BindEnv("email.smtp_host", "SMTP_HOST")
	viper.BindEnv("email.smtp_port", "SMTP_PORT")
	viper.BindEnv("email.smtp_username", "SMTP_USERNAME")
	viper.BindEnv("email.smtp_password", "SMTP_PASSWORD")
	viper.BindEnv("email.sendgrid_api_key", "SENDGRID_API_KEY")
	viper.BindEnv("admin.email", "ADMIN_EMAIL")
	viper.BindEnv("admin.password", "ADMIN_PASSWORD")
	viper.BindEnv("admin.name", "ADMIN_NAME")
	viper.BindEnv("tickets.reminder_check_minutes", "REMINDER_CHECK_MINUTES")
	viper.BindEnv("tickets.reminder_cooldown_hours", "REMINDER_COOLDOWN_HOURS")
	viper.BindEnv("cors.allowed_origins", "CORS_ORIGINS")
	viper.BindEnv("vault.address", "VAULT_ADDR")
	viper.BindEnv("vault.token", "VAULT_TOKEN")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No config file: environment variables and defaults only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "chargenet-csms")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.base_url", "http://localhost:3000")
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("ocpp.port", 9000)
	viper.SetDefault("ocpp.heartbeat_interval", 7200)
	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.auto_migrate", true)
	viper.SetDefault("queue.driver", "")
	viper.SetDefault("jwt.access_expire_minutes", 30)
	viper.SetDefault("jwt.refresh_expire_days", 7)
	viper.SetDefault("prometheus.enabled", true)
	viper.SetDefault("prometheus.path", "/metrics")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("payment.manual_enabled", true)
	viper.SetDefault("email.provider", "smtp")
	viper.SetDefault("email.from_email", "noreply@chargenet.my")
	viper.SetDefault("email.from_name", "ChargeNet")
	viper.SetDefault("email.smtp_host", "localhost")
	viper.SetDefault("email.smtp_port", 1025)
	viper.SetDefault("tickets.reminder_check_minutes", 15)
	viper.SetDefault("tickets.reminder_cooldown_hours", 4)
}
