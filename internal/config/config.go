package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	ResendAPIKey    string
	ResendFromEmail string
	SendTimeout     time.Duration

	// CronSpec drives the periodic trigger; default is hourly on the hour.
	CronSpec string
	// CronSecret, when set, is required as a bearer token on the manual
	// trigger endpoint.
	CronSecret string

	LogLevel string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",

		ResendAPIKey:    mustGetenv("RESEND_API_KEY"),
		ResendFromEmail: mustGetenv("RESEND_FROM_EMAIL"),

		CronSpec:   getenv("CRON_SPEC", "0 * * * *"),
		CronSecret: getenv("CRON_SECRET", ""),
		LogLevel:   getenv("LOG_LEVEL", "info"),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	timeout, err := time.ParseDuration(getenv("SEND_TIMEOUT", "15s"))
	if err != nil {
		timeout = 15 * time.Second
	}
	cfg.SendTimeout = timeout

	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}
