package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig      `envPrefix:"TL_APP_"`
	Server   ServerConfig   `envPrefix:"TL_SERVER_"`
	Log      LogConfig      `envPrefix:"TL_LOG_"`
	Database DatabaseConfig `envPrefix:"TL_DATABASE_"`
	Auth     AuthConfig     `envPrefix:"TL_AUTH_"`
	Session  SessionConfig  `envPrefix:"TL_SESSION_"`
	Mail     MailConfig     `envPrefix:"TL_MAIL_"`
	Janitor  JanitorConfig  `envPrefix:"TL_JANITOR_"`
}

type AppConfig struct {
	Name        string `env:"NAME" envDefault:"Tasklinker"`
	URL         string `env:"URL" envDefault:"http://localhost:8080"`
	Environment string `env:"ENV" envDefault:"development"`
}

func (c AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

type ServerConfig struct {
	Host string `env:"HOST" envDefault:"localhost"`
	Port string `env:"PORT" envDefault:"8080"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"tasklinker.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type AuthConfig struct {
	MagicLinkTokenLength int           `env:"MAGIC_LINK_TOKEN_LENGTH" envDefault:"32"`
	MagicLinkExpiry      time.Duration `env:"MAGIC_LINK_EXPIRY" envDefault:"24h"`
	MagicLinkRetention   time.Duration `env:"MAGIC_LINK_RETENTION" envDefault:"168h"`
	RequestLimit         int           `env:"REQUEST_LIMIT" envDefault:"10"`
	RequestWindow        time.Duration `env:"REQUEST_WINDOW" envDefault:"1h"`
	VerifyLimit          int           `env:"VERIFY_LIMIT" envDefault:"3"`
	VerifyWindow         time.Duration `env:"VERIFY_WINDOW" envDefault:"15m"`
}

type SessionConfig struct {
	CookieName        string        `env:"COOKIE_NAME" envDefault:"tl-auth-token"`
	Secret            string        `env:"SECRET"`
	Expiry            time.Duration `env:"EXPIRY" envDefault:"168h"`
	SameSite          string        `env:"SAME_SITE" envDefault:"lax"`
	InactiveRetention time.Duration `env:"INACTIVE_RETENTION" envDefault:"720h"`
}

type MailConfig struct {
	Host         string `env:"HOST" envDefault:"localhost"`
	Port         int    `env:"PORT" envDefault:"587"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Encryption   string `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress  string `env:"FROM_ADDRESS"`
	FromName     string `env:"FROM_NAME" envDefault:"Tasklinker"`
	TemplatesDir string `env:"TEMPLATES_DIR"`
}

type JanitorConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
	Interval time.Duration `env:"INTERVAL" envDefault:"1h"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	return env.Parse(cfg)
}
