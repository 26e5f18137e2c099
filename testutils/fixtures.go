package testutils

import (
	"time"

	"github.com/tasklinker/authcore/config"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "Tasklinker Test",
			URL:         "http://localhost:8080",
			Environment: "test",
		},
		Server: config.ServerConfig{
			Host: "localhost",
			Port: "0",
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "json",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		Auth: config.AuthConfig{
			MagicLinkTokenLength: 32,
			MagicLinkExpiry:      24 * time.Hour,
			MagicLinkRetention:   7 * 24 * time.Hour,
			RequestLimit:         10,
			RequestWindow:        time.Hour,
			VerifyLimit:          3,
			VerifyWindow:         15 * time.Minute,
		},
		Session: config.SessionConfig{
			CookieName:        "tl-auth-token",
			Secret:            "test-session-secret-32-chars-ok!",
			Expiry:            7 * 24 * time.Hour,
			SameSite:          "lax",
			InactiveRetention: 30 * 24 * time.Hour,
		},
		Janitor: config.JanitorConfig{
			Enabled:  false,
			Interval: time.Hour,
		},
	}
}

var TestEmails = struct {
	Freelancer string
	Client     string
	Admin      string
	Unknown    string
}{
	Freelancer: "alice@example.com",
	Client:     "bob@example.com",
	Admin:      "root@example.com",
	Unknown:    "nobody@example.com",
}
