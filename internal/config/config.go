package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "skillsync-secret-key-2024", "password",
}

type Config struct {
	Port                   int      `env:"PORT" envDefault:"8080"`
	DatabaseURL            string   `env:"DATABASE_URL,required"`
	RedisURL               string   `env:"REDIS_URL"`
	AuthTokenSecret        string   `env:"AUTH_TOKEN_SECRET,required"`
	JitsiDomain            string   `env:"JITSI_DOMAIN" envDefault:"meet.jit.si"`
	JitsiAppID             string   `env:"JITSI_APP_ID" envDefault:"skillsync"`
	JitsiAppSecret         string   `env:"JITSI_APP_SECRET"`
	MeetingTokenTTLMinutes int      `env:"MEETING_TOKEN_TTL_MINUTES" envDefault:"120"`
	StoreTimeoutSeconds    int      `env:"STORE_TIMEOUT_SECONDS" envDefault:"5"`
	HistoryLimit           int      `env:"HISTORY_LIMIT" envDefault:"20"`
	MaxSessionHours        int      `env:"MAX_SESSION_HOURS" envDefault:"6"`
	SweepIntervalSeconds   int      `env:"SWEEP_INTERVAL_SECONDS" envDefault:"300"`
	AllowedOrigins         []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	LogLevel               string   `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) MeetingTokenTTL() time.Duration {
	return time.Duration(c.MeetingTokenTTLMinutes) * time.Minute
}

func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

func (c *Config) MaxSessionAge() time.Duration {
	return time.Duration(c.MaxSessionHours) * time.Hour
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// FallbackMeetings reports whether meeting links will be issued without signed tokens.
func (c *Config) FallbackMeetings() bool {
	return c.JitsiAppSecret == ""
}

func (c *Config) Validate(isProduction bool) error {
	if c.StoreTimeoutSeconds <= 0 {
		return fmt.Errorf("STORE_TIMEOUT_SECONDS must be positive")
	}
	if c.MeetingTokenTTLMinutes <= 0 {
		return fmt.Errorf("MEETING_TOKEN_TTL_MINUTES must be positive")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive")
	}

	if c.FallbackMeetings() {
		log.Warn().Msg("JITSI_APP_SECRET is empty: meetings will use public fallback links")
	}

	if isProduction {
		if err := validateSecret("AUTH_TOKEN_SECRET", c.AuthTokenSecret); err != nil {
			return err
		}
		if c.JitsiAppSecret != "" {
			if err := validateSecret("JITSI_APP_SECRET", c.JitsiAppSecret); err != nil {
				return err
			}
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if len(c.AllowedOrigins) == 0 {
			log.Warn().Msg("ALLOWED_ORIGINS is empty in production: websocket origin check disabled")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
