package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
)

const (
	MailerGmail = "gmail"
	MailerSMTP  = "smtp"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	// MailerDriver selects the outbound provider: gmail or smtp.
	MailerDriver      string `env:"MAILER_DRIVER,default=gmail"`
	GmailAPIBaseURL   string `env:"GMAIL_API_BASE_URL,default=https://gmail.googleapis.com"`
	OAuthClientID     string `env:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string `env:"OAUTH_CLIENT_SECRET"`
	OAuthRefreshToken string `env:"OAUTH_REFRESH_TOKEN"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

	// FromOverride replaces the sender address on every outgoing mail
	// when set.
	FromOverride string `env:"FROM_OVERRIDE"`

	DailyCap      int    `env:"DAILY_CAP,default=100"`
	KnowledgeFile string `env:"KNOWLEDGE_FILE,default=knowledge.json"`

	SheetsAPIBaseURL string `env:"SHEETS_API_BASE_URL,default=https://sheets.googleapis.com"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.MailerDriver)) {
	case MailerGmail:
		c.MailerDriver = MailerGmail
		if c.OAuthClientID == "" || c.OAuthClientSecret == "" || c.OAuthRefreshToken == "" {
			return fmt.Errorf("gmail driver requires OAUTH_CLIENT_ID, OAUTH_CLIENT_SECRET and OAUTH_REFRESH_TOKEN")
		}
	case MailerSMTP:
		c.MailerDriver = MailerSMTP
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			return fmt.Errorf("smtp driver requires SMTP_HOST and SMTP_FROM")
		}
	default:
		return fmt.Errorf("invalid MAILER_DRIVER %q", c.MailerDriver)
	}

	if c.DailyCap < 1 {
		return fmt.Errorf("DAILY_CAP must be >= 1")
	}
	return nil
}
