package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type MobizonConfig struct {
	APIKey   string `yaml:"api_key"`
	SenderID string `yaml:"sender_id"`
	DryRun   bool   `yaml:"dry_run"`
}

type WhatsAppConfig struct {
	AccessToken   string `yaml:"access_token"`
	PhoneNumberID string `yaml:"phone_number_id"`
	APIVersion    string `yaml:"api_version"`
	DryRun        bool   `yaml:"dry_run"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
	DryRun       bool   `yaml:"dry_run"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Endpoint string `yaml:"endpoint"`
}

// ProtocolConfig holds the verification protocol constants.
type ProtocolConfig struct {
	CodeLength      int           `yaml:"code_length"`
	CodeTTL         time.Duration `yaml:"code_ttl"`
	MaxAttempts     int           `yaml:"max_attempts"`
	LockoutDuration time.Duration `yaml:"lockout_duration"`
	ResendCooldown  time.Duration `yaml:"resend_cooldown"`
	ResendWindow    time.Duration `yaml:"resend_window"`
	MaxResends      int           `yaml:"max_resends"`
	RegisterWindow  time.Duration `yaml:"register_window"`
	MaxRegisters    int           `yaml:"max_registers"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
}

type Config struct {
	Env     string `yaml:"env"`
	AppName string `yaml:"app_name"`
	Server  struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Driver string `yaml:"driver"` // postgres | memory
	} `yaml:"storage"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	JWT struct {
		Secret string `yaml:"secret"`
		Issuer string `yaml:"issuer"`
	} `yaml:"jwt"`
	// InvitationBaseURL prefixes invitation tokens in resent links.
	InvitationBaseURL string         `yaml:"invitation_base_url"`
	CORSOrigins       []string       `yaml:"cors_origins"`
	Protocol          ProtocolConfig `yaml:"protocol"`
	Channels          struct {
		Default  string         `yaml:"default"`
		Mobizon  MobizonConfig  `yaml:"mobizon"`
		WhatsApp WhatsAppConfig `yaml:"whatsapp"`
		Email    EmailConfig    `yaml:"email"`
	} `yaml:"channels"`
	Telegram TelegramConfig `yaml:"telegram"`
	Reports  struct {
		// FontPath is a UTF-8 TTF for PDF reports; empty uses Helvetica.
		FontPath string `yaml:"font_path"`
	} `yaml:"reports"`
}

// Path returns DEVICEGUARD_CONFIG or the default location.
func Path() string {
	return getEnv("DEVICEGUARD_CONFIG", DefaultPath)
}

// Load reads path (a missing file is fine, defaults and env still apply),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.Protocol.fillZero()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a development configuration backed by the in-memory registry.
func Default() *Config {
	cfg := &Config{Env: "development", AppName: "DeviceGuard"}
	cfg.Server.Port = 8080
	cfg.Storage.Driver = "memory"
	cfg.JWT.Issuer = "deviceguard"
	cfg.Channels.Default = "whatsapp"
	cfg.Channels.Email.SMTPPort = 587
	cfg.Protocol = DefaultProtocol()
	return cfg
}

func DefaultProtocol() ProtocolConfig {
	return ProtocolConfig{
		CodeLength:      6,
		CodeTTL:         2 * time.Minute,
		MaxAttempts:     3,
		LockoutDuration: 15 * time.Minute,
		ResendCooldown:  60 * time.Second,
		ResendWindow:    time.Hour,
		MaxResends:      10,
		RegisterWindow:  time.Hour,
		MaxRegisters:    20,
		DispatchTimeout: 10 * time.Second,
		BcryptCost:      bcrypt.DefaultCost,
	}
}

// fillZero restores defaults for fields a YAML file set to zero.
func (p *ProtocolConfig) fillZero() {
	d := DefaultProtocol()
	if p.CodeLength == 0 {
		p.CodeLength = d.CodeLength
	}
	if p.CodeTTL == 0 {
		p.CodeTTL = d.CodeTTL
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.LockoutDuration == 0 {
		p.LockoutDuration = d.LockoutDuration
	}
	if p.ResendCooldown == 0 {
		p.ResendCooldown = d.ResendCooldown
	}
	if p.ResendWindow == 0 {
		p.ResendWindow = d.ResendWindow
	}
	if p.MaxResends == 0 {
		p.MaxResends = d.MaxResends
	}
	if p.RegisterWindow == 0 {
		p.RegisterWindow = d.RegisterWindow
	}
	if p.MaxRegisters == 0 {
		p.MaxRegisters = d.MaxRegisters
	}
	if p.DispatchTimeout == 0 {
		p.DispatchTimeout = d.DispatchTimeout
	}
	if p.BcryptCost == 0 {
		p.BcryptCost = d.BcryptCost
	}
}

func (c *Config) applyEnv() {
	c.Env = getEnv("APP_ENV", c.Env)
	c.Server.Port = getInt("HTTP_PORT", c.Server.Port)
	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)
	c.JWT.Secret = getEnv("JWT_SECRET", c.JWT.Secret)
	c.InvitationBaseURL = getEnv("INVITATION_BASE_URL", c.InvitationBaseURL)
	c.CORSOrigins = getList("CORS_ORIGINS", c.CORSOrigins)

	c.Channels.Mobizon.APIKey = getEnv("MOBIZON_API_KEY", c.Channels.Mobizon.APIKey)
	c.Channels.WhatsApp.AccessToken = getEnv("WHATSAPP_ACCESS_TOKEN", c.Channels.WhatsApp.AccessToken)
	c.Channels.WhatsApp.PhoneNumberID = getEnv("WHATSAPP_PHONE_NUMBER_ID", c.Channels.WhatsApp.PhoneNumberID)
	c.Channels.Email.SMTPPassword = getEnv("SMTP_PASSWORD", c.Channels.Email.SMTPPassword)
	c.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken)

	c.Protocol.CodeTTL = getDuration("CODE_TTL", c.Protocol.CodeTTL)
	c.Protocol.MaxAttempts = getInt("MAX_ATTEMPTS", c.Protocol.MaxAttempts)
	c.Protocol.ResendCooldown = getDuration("RESEND_COOLDOWN", c.Protocol.ResendCooldown)

	dry := getBool("CHANNELS_DRY_RUN", false)
	if dry {
		c.Channels.Mobizon.DryRun = true
		c.Channels.WhatsApp.DryRun = true
		c.Channels.Email.DryRun = true
	}
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c *Config) Validate() error {
	var errs []error
	p := c.Protocol
	if p.CodeLength < 4 || p.CodeLength > 10 {
		errs = append(errs, fmt.Errorf("protocol.code_length must be in [4,10], got %d", p.CodeLength))
	}
	for name, d := range map[string]time.Duration{
		"code_ttl":         p.CodeTTL,
		"lockout_duration": p.LockoutDuration,
		"resend_cooldown":  p.ResendCooldown,
		"resend_window":    p.ResendWindow,
		"register_window":  p.RegisterWindow,
		"dispatch_timeout": p.DispatchTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("protocol.%s must be positive", name))
		}
	}
	if p.MaxAttempts < 1 || p.MaxResends < 1 || p.MaxRegisters < 1 {
		errs = append(errs, errors.New("protocol max_attempts, max_resends and max_registers must be >= 1"))
	}
	if p.BcryptCost < bcrypt.MinCost || p.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("protocol.bcrypt_cost out of range: %d", p.BcryptCost))
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.url (DATABASE_URL) is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver))
	}
	if c.IsProduction() && c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret (JWT_SECRET) is required in production"))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := getEnv(key, ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := getEnv(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
