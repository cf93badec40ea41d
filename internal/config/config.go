package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/LeventeLantos/wa-scheduler/internal/service"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Links     LinksConfig
	Notify    NotifyConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address string
	// AppBaseURL is where reminder clicks land; edit routes hang off it.
	AppBaseURL string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

type SchedulerConfig struct {
	ForegroundInterval time.Duration
	BackgroundInterval time.Duration
	Advance            time.Duration
	Expiry             time.Duration
	Policy             service.Policy
}

type LinksConfig struct {
	CountryCode  string
	WhatsAppHost string
	BusinessHost string
}

type NotifyConfig struct {
	WebhookURL     string
	TelegramToken  string
	TelegramChatID int64
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDRESS", ":8080")
	v.SetDefault("APP_BASE_URL", "http://localhost:8080")
	v.SetDefault("FOREGROUND_INTERVAL_SECONDS", 15)
	v.SetDefault("BACKGROUND_INTERVAL_SECONDS", 300)
	v.SetDefault("ADVANCE_MINUTES", 5)
	v.SetDefault("EXPIRY_HOURS", 48)
	v.SetDefault("COMPLETION_POLICY", string(service.PolicyConfirm))
	v.SetDefault("DEFAULT_COUNTRY_CODE", "33")
	v.SetDefault("WHATSAPP_HOST", "api.whatsapp.com")
	v.SetDefault("BUSINESS_HOST", "api.whatsapp.com")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// LoadAll reads the environment, optionally layered over the file named by
// CONFIG_FILE, and reports every problem at once.
func LoadAll() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var errs []error

	dbURL, err := requireKey(v, "DATABASE_URL")
	errs = appendErr(errs, err)

	fg, err := positiveInt(v, "FOREGROUND_INTERVAL_SECONDS")
	errs = appendErr(errs, err)
	bg, err := positiveInt(v, "BACKGROUND_INTERVAL_SECONDS")
	errs = appendErr(errs, err)
	advance, err := positiveInt(v, "ADVANCE_MINUTES")
	errs = appendErr(errs, err)
	expiry, err := positiveInt(v, "EXPIRY_HOURS")
	errs = appendErr(errs, err)

	policy := service.Policy(strings.ToLower(strings.TrimSpace(v.GetString("COMPLETION_POLICY"))))
	if !policy.Valid() {
		errs = append(errs, fmt.Errorf("COMPLETION_POLICY must be %q or %q, got %q", service.PolicyConfirm, service.PolicyAuto, policy))
	}

	cfg := &Config{
		Server: ServerConfig{
			Address:    v.GetString("SERVER_ADDRESS"),
			AppBaseURL: strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),
		},
		Database: DatabaseConfig{
			URL: dbURL,
		},
		Scheduler: SchedulerConfig{
			ForegroundInterval: time.Duration(fg) * time.Second,
			BackgroundInterval: time.Duration(bg) * time.Second,
			Advance:            time.Duration(advance) * time.Minute,
			Expiry:             time.Duration(expiry) * time.Hour,
			Policy:             policy,
		},
		Links: LinksConfig{
			CountryCode:  strings.TrimPrefix(v.GetString("DEFAULT_COUNTRY_CODE"), "+"),
			WhatsAppHost: v.GetString("WHATSAPP_HOST"),
			BusinessHost: v.GetString("BUSINESS_HOST"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			File:   v.GetString("LOG_FILE"),
		},
	}

	redisCfg, err := loadRedisConfig(v)
	errs = appendErr(errs, err)
	cfg.Redis = redisCfg

	notifyCfg, err := loadNotifyConfig(v)
	errs = appendErr(errs, err)
	cfg.Notify = notifyCfg

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig(v *viper.Viper) (RedisConfig, error) {
	addr := v.GetString("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := intKey(v, "REDIS_DB")
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func loadNotifyConfig(v *viper.Viper) (NotifyConfig, error) {
	nc := NotifyConfig{
		WebhookURL:    v.GetString("NOTIFY_WEBHOOK_URL"),
		TelegramToken: v.GetString("TELEGRAM_BOT_TOKEN"),
	}
	if nc.TelegramToken == "" {
		return nc, nil
	}

	raw := strings.TrimSpace(v.GetString("TELEGRAM_CHAT_ID"))
	if raw == "" {
		return nc, errors.New("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nc, fmt.Errorf("invalid int for TELEGRAM_CHAT_ID: %s", raw)
	}
	nc.TelegramChatID = id
	return nc, nil
}

func requireKey(v *viper.Viper, key string) (string, error) {
	val := strings.TrimSpace(v.GetString(key))
	if val == "" {
		return "", fmt.Errorf("missing required config: %s", key)
	}
	return val, nil
}

// intKey parses through the raw string so a typo is an error instead of the
// silent zero viper would return.
func intKey(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %s", key, raw)
	}
	return i, nil
}

func positiveInt(v *viper.Viper, key string) (int, error) {
	i, err := intKey(v, key)
	if err != nil {
		return 0, err
	}
	if i <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return i, nil
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
