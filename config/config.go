// Package config loads the server configuration in layers: defaults, an
// optional YAML file, a .env file and the VERSEHUB_* environment, and
// finally command line flags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/versehub/go-accounts/notify"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "VERSEHUB_"
	masked    = "********"
)

type Config struct {
	ConfigFile string `yaml:"-"`
	EnvFile    string `yaml:"-"`

	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Content  Content  `yaml:"content"`
	Accounts Accounts `yaml:"accounts"`
	Notifier Notifier `yaml:"notifier"`
	Liveness Liveness `yaml:"liveness"`
	Log      Log      `yaml:"log"`
}

type Server struct {
	Addr     string `yaml:"addr"`
	BaseURL  string `yaml:"base_url"`
	AdminKey string `yaml:"admin_key"`
	Debug    bool   `yaml:"debug"`
}

type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Content struct {
	Dir string `yaml:"dir"`
}

type Accounts struct {
	ResetWindow       time.Duration `yaml:"reset_window"`
	BcryptCost        int           `yaml:"bcrypt_cost"`
	RequireOTP        bool          `yaml:"require_otp"`
	PhoneRegion       string        `yaml:"phone_region"`
	MinPasswordLength int           `yaml:"min_password_length"`
}

type Notifier struct {
	Kind    string             `yaml:"kind"`
	Outbox  string             `yaml:"outbox"`
	Timeout time.Duration      `yaml:"timeout"`
	SMTP    notify.SMTPConfig  `yaml:"smtp"`
	Kafka   notify.KafkaConfig `yaml:"kafka"`
}

type Liveness struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Defaults() Config {
	return Config{
		EnvFile: ".env",
		Server: Server{
			Addr:    ":8080",
			BaseURL: "http://localhost:8080",
		},
		Database: Database{
			Driver: "sqlite",
			DSN:    "file:versehub.db?cache=shared",
		},
		Content: Content{Dir: "db/bibles"},
		Accounts: Accounts{
			ResetWindow: 300 * time.Second,
			BcryptCost:  12,
			PhoneRegion: "US",
		},
		Notifier: Notifier{
			Kind:    "log",
			Timeout: 10 * time.Second,
			SMTP:    notify.SMTPConfig{Port: 587},
			Kafka:   notify.KafkaConfig{Topic: "versehub.mail"},
		},
		Liveness: Liveness{
			URL:      "http://localhost:8080/healthz",
			Interval: 10 * time.Minute,
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load resolves the configuration for args. Flags override the
// environment, which overrides the YAML file, which overrides defaults.
func Load(args []string) (Config, error) {
	scratch := Defaults()
	cli := NewFlagSet(&scratch)
	if err := cli.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Defaults()
	cfg.ConfigFile = scratch.ConfigFile
	cfg.EnvFile = scratch.EnvFile

	if cfg.ConfigFile != "" {
		if err := loadYAML(cfg.ConfigFile, &cfg); err != nil {
			return Config{}, err
		}
	}

	if cfg.EnvFile != "" {
		if err := godotenv.Load(cfg.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read env file").
				WithMetadata(map[string]any{"path": cfg.EnvFile})
		}
	}

	bound := NewFlagSet(&cfg)

	var setErr error
	bound.VisitAll(func(f *pflag.Flag) {
		if setErr != nil || f.Name == "config" || f.Name == "env-file" {
			return
		}
		if v, ok := os.LookupEnv(EnvName(f.Name)); ok {
			if err := bound.Set(f.Name, v); err != nil {
				setErr = goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid environment value").
					WithMetadata(map[string]any{"env": EnvName(f.Name)})
			}
		}
	})
	if setErr != nil {
		return Config{}, setErr
	}

	cli.Visit(func(f *pflag.Flag) {
		if setErr == nil {
			setErr = bound.Set(f.Name, f.Value.String())
		}
	})
	if setErr != nil {
		return Config{}, setErr
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EnvName maps a flag name to its environment variable.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(flag))
}

func loadYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file").
			WithMetadata(map[string]any{"path": path})
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse config file").
			WithMetadata(map[string]any{"path": path})
	}
	return nil
}

func (c Config) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		errs := validation.Errors{
			"server.addr":                  validation.Validate(c.Server.Addr, validation.Required),
			"database.driver":              validation.Validate(c.Database.Driver, validation.Required, validation.In("sqlite", "postgres")),
			"database.dsn":                 validation.Validate(c.Database.DSN, validation.Required),
			"accounts.reset_window":        validation.Validate(int64(c.Accounts.ResetWindow), validation.Min(int64(time.Second))),
			"accounts.bcrypt_cost":         validation.Validate(c.Accounts.BcryptCost, validation.Min(4), validation.Max(31)),
			"accounts.min_password_length": validation.Validate(c.Accounts.MinPasswordLength, validation.Min(0), validation.Max(128)),
			"notifier.kind":                validation.Validate(c.Notifier.Kind, validation.Required, validation.In("log", "smtp", "kafka")),
			"log.level":                    validation.Validate(c.Log.Level, validation.In("debug", "info", "warn", "error")),
			"log.format":                   validation.Validate(c.Log.Format, validation.In("text", "json")),
		}
		switch c.Notifier.Kind {
		case "smtp":
			errs["notifier.smtp.host"] = validation.Validate(c.Notifier.SMTP.Host, validation.Required)
			errs["notifier.smtp.from"] = validation.Validate(c.Notifier.SMTP.From, validation.Required)
		case "kafka":
			errs["notifier.kafka.brokers"] = validation.Validate(c.Notifier.Kafka.Brokers, validation.Required)
			errs["notifier.kafka.topic"] = validation.Validate(c.Notifier.Kafka.Topic, validation.Required)
		}
		return errs.Filter()
	}, "invalid configuration"); err != nil {
		return err
	}
	return nil
}

// Masked returns a copy with every secret replaced, safe to print.
func (c Config) Masked() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return masked
	}
	c.Server.AdminKey = mask(c.Server.AdminKey)
	c.Database.DSN = maskDSN(c.Database.DSN)
	c.Notifier.SMTP.Password = mask(c.Notifier.SMTP.Password)
	c.Notifier.Kafka.Password = mask(c.Notifier.Kafka.Password)
	return c
}

// maskDSN hides the password of a URL style DSN.
func maskDSN(dsn string) string {
	scheme := strings.Index(dsn, "://")
	at := strings.LastIndex(dsn, "@")
	if scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return dsn
	}
	return dsn[:scheme+3] + user + ":" + masked + dsn[at:]
}
