package config

import (
	"strings"

	"github.com/spf13/pflag"
)

// NewFlagSet binds every configuration key to a flag writing into cfg.
// The current values of cfg become the flag defaults.
func NewFlagSet(cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("versehub", pflag.ContinueOnError)

	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "path to a YAML config file")
	fs.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "path to a .env file, ignored when missing")

	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Server.BaseURL, "base-url", cfg.Server.BaseURL, "public base URL used in email links")
	fs.StringVar(&cfg.Server.AdminKey, "admin-key", cfg.Server.AdminKey, "key for administrative routes, empty disables them")
	fs.BoolVar(&cfg.Server.Debug, "debug", cfg.Server.Debug, "log request bodies and the resolved config")

	fs.StringVar(&cfg.Database.Driver, "db-driver", cfg.Database.Driver, "account database driver: sqlite or postgres")
	fs.StringVar(&cfg.Database.DSN, "db-dsn", cfg.Database.DSN, "account database DSN")

	fs.StringVar(&cfg.Content.Dir, "bibles-dir", cfg.Content.Dir, "directory holding <translation>.SQLite3 files")

	fs.DurationVar(&cfg.Accounts.ResetWindow, "reset-window", cfg.Accounts.ResetWindow, "password reset token lifetime")
	fs.IntVar(&cfg.Accounts.BcryptCost, "bcrypt-cost", cfg.Accounts.BcryptCost, "bcrypt cost for passwords and tokens")
	fs.BoolVar(&cfg.Accounts.RequireOTP, "require-otp", cfg.Accounts.RequireOTP, "require the OTP alongside the registration key")
	fs.IntVar(&cfg.Accounts.MinPasswordLength, "min-password-length", cfg.Accounts.MinPasswordLength, "minimum password length, 0 only requires a non-empty password")
	fs.StringVar(&cfg.Accounts.PhoneRegion, "phone-region", cfg.Accounts.PhoneRegion, "default region for mobile numbers without a country code")

	fs.StringVar(&cfg.Notifier.Kind, "notifier", cfg.Notifier.Kind, "notification transport: log, smtp or kafka")
	fs.StringVar(&cfg.Notifier.Outbox, "outbox", cfg.Notifier.Outbox, "file the log notifier appends to, stdout when empty")
	fs.DurationVar(&cfg.Notifier.Timeout, "notify-timeout", cfg.Notifier.Timeout, "timeout for a single notification")
	fs.StringVar(&cfg.Notifier.SMTP.Host, "smtp-host", cfg.Notifier.SMTP.Host, "SMTP relay host")
	fs.IntVar(&cfg.Notifier.SMTP.Port, "smtp-port", cfg.Notifier.SMTP.Port, "SMTP relay port")
	fs.StringVar(&cfg.Notifier.SMTP.Username, "smtp-username", cfg.Notifier.SMTP.Username, "SMTP username")
	fs.StringVar(&cfg.Notifier.SMTP.Password, "smtp-password", cfg.Notifier.SMTP.Password, "SMTP password")
	fs.StringVar(&cfg.Notifier.SMTP.From, "smtp-from", cfg.Notifier.SMTP.From, "sender address")
	fs.StringVar(&cfg.Notifier.SMTP.FromName, "smtp-from-name", cfg.Notifier.SMTP.FromName, "sender display name")
	fs.Var(&csvValue{target: &cfg.Notifier.Kafka.Brokers}, "kafka-brokers", "comma separated Kafka brokers")
	fs.StringVar(&cfg.Notifier.Kafka.Topic, "kafka-topic", cfg.Notifier.Kafka.Topic, "Kafka topic for mail events")
	fs.StringVar(&cfg.Notifier.Kafka.Username, "kafka-username", cfg.Notifier.Kafka.Username, "Kafka SASL username")
	fs.StringVar(&cfg.Notifier.Kafka.Password, "kafka-password", cfg.Notifier.Kafka.Password, "Kafka SASL password")
	fs.BoolVar(&cfg.Notifier.Kafka.TLS, "kafka-tls", cfg.Notifier.Kafka.TLS, "connect to Kafka over TLS")

	fs.BoolVar(&cfg.Liveness.Enabled, "liveness", cfg.Liveness.Enabled, "periodically request the liveness URL")
	fs.StringVar(&cfg.Liveness.URL, "liveness-url", cfg.Liveness.URL, "URL requested by the liveness pinger")
	fs.DurationVar(&cfg.Liveness.Interval, "liveness-interval", cfg.Liveness.Interval, "liveness ping interval")

	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "text or json")

	return fs
}

type csvValue struct {
	target *[]string
}

func (v *csvValue) String() string {
	if v.target == nil {
		return ""
	}
	return strings.Join(*v.target, ",")
}

func (v *csvValue) Set(s string) error {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*v.target = out
	return nil
}

func (v *csvValue) Type() string { return "strings" }
