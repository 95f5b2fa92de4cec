package config

import (
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/canonical/landscape-client-sub002/cli/konf"
	"github.com/canonical/landscape-client-sub002/errors"
)

// Defaults, per spec §6.4.
const (
	DefaultExchangeInterval       = 900 * time.Second
	DefaultUrgentExchangeInterval = 60 * time.Second
	DefaultPingInterval           = 30 * time.Second
)

// Config is the recognized option set of spec §6.4.
type Config struct {
	URL          string `yaml:"url"`
	PingURL      string `yaml:"ping_url"`
	SSLPublicKey string `yaml:"ssl_public_key"`

	ExchangeIntervalSeconds       int `yaml:"exchange_interval"`
	UrgentExchangeIntervalSeconds int `yaml:"urgent_exchange_interval"`
	PingIntervalSeconds           int `yaml:"ping_interval"`

	HTTPProxy  string `yaml:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy"`

	AccountName          string   `yaml:"account_name"`
	ComputerTitle        string   `yaml:"computer_title"`
	RegistrationPassword string   `yaml:"registration_password"`
	Tags                 []string `yaml:"tags"`
	AccessGroup          string   `yaml:"access_group"`

	DataPath string `yaml:"data_path"`
	LogDir   string `yaml:"log_dir"`
}

// ExchangeInterval returns the configured normal cadence, or its default.
func (c Config) ExchangeInterval() time.Duration {
	if c.ExchangeIntervalSeconds <= 0 {
		return DefaultExchangeInterval
	}
	return time.Duration(c.ExchangeIntervalSeconds) * time.Second
}

// UrgentExchangeInterval returns the configured urgent cadence, or its default.
func (c Config) UrgentExchangeInterval() time.Duration {
	if c.UrgentExchangeIntervalSeconds <= 0 {
		return DefaultUrgentExchangeInterval
	}
	return time.Duration(c.UrgentExchangeIntervalSeconds) * time.Second
}

// PingInterval returns the configured ping cadence, or its default.
func (c Config) PingInterval() time.Duration {
	if c.PingIntervalSeconds <= 0 {
		return DefaultPingInterval
	}
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// Load reads configuration from the file locations (first one found wins),
// environment (LANDSCAPE_ prefix), and flags, in that order of increasing
// precedence, following the same layering cli/konf itself implements. A
// config file is optional: if none of locations exists, the broker runs
// off its built-in defaults, the environment, and flags alone.
func Load(locations []string, flags *pflag.FlagSet) (Config, error) {
	var existing []string
	for _, l := range locations {
		if info, err := os.Stat(l); err == nil && !info.IsDir() {
			existing = append(existing, l)
		}
	}

	opts := []konf.Option{konf.WithEnv("landscape")}
	if len(existing) > 0 {
		opts = append(opts, konf.WithFileLocations(existing))
	}
	if flags != nil {
		opts = append(opts, konf.WithPflags(flags))
	}

	handle, err := konf.Setup(opts...)
	if err != nil {
		return Config{}, errors.Wrap(err, "config: failed to load configuration sources")
	}

	cfg := Config{
		ExchangeIntervalSeconds:       int(DefaultExchangeInterval.Seconds()),
		UrgentExchangeIntervalSeconds: int(DefaultUrgentExchangeInterval.Seconds()),
		PingIntervalSeconds:           int(DefaultPingInterval.Seconds()),
	}
	if err := handle.Unmarshal("landscape", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: failed to unmarshal configuration")
	}
	return cfg, nil
}

// ExportProxies exports http_proxy/https_proxy into the process environment
// exactly once at startup (supplemented feature, landscape/broker/
// deployment.py): a configured value always overwrites whatever the
// environment already held, but an unset config value never clears an
// existing one. Intended to be called a single time, early in main.
func (c Config) ExportProxies() error {
	if c.HTTPProxy != "" {
		if err := os.Setenv("http_proxy", c.HTTPProxy); err != nil {
			return errors.Wrap(err, "config: failed to export http_proxy")
		}
	}
	if c.HTTPSProxy != "" {
		if err := os.Setenv("https_proxy", c.HTTPSProxy); err != nil {
			return errors.Wrap(err, "config: failed to export https_proxy")
		}
	}
	return nil
}
