package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tanq16/surge/internal/sink"
	"github.com/tanq16/surge/internal/utils"
)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`

	splitBytes int64
}

type DownloadConfig struct {
	Connections int     `mapstructure:"connections" yaml:"connections"`
	SplitSize   string  `mapstructure:"split_size" yaml:"split_size"`
	Output      string  `mapstructure:"output" yaml:"output"`
	Mode        string  `mapstructure:"mode" yaml:"mode"`
	RequestRate float64 `mapstructure:"request_rate" yaml:"request_rate"`
	NoProgress  bool    `mapstructure:"no_progress" yaml:"no_progress"`
}

type HTTPConfig struct {
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	KeepAliveTimeout time.Duration `mapstructure:"keep_alive_timeout" yaml:"keep_alive_timeout"`
	UserAgent        string        `mapstructure:"user_agent" yaml:"user_agent"`
	Proxy            string        `mapstructure:"proxy" yaml:"proxy"`
	ProxyUsername    string        `mapstructure:"proxy_username" yaml:"proxy_username"`
	ProxyPassword    string        `mapstructure:"proxy_password" yaml:"proxy_password"`
	Headers          []string      `mapstructure:"headers" yaml:"headers"`
}

type RetryConfig struct {
	Attempts   int           `mapstructure:"attempts" yaml:"attempts"`
	Backoff    time.Duration `mapstructure:"backoff" yaml:"backoff"`
	MaxBackoff time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

type LogConfig struct {
	Debug bool   `mapstructure:"debug" yaml:"debug"`
	File  string `mapstructure:"file" yaml:"file"`
}

// flagKeys maps configuration keys to the command line flags that override them.
var flagKeys = map[string]string{
	"download.connections":    "connections",
	"download.split_size":     "split-size",
	"download.output":         "output",
	"download.mode":           "mode",
	"download.request_rate":   "request-rate",
	"download.no_progress":    "no-progress",
	"http.timeout":            "timeout",
	"http.keep_alive_timeout": "keep-alive-timeout",
	"http.user_agent":         "user-agent",
	"http.proxy":              "proxy",
	"http.proxy_username":     "proxy-username",
	"http.proxy_password":     "proxy-password",
	"retry.attempts":          "retries",
	"retry.backoff":           "retry-backoff",
	"retry.max_backoff":       "retry-max-backoff",
	"log.debug":               "debug",
	"log.file":                "log-file",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("download.connections", utils.DefaultConnections)
	v.SetDefault("download.split_size", fmt.Sprint(utils.DefaultSplitSize))
	v.SetDefault("download.output", "")
	v.SetDefault("download.mode", string(sink.ModeOverwrite))
	v.SetDefault("download.request_rate", 0.0)
	v.SetDefault("download.no_progress", false)
	v.SetDefault("http.timeout", 3*time.Minute)
	v.SetDefault("http.keep_alive_timeout", 90*time.Second)
	v.SetDefault("http.user_agent", utils.ToolUserAgent)
	v.SetDefault("http.proxy", "")
	v.SetDefault("http.proxy_username", "")
	v.SetDefault("http.proxy_password", "")
	v.SetDefault("http.headers", []string{})
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.backoff", 500*time.Millisecond)
	v.SetDefault("retry.max_backoff", 10*time.Second)
	v.SetDefault("log.debug", false)
	v.SetDefault("log.file", "")
}

// Load layers defaults, the configuration file, SURGE_* environment
// variables and flags, in increasing order of precedence. An explicit path
// must exist; otherwise surge.yaml is looked up in the working directory and
// in ~/.config/surge and is optional. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	} else {
		v.SetConfigName("surge")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "surge"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SURGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	// viper splits string slices on commas, which header values may contain
	if flags != nil {
		if f := flags.Lookup("header"); f != nil && f.Changed {
			headers, err := flags.GetStringArray("header")
			if err != nil {
				return nil, err
			}
			cfg.HTTP.Headers = append(cfg.HTTP.Headers, headers...)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Download.Connections <= 0 {
		return fmt.Errorf("connections must be positive, got %d", c.Download.Connections)
	}
	split, err := utils.ParseSize(c.Download.SplitSize)
	if err != nil {
		return err
	}
	if split <= 0 {
		return fmt.Errorf("split size must be positive, got %q", c.Download.SplitSize)
	}
	c.splitBytes = split
	if _, err := sink.ParseOpenMode(c.Download.Mode); err != nil {
		return err
	}
	if c.Download.RequestRate < 0 {
		return fmt.Errorf("request rate cannot be negative, got %v", c.Download.RequestRate)
	}
	if c.Retry.Attempts < 0 {
		return fmt.Errorf("retries cannot be negative, got %d", c.Retry.Attempts)
	}
	if c.HTTP.Timeout < 0 || c.HTTP.KeepAliveTimeout < 0 || c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		return errors.New("durations cannot be negative")
	}
	for _, h := range c.HTTP.Headers {
		if !strings.Contains(h, ":") {
			return fmt.Errorf("header %q is not in 'Name: value' form", h)
		}
	}
	return nil
}

// SplitBytes returns the validated split size in bytes.
func (c *Config) SplitBytes() int64 {
	return c.splitBytes
}

// HTTPClientConfig resolves the user agent and moves proxy credentials out
// of the proxy URL unless they were given separately.
func (c *Config) HTTPClientConfig() utils.HTTPClientConfig {
	userAgent := c.HTTP.UserAgent
	if userAgent == "randomize" {
		userAgent = utils.GetRandomUserAgent()
	}
	proxyURL, username, password := c.HTTP.Proxy, c.HTTP.ProxyUsername, c.HTTP.ProxyPassword
	if parsed, err := url.Parse(proxyURL); err == nil && parsed.User != nil && username == "" {
		username = parsed.User.Username()
		if p, set := parsed.User.Password(); set {
			password = p
		}
		parsed.User = nil
		proxyURL = parsed.String()
	}
	return utils.HTTPClientConfig{
		Timeout:       c.HTTP.Timeout,
		KATimeout:     c.HTTP.KeepAliveTimeout,
		ProxyURL:      proxyURL,
		ProxyUsername: username,
		ProxyPassword: password,
		UserAgent:     userAgent,
		Headers:       utils.ParseHeaderArgs(c.HTTP.Headers),
	}
}

func (c *Config) RetryConfig() utils.RetryConfig {
	return utils.RetryConfig{
		Attempts:   c.Retry.Attempts,
		Backoff:    c.Retry.Backoff,
		MaxBackoff: c.Retry.MaxBackoff,
	}
}

// YAML renders the effective configuration with durations in Go notation
// and the proxy password masked.
func (c *Config) YAML() ([]byte, error) {
	view := map[string]any{
		"download": c.Download,
		"http": map[string]any{
			"timeout":            c.HTTP.Timeout.String(),
			"keep_alive_timeout": c.HTTP.KeepAliveTimeout.String(),
			"user_agent":         c.HTTP.UserAgent,
			"proxy":              c.HTTP.Proxy,
			"proxy_username":     c.HTTP.ProxyUsername,
			"proxy_password":     mask(c.HTTP.ProxyPassword),
			"headers":            c.HTTP.Headers,
		},
		"retry": map[string]any{
			"attempts":    c.Retry.Attempts,
			"backoff":     c.Retry.Backoff.String(),
			"max_backoff": c.Retry.MaxBackoff.String(),
		},
		"log": c.Log,
	}
	return yaml.Marshal(view)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
