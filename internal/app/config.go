package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raysh454/paipan/internal/model"
	"github.com/raysh454/paipan/internal/paipan"
	"github.com/raysh454/paipan/internal/sender"
	"github.com/raysh454/paipan/internal/textenc"
	"github.com/raysh454/paipan/internal/webclient"
)

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the runtime options shared by the CLI commands and the API
// server. The fixture send uses Target, Proxy, SkipTLSVerification,
// UserAgent and Charset; the chart service uses the Upstream* fields.
type Config struct {
	Target              string
	Proxy               string
	SkipTLSVerification bool
	UserAgent           string
	Charset             string

	UpstreamURL     string
	UpstreamProxy   string
	UpstreamTimeout time.Duration

	ListenAddr  string
	StorageRoot string

	LogLevel string
	LogColor bool
}

// DefaultConfig returns the fixture values plus development defaults for the
// server.
func DefaultConfig() *Config {
	return &Config{
		Target:              sender.DefaultTarget,
		Proxy:               sender.DefaultProxy,
		SkipTLSVerification: true,
		UserAgent:           sender.DefaultUserAgent,
		Charset:             textenc.DefaultLabel,
		UpstreamURL:         paipan.DefaultBaseURL,
		UpstreamTimeout:     30 * time.Second,
		ListenAddr:          ":8000",
		StorageRoot:         "~/.config/paipan",
		LogLevel:            "info",
		LogColor:            true,
	}
}

// Validate checks the configuration and expands StorageRoot.
func (c *Config) Validate() error {
	if err := checkHTTPURL("target", c.Target); err != nil {
		return err
	}
	if err := checkHTTPURL("upstream-url", c.UpstreamURL); err != nil {
		return err
	}
	if err := model.LocalProxy(c.Proxy).Validate(); err != nil {
		return fmt.Errorf("%w: proxy: %v", ErrInvalidConfig, err)
	}
	if err := model.LocalProxy(c.UpstreamProxy).Validate(); err != nil {
		return fmt.Errorf("%w: upstream-proxy: %v", ErrInvalidConfig, err)
	}
	if _, _, err := textenc.Lookup(c.Charset); err != nil {
		return fmt.Errorf("%w: charset: %v", ErrInvalidConfig, err)
	}
	if c.UpstreamTimeout < 0 {
		return fmt.Errorf("%w: upstream timeout must not be negative", ErrInvalidConfig)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen address is required", ErrInvalidConfig)
	}
	if c.StorageRoot == "" {
		return fmt.Errorf("%w: storage root is required", ErrInvalidConfig)
	}
	root, err := expandPath(c.StorageRoot)
	if err != nil {
		return fmt.Errorf("%w: storage root: %v", ErrInvalidConfig, err)
	}
	c.StorageRoot = root
	return nil
}

// SenderConfig builds the fixture send. The payload is always the fixed
// BaZi form; only transport details come from c.
func (c *Config) SenderConfig() (sender.Config, error) {
	enc, _, err := textenc.Lookup(c.Charset)
	if err != nil {
		return sender.Config{}, err
	}
	sc := sender.DefaultConfig()
	sc.Target = c.Target
	sc.Proxy = model.LocalProxy(c.Proxy)
	sc.SkipTLSVerification = c.SkipTLSVerification
	sc.Headers = model.Headers{"User-Agent": c.UserAgent}
	sc.Encoder = enc
	return sc, nil
}

// ChartConfig configures the BaZi/LiuYao client.
func (c *Config) ChartConfig() paipan.Config {
	return paipan.Config{
		BaseURL:   c.UpstreamURL,
		UserAgent: c.UserAgent,
		Charset:   c.Charset,
	}
}

// UpstreamWebClientConfig is the transport for chart lookups. Unlike the
// fixture send it verifies certificates and only uses a proxy when one is
// configured.
func (c *Config) UpstreamWebClientConfig() webclient.Config {
	var proxy model.ProxyConfig
	if c.UpstreamProxy != "" {
		proxy = model.LocalProxy(c.UpstreamProxy)
	}
	return webclient.Config{
		Client:  webclient.ClientNetHTTP,
		Timeout: c.UpstreamTimeout,
		Proxy:   proxy,
	}
}

func checkHTTPURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %s must be http or https, got %q", ErrInvalidConfig, name, raw)
	}
	return nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
	}
	return filepath.Clean(p), nil
}

// configSetter applies values while respecting flag precedence: a value is
// only applied if the corresponding flag was not set on the command line.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
