package app

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with TOML-friendly types.
type FileConfig struct {
	Target              string `toml:"target"`
	Proxy               string `toml:"proxy"`
	SkipTLSVerification *bool  `toml:"skip_tls_verification"`
	UserAgent           string `toml:"user_agent"`
	Charset             string `toml:"charset"`

	Upstream struct {
		URL     string `toml:"url"`
		Proxy   string `toml:"proxy"`
		Timeout string `toml:"timeout"`
	} `toml:"upstream"`

	Server struct {
		Listen      string `toml:"listen"`
		StorageRoot string `toml:"storage_root"`
	} `toml:"server"`

	Log struct {
		Level string `toml:"level"`
		Color *bool  `toml:"color"`
	} `toml:"log"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.config/paipan/config.toml, or "" when the
// home directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".config", "paipan", "config.toml")
	}
	return ""
}

// ApplyFileConfig copies set file values onto cfg, skipping any whose flag
// appears in changed.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("target", fc.Target, &cfg.Target)
	s.setString("proxy", fc.Proxy, &cfg.Proxy)
	s.setBool("insecure", fc.SkipTLSVerification, &cfg.SkipTLSVerification)
	s.setString("user-agent", fc.UserAgent, &cfg.UserAgent)
	s.setString("charset", fc.Charset, &cfg.Charset)

	s.setString("upstream-url", fc.Upstream.URL, &cfg.UpstreamURL)
	s.setString("upstream-proxy", fc.Upstream.Proxy, &cfg.UpstreamProxy)
	if err := s.setDuration("upstream-timeout", fc.Upstream.Timeout, &cfg.UpstreamTimeout); err != nil {
		return err
	}

	s.setString("listen", fc.Server.Listen, &cfg.ListenAddr)
	s.setString("storage-root", fc.Server.StorageRoot, &cfg.StorageRoot)

	s.setString("log-level", fc.Log.Level, &cfg.LogLevel)
	s.setBool("log-color", fc.Log.Color, &cfg.LogColor)
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
