package app

import "os"

// ApplyEnvConfig applies PAIPAN_* environment variables to cfg, skipping
// any whose flag appears in changed.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("target", os.Getenv("PAIPAN_TARGET"), &cfg.Target)
	s.setString("proxy", os.Getenv("PAIPAN_PROXY"), &cfg.Proxy)
	s.setBoolFromString("insecure", os.Getenv("PAIPAN_SKIP_TLS_VERIFICATION"), &cfg.SkipTLSVerification)
	s.setString("user-agent", os.Getenv("PAIPAN_USER_AGENT"), &cfg.UserAgent)
	s.setString("charset", os.Getenv("PAIPAN_CHARSET"), &cfg.Charset)

	s.setString("upstream-url", os.Getenv("PAIPAN_UPSTREAM_URL"), &cfg.UpstreamURL)
	s.setString("upstream-proxy", os.Getenv("PAIPAN_UPSTREAM_PROXY"), &cfg.UpstreamProxy)
	if err := s.setDuration("upstream-timeout", os.Getenv("PAIPAN_UPSTREAM_TIMEOUT"), &cfg.UpstreamTimeout); err != nil {
		return err
	}

	s.setString("listen", os.Getenv("PAIPAN_LISTEN"), &cfg.ListenAddr)
	s.setString("storage-root", os.Getenv("PAIPAN_STORAGE_ROOT"), &cfg.StorageRoot)

	s.setString("log-level", os.Getenv("PAIPAN_LOG_LEVEL"), &cfg.LogLevel)
	s.setBoolFromString("log-color", os.Getenv("PAIPAN_LOG_COLOR"), &cfg.LogColor)
	return nil
}
