package webclient

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"

	"github.com/raysh454/paipan/internal/model"
)

// NewTransport builds an *http.Transport honoring cfg's proxy map and TLS
// verification flag.
func NewTransport(cfg Config) (*http.Transport, error) {
	if err := cfg.Proxy.Validate(); err != nil {
		return nil, fmt.Errorf("proxy config: %w", err)
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = proxyFunc(cfg.Proxy.Clone())
	if cfg.SkipTLSVerification {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-in for intercepting proxies
	}
	return tr, nil
}

func proxyFunc(pc model.ProxyConfig) func(*http.Request) (*url.URL, error) {
	if len(pc) == 0 {
		return nil
	}
	return func(r *http.Request) (*url.URL, error) {
		return pc.URLFor(r.URL.Scheme)
	}
}
