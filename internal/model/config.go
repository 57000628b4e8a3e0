package model

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Headers maps header name to a single value.
type Headers map[string]string

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// HTTPHeader converts h to a canonicalized http.Header.
func (h Headers) HTTPHeader() http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out.Set(k, v)
	}
	return out
}

// ProxyConfig maps a request scheme ("http", "https") to the proxy URL that
// traffic for that scheme is routed through.
type ProxyConfig map[string]string

// LocalProxy routes both schemes to addr, e.g. "http://127.0.0.1:8080".
func LocalProxy(addr string) ProxyConfig {
	return ProxyConfig{"http": addr, "https": addr}
}

// Clone returns an independent copy.
func (p ProxyConfig) Clone() ProxyConfig {
	if p == nil {
		return nil
	}
	out := make(ProxyConfig, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// URLFor returns the parsed proxy for scheme, or nil when the scheme goes
// direct.
func (p ProxyConfig) URLFor(scheme string) (*url.URL, error) {
	raw, ok := p[strings.ToLower(scheme)]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxy for %s: %w", scheme, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy for %s must be an absolute URL, got %q", scheme, raw)
	}
	return u, nil
}

// Validate parses every entry.
func (p ProxyConfig) Validate() error {
	for scheme := range p {
		if _, err := p.URLFor(scheme); err != nil {
			return err
		}
	}
	return nil
}
