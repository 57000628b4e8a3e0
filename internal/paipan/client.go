// Package paipan fetches and parses BaZi and LiuYao charts from the
// paipan.china95.net form endpoints.
package paipan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/raysh454/paipan/internal/logging"
	"github.com/raysh454/paipan/internal/model"
	"github.com/raysh454/paipan/internal/textenc"
	"github.com/raysh454/paipan/internal/webclient"
)

// ErrUpstreamStatus wraps any non-2xx answer from the chart site.
var ErrUpstreamStatus = errors.New("chart site returned an error status")

const (
	DefaultBaseURL   = "https://paipan.china95.net"
	DefaultUserAgent = "python-requests/2.31.0"
)

// Config controls where and how charts are requested.
type Config struct {
	BaseURL   string
	UserAgent string
	// Charset is the WHATWG label used for form fields and as the fallback
	// for pages that do not declare one. Empty means gb2312.
	Charset string
}

// DefaultConfig targets the public site with GB2312 forms.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: DefaultUserAgent,
		Charset:   textenc.DefaultLabel,
	}
}

// Client posts chart forms through a WebClient and parses the replies.
type Client struct {
	wc      webclient.WebClient
	cfg     Config
	encoder textenc.Encoder
	logger  logging.Logger
}

// NewClient resolves cfg.Charset and binds the client to wc.
func NewClient(wc webclient.WebClient, cfg Config, logger logging.Logger) (*Client, error) {
	if wc == nil {
		return nil, errors.New("paipan: nil webclient")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Charset == "" {
		cfg.Charset = textenc.DefaultLabel
	}
	enc, _, err := textenc.Lookup(cfg.Charset)
	if err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		wc:      wc,
		cfg:     cfg,
		encoder: enc,
		logger:  logger.With(logging.Field{Key: "component", Value: "paipan"}),
	}, nil
}

// BaZi requests and parses a four-pillars chart.
func (c *Client) BaZi(ctx context.Context, q BaZiQuery) (*BaZiChart, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	c.logger.Info("bazi request",
		logging.Field{Key: "year", Value: q.Year},
		logging.Field{Key: "province", Value: q.Province})

	page, err := c.post(ctx, BaZiPath, q.Payload())
	if err != nil {
		return nil, err
	}
	chart, err := ParseBaZi(page)
	if err != nil {
		return nil, fmt.Errorf("bazi: %w", err)
	}
	return chart, nil
}

// LiuYao requests and parses a six-lines chart.
func (c *Client) LiuYao(ctx context.Context, q LiuYaoQuery) (*LiuYaoChart, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	c.logger.Info("liuyao request",
		logging.Field{Key: "event", Value: q.Event},
		logging.Field{Key: "year", Value: q.Year})

	page, err := c.post(ctx, LiuYaoPath, q.Payload())
	if err != nil {
		return nil, err
	}
	chart, err := ParseLiuYao(page)
	if err != nil {
		return nil, fmt.Errorf("liuyao: %w", err)
	}
	return chart, nil
}

// post sends the form and returns the decoded page.
func (c *Client) post(ctx context.Context, path string, p model.Payload) (string, error) {
	body, err := p.Encode(c.encoder)
	if err != nil {
		return "", fmt.Errorf("encode form: %w", err)
	}

	headers := http.Header{}
	headers.Set("Accept", "*/*")
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	headers.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.wc.Do(ctx, &webclient.Request{
		Method:  http.MethodPost,
		URL:     c.cfg.BaseURL + path,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return "", fmt.Errorf("post %s: %w", path, err)
	}
	if !resp.OK() {
		c.logger.Warn("chart site error status",
			logging.Field{Key: "path", Value: path},
			logging.Field{Key: "status", Value: resp.StatusCode})
		return "", fmt.Errorf("%w: %d %s", ErrUpstreamStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	page, err := textenc.DecodeHTML(resp.Body, resp.Headers.Get("Content-Type"), c.cfg.Charset)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	c.logger.Debug("chart page decoded",
		logging.Field{Key: "path", Value: path},
		logging.Field{Key: "bytes", Value: len(resp.Body)})
	return page, nil
}
