// Package sender performs the one-shot fixture request: a single form POST
// routed through an intercepting proxy, bracketed by two status lines.
package sender

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/raysh454/paipan/internal/logging"
	"github.com/raysh454/paipan/internal/webclient"
)

// ContentType is the body type of every send.
const ContentType = "application/x-www-form-urlencoded"

// Result describes the completed exchange. The status code is reported,
// never judged.
type Result struct {
	StatusCode int
	Proto      string
	BodyBytes  int
}

// Sender sends Config's request once per Send call.
type Sender struct {
	cfg    Config
	client webclient.WebClient
	logger logging.Logger
}

// New builds a Sender with a net/http client wired to cfg's proxy map and
// TLS flag.
func New(cfg Config, logger logging.Logger) (*Sender, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sender config: %w", err)
	}
	wc, err := webclient.NewWebClient(webclient.Config{
		Client:              webclient.ClientNetHTTP,
		Proxy:               cfg.Proxy.Clone(),
		SkipTLSVerification: cfg.SkipTLSVerification,
	}, logger)
	if err != nil {
		return nil, err
	}
	return NewWithClient(cfg, wc, logger), nil
}

// NewWithClient uses wc as-is; cfg.Proxy and cfg.SkipTLSVerification are
// the caller's responsibility.
func NewWithClient(cfg Config, wc webclient.WebClient, logger logging.Logger) *Sender {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	cfg.Headers = cfg.Headers.Clone()
	cfg.Proxy = cfg.Proxy.Clone()
	return &Sender{
		cfg:    cfg,
		client: wc,
		logger: logger.With(logging.Field{Key: "component", Value: "sender"}),
	}
}

// BuildRequest renders the request without sending it.
func (s *Sender) BuildRequest() (*webclient.Request, error) {
	body, err := s.cfg.Payload.Encode(s.cfg.encoder())
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	headers := s.cfg.Headers.HTTPHeader()
	headers.Set("Content-Type", ContentType)
	return &webclient.Request{
		Method:  http.MethodPost,
		URL:     s.cfg.Target,
		Headers: headers,
		Body:    body,
	}, nil
}

// Send prints StartNotice, performs the POST, and prints DoneNotice once a
// response of any status has arrived. A transport fault is returned as-is
// and DoneNotice is not printed.
func (s *Sender) Send(ctx context.Context, out io.Writer) (*Result, error) {
	req, err := s.BuildRequest()
	if err != nil {
		return nil, err
	}

	if _, err := fmt.Fprintln(out, StartNotice); err != nil {
		return nil, fmt.Errorf("write start notice: %w", err)
	}

	s.logger.Debug("posting form",
		logging.Field{Key: "target", Value: s.cfg.Target},
		logging.Field{Key: "fields", Value: s.cfg.Payload.Len()},
		logging.Field{Key: "skip_tls_verification", Value: s.cfg.SkipTLSVerification})

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", s.cfg.Target, err)
	}

	s.logger.Info("request completed",
		logging.Field{Key: "status", Value: resp.StatusCode},
		logging.Field{Key: "body_bytes", Value: len(resp.Body)})

	if _, err := fmt.Fprintln(out, DoneNotice); err != nil {
		return nil, fmt.Errorf("write done notice: %w", err)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Proto:      resp.Proto,
		BodyBytes:  len(resp.Body),
	}, nil
}

// Close releases the underlying client.
func (s *Sender) Close() error {
	return s.client.Close()
}
