package webclient

import (
	"time"

	"github.com/raysh454/paipan/internal/model"
)

type Client string

const (
	ClientNetHTTP Client = "nethttp"
)

// Config carries everything needed to build a WebClient.
type Config struct {
	Client Client

	// Timeout bounds the whole exchange. Zero means no timeout.
	Timeout time.Duration

	// Proxy routes each request scheme through a proxy. Schemes without an
	// entry go direct; proxy environment variables are never consulted.
	Proxy model.ProxyConfig

	// SkipTLSVerification disables server certificate verification. Only set
	// this when an intercepting proxy presents its own locally generated
	// certificate.
	SkipTLSVerification bool
}
