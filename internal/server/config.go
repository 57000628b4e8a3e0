package server

import "github.com/raysh454/paipan/internal/logging"

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	Logger logging.Logger
}
