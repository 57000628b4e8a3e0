package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/paipan/internal/history"
	"github.com/raysh454/paipan/internal/logging"
	"github.com/raysh454/paipan/internal/paipan"
	"github.com/raysh454/paipan/internal/sender"
	"github.com/raysh454/paipan/internal/webclient"
)

// Application is the runtime state shared by the server handlers: config,
// logger and the services built from them. Tests may assemble one by hand
// with doubles in place of the real services.
type Application struct {
	Config  *Config
	Logger  logging.Logger
	Sender  *sender.Sender
	Charts  *paipan.Client
	History *history.Store
	Orch    *Orchestrator

	closers []func() error
}

// NewApplication validates cfg and builds every service it describes.
func NewApplication(cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Application{Config: cfg, Logger: logger}

	sc, err := cfg.SenderConfig()
	if err != nil {
		return nil, err
	}
	snd, err := sender.New(sc, logger)
	if err != nil {
		return nil, fmt.Errorf("build sender: %w", err)
	}
	a.Sender = snd
	a.closers = append(a.closers, snd.Close)

	wc, err := webclient.NewWebClient(cfg.UpstreamWebClientConfig(), logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build upstream client: %w", err)
	}
	a.closers = append(a.closers, wc.Close)

	charts, err := paipan.NewClient(wc, cfg.ChartConfig(), logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build chart client: %w", err)
	}
	a.Charts = charts

	store, err := history.Open(cfg.StorageRoot, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open history: %w", err)
	}
	a.History = store
	a.closers = append(a.closers, store.Close)

	a.Orch = NewOrchestrator(snd, logger)
	return a, nil
}

// Shutdown stops running jobs, then releases clients and the database.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var errs []error
	if a.Orch != nil {
		if err := a.Orch.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("orchestrator shutdown returned error", logging.Err(err))
			errs = append(errs, err)
		}
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Application) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
