// Package cli builds the paipan command tree. Configuration is layered:
// defaults, then the TOML file, then PAIPAN_* variables, then flags.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/raysh454/paipan/internal/app"
	"github.com/raysh454/paipan/internal/logging"
	"github.com/raysh454/paipan/internal/paipan"
	"github.com/raysh454/paipan/internal/sender"
	"github.com/raysh454/paipan/internal/server"
	"github.com/raysh454/paipan/internal/webclient"
)

// rootOptions is shared by every subcommand through persistent flags.
type rootOptions struct {
	cfg     *app.Config
	cfgPath string
}

// NewRootCommand returns the paipan command. Running it without a
// subcommand performs the fixture send.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{cfg: app.DefaultConfig()}

	root := &cobra.Command{
		Use:   "paipan",
		Short: "Send the BaZi fixture form through an intercepting proxy, or serve chart lookups",
		Example: `  paipan                      # one POST through http://127.0.0.1:8080
  paipan send --proxy http://127.0.0.1:8081
  paipan bazi --year 2005 --month 5 --day 23 --hour 9 --province 山东 --city 济南
  paipan serve --listen :8000`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, opts)
		},
	}

	bindFlags(root.PersistentFlags(), opts)

	root.AddCommand(
		newSendCommand(opts),
		newServeCommand(opts),
		newBaZiCommand(opts),
		newLiuYaoCommand(opts),
	)
	return root
}

func bindFlags(fs *pflag.FlagSet, opts *rootOptions) {
	c := opts.cfg
	fs.StringVar(&opts.cfgPath, "config", "", "config file (default ~/.config/paipan/config.toml)")
	fs.StringVar(&c.Target, "target", c.Target, "form endpoint the fixture posts to")
	fs.StringVar(&c.Proxy, "proxy", c.Proxy, "proxy URL for both http and https traffic")
	fs.BoolVar(&c.SkipTLSVerification, "insecure", c.SkipTLSVerification, "skip TLS certificate verification for the fixture send")
	fs.StringVar(&c.UserAgent, "user-agent", c.UserAgent, "User-Agent header")
	fs.StringVar(&c.Charset, "charset", c.Charset, "text encoding for form fields")
	fs.StringVar(&c.UpstreamURL, "upstream-url", c.UpstreamURL, "chart site base URL")
	fs.StringVar(&c.UpstreamProxy, "upstream-proxy", c.UpstreamProxy, "optional proxy for chart lookups")
	fs.DurationVar(&c.UpstreamTimeout, "upstream-timeout", c.UpstreamTimeout, "timeout for chart lookups (0 = none)")
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "API listen address")
	fs.StringVar(&c.StorageRoot, "storage-root", c.StorageRoot, "directory for the lookup history database")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&c.LogColor, "log-color", c.LogColor, "colorize log levels")
}

// load layers file and environment values under any flags the user set,
// then validates the result.
func (o *rootOptions) load(cmd *cobra.Command) error {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	cfgFile := o.cfgPath
	explicit := cfgFile != ""
	if !explicit {
		cfgFile = app.DefaultConfigPath()
	}
	if cfgFile != "" && (explicit || app.FileExists(cfgFile)) {
		fc, err := app.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := app.ApplyFileConfig(o.cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := app.ApplyEnvConfig(o.cfg, changed); err != nil {
		return err
	}
	return o.cfg.Validate()
}

func (o *rootOptions) logger(cmd *cobra.Command, component string) (*logging.ZapLogger, error) {
	return logging.NewZapLogger(component, logging.Options{
		Level:  o.cfg.LogLevel,
		Color:  o.cfg.LogColor,
		Output: cmd.ErrOrStderr(),
	})
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// send

func newSendCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send",
		Short: "POST the fixed BaZi form once through the configured proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, opts)
		},
	}
}

func runSend(cmd *cobra.Command, opts *rootOptions) error {
	if err := opts.load(cmd); err != nil {
		return err
	}
	logger, err := opts.logger(cmd, "send")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sc, err := opts.cfg.SenderConfig()
	if err != nil {
		return err
	}
	s, err := sender.New(sc, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	_, err = s.Send(ctx, cmd.OutOrStdout())
	return err
}

// serve

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve /api/bazi, /api/liuyao, lookup history and send jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd); err != nil {
				return err
			}
			logger, err := opts.logger(cmd, "serve")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := app.NewApplication(opts.cfg, logger)
			if err != nil {
				return err
			}
			srv, err := server.NewServer(server.Config{ListenAddr: opts.cfg.ListenAddr, Logger: logger}, a)
			if err != nil {
				_ = a.Shutdown(context.Background())
				return err
			}
			httpSrv := srv.HTTPServer()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", logging.Field{Key: "addr", Value: httpSrv.Addr})
				errCh <- httpSrv.ListenAndServe()
			}()

			var serveErr error
			select {
			case <-ctx.Done():
				logger.Info("received signal, stopping")
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					serveErr = err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
			if err := a.Shutdown(shutdownCtx); err != nil {
				logger.Warn("application shutdown", logging.Err(err))
			}
			return serveErr
		},
	}
}

// bazi / liuyao

func newBaZiCommand(opts *rootOptions) *cobra.Command {
	var q paipan.BaZiQuery
	cmd := &cobra.Command{
		Use:   "bazi",
		Short: "Fetch a four-pillars chart and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChart(cmd, opts, func(ctx context.Context, c *paipan.Client) (any, error) {
				return c.BaZi(ctx, q)
			})
		},
	}
	fs := cmd.Flags()
	fs.IntVar(&q.Year, "year", 0, "birth year")
	fs.IntVar(&q.Month, "month", 0, "birth month")
	fs.IntVar(&q.Day, "day", 0, "birth day")
	fs.IntVar(&q.Hour, "hour", 0, "birth hour (0-23)")
	fs.IntVar(&q.Minute, "minute", 0, "birth minute")
	fs.IntVar(&q.Gender, "gender", paipan.Male, "1 for male, 0 for female")
	fs.StringVar(&q.Province, "province", "", "birth province, e.g. 山东")
	fs.StringVar(&q.City, "city", "", "birth city, e.g. 济南")
	for _, f := range []string{"year", "month", "day", "hour", "province", "city"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newLiuYaoCommand(opts *rootOptions) *cobra.Command {
	var q paipan.LiuYaoQuery
	cmd := &cobra.Command{
		Use:   "liuyao",
		Short: "Cast a six-lines chart for a question and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChart(cmd, opts, func(ctx context.Context, c *paipan.Client) (any, error) {
				return c.LiuYao(ctx, q)
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&q.Event, "event", "", "the question being asked")
	fs.IntVar(&q.Year, "year", 0, "year")
	fs.IntVar(&q.Month, "month", 0, "month")
	fs.IntVar(&q.Day, "day", 0, "day")
	fs.IntVar(&q.Hour, "hour", 0, "hour (0-23)")
	fs.IntVar(&q.Minute, "minute", 0, "minute")
	for _, f := range []string{"event", "year", "month", "day", "hour"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func runChart(cmd *cobra.Command, opts *rootOptions, fetch func(context.Context, *paipan.Client) (any, error)) error {
	if err := opts.load(cmd); err != nil {
		return err
	}
	logger, err := opts.logger(cmd, "chart")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	wc, err := webclient.NewWebClient(opts.cfg.UpstreamWebClientConfig(), logger)
	if err != nil {
		return err
	}
	defer wc.Close()

	client, err := paipan.NewClient(wc, opts.cfg.ChartConfig(), logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	chart, err := fetch(ctx, client)
	if err != nil {
		return err
	}
	return writeIndented(cmd.OutOrStdout(), chart)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
