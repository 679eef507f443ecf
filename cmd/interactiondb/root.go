package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"interactiondb/internal/blob"
	"interactiondb/internal/config"
	"interactiondb/internal/core"
	"interactiondb/internal/interaction"
	"interactiondb/internal/logging"
	"interactiondb/internal/lookup"
	"interactiondb/pkg/domain"
)

// app holds the collaborators built from configuration for one command.
type app struct {
	cfg     config.Config
	logger  zerolog.Logger
	store   domain.PersistentStore
	blobs   blob.Store
	svc     *core.Service
	closers []io.Closer
	server  *http.Server
}

type appOptions struct {
	in          io.Reader
	out         io.Writer
	errOut      io.Writer
	interactive bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}
	a.logger = logging.New(cfg.LogLevel, cfg.LogFormat, opts.errOut).With().Str("run_id", uuid.NewString()).Logger()

	a.store, err = core.OpenPersistentStore(ctx, cfg.Storage, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store)

	decisions, closer, err := core.OpenDecisionStore(ctx, cfg.Decisions, a.store)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.blobs, err = core.OpenBlobStore(ctx, cfg.Blob)
	if err != nil {
		a.Close()
		return nil, err
	}

	engine := core.LoadRules(ctx, a.blobs, cfg.Resolver.RulesKey, cfg.Resolver.SymmetricDeny, a.logger)

	svcOpts := []core.Option{
		core.WithLogger(a.logger),
		core.WithRules(engine),
		core.WithDecisionStore(decisions),
		core.WithBlobStore(a.blobs),
		core.WithMaxEscalations(cfg.Resolver.MaxEscalations),
		core.WithFormulaResolver(lookup.NewResolver(lookup.NewHTTPFetcher(cfg.Resolver.FetchTimeout), lookup.WithLogger(a.logger))),
	}
	if opts.interactive {
		var promptOpts []interaction.Option
		promptOpts = append(promptOpts, interaction.WithLogger(a.logger))
		if cfg.Resolver.OpenViewer {
			promptOpts = append(promptOpts, interaction.WithOpener(interaction.NewExecOpener(cfg.Resolver.ViewerCommand)))
		}
		svcOpts = append(svcOpts, core.WithInteractor(interaction.NewPrompter(opts.in, opts.out, promptOpts...)))
	}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusRecorder(reg)
		if err != nil {
			a.Close()
			return nil, err
		}
		svcOpts = append(svcOpts, core.WithMetrics(rec))
		a.serveMetrics(reg)
	}
	a.svc = core.NewService(a.store, svcOpts...)
	return a, nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.server = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Str("addr", a.cfg.MetricsAddr).Msg("metrics server stopped")
		}
	}()
}

// Close releases every opened resource.
func (a *app) Close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.server.Shutdown(ctx)
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "interactiondb",
		Short:        "Unify reaction network entities imported from external databases",
		SilenceUsage: true,
	}
	cmd.AddCommand(newMigrateCmd(), newImportCmd(), newMergeCmd(), newDecisionsCmd(), newResolveCmd())
	return cmd
}

func withApp(cmd *cobra.Command, interactive bool, fn func(a *app) error) error {
	a, err := newApp(cmd.Context(), appOptions{
		in:          cmd.InOrStdin(),
		out:         cmd.OutOrStdout(),
		errOut:      cmd.ErrOrStderr(),
		interactive: interactive,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path) // #nosec G304 -- operator supplied path
}
