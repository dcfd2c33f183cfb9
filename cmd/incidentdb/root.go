package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"incidentdb/internal/blob"
	"incidentdb/internal/config"
	"incidentdb/internal/core"
)

type rootOptions struct {
	configPath string
	workbook   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "incidentdb",
		Short: "Fire incident records kept in an Excel workbook",
		Long: `incidentdb loads a fire-incident workbook, serves it over HTTP and
writes it back. Settings come from --config and INCIDENTDB_* variables.

Environment:
` + config.Usage(),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVarP(&opts.workbook, "workbook", "w", "", "workbook path (overrides config)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newListCmd(opts),
		newExportCmd(opts),
		newReportCmd(opts),
	)
	return root
}

// load reads settings and applies command-line overrides. Logs go to out.
func (o *rootOptions) load(out io.Writer) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.workbook != "" {
		cfg.Workbook.Path = o.workbook
	}
	return cfg, o.logger(cfg, out), nil
}

func (o *rootOptions) logger(cfg config.Config, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if out != nil {
		log.SetOutput(out)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if o.verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	return log
}

// app is a service wired from config, with the resources to release.
type app struct {
	svc      *core.Service
	log      *logrus.Logger
	registry *prometheus.Registry
	closers  []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// buildApp opens the journal and blob store, registers metrics and loads the
// workbook unless a resumed journal already holds the session.
func buildApp(ctx context.Context, cfg config.Config, log *logrus.Logger, load bool) (*app, error) {
	logger := core.NewLogrusLogger(log)
	store, closer, err := core.OpenPersistentStore(ctx, cfg.StorageConfig(), nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{log: log, registry: prometheus.NewRegistry(), closers: []io.Closer{closer}}

	blobs, err := blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	prom, err := core.NewPrometheusMetricsRecorder(a.registry)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.svc = core.NewService(store,
		core.WithLogger(logger),
		core.WithTracer(core.NewLogTracer(logger)),
		core.WithAuditRecorder(core.NewLogAuditRecorder(logger)),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{prom, core.NewExpvarMetricsRecorder("")}),
		core.WithBlobStore(blobs),
		core.WithWorkbook(cfg.Workbook.Path, cfg.Workbook.RequiredSheets...),
		core.WithResume(cfg.Storage.Resume),
		core.WithURLExpiry(cfg.URLExpiry),
	)
	if !load {
		return a, nil
	}
	res, err := a.svc.LoadWorkbook(ctx)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load workbook: %w", err)
	}
	for _, v := range res.Violations {
		log.WithFields(logrus.Fields{"rule": v.Rule, "entity": v.Entity, "id": v.EntityID}).Warn(v.Message)
	}
	return a, nil
}
