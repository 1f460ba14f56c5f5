package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/semflow/componentregistry"
	"github.com/c360/semflow/config"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/flowgraph"
	"github.com/c360/semflow/flowstore"
	"github.com/c360/semflow/health"
	"github.com/c360/semflow/loader"
	"github.com/c360/semflow/metric"
	"github.com/c360/semflow/natsclient"
	"github.com/c360/semflow/output/websocket"
	"github.com/c360/semflow/types"
)

// app owns every long-lived piece of the runtime
type app struct {
	cli    *CLIConfig
	cfg    *config.Config
	logger *slog.Logger

	metrics   *metric.MetricsRegistry
	nats      *natsclient.Client
	catalog   *loader.Catalog
	libraryKV *natsclient.KVStore
	modules   *loader.Loader
	sheet     *flow.Sheet
	flows     *flowstore.Store
	flow      *flowstore.Flow // stored flow being run, nil when none
	events    *websocket.Output
	health    *health.Monitor
	servers   []*metric.Server
}

// healthDetailPath serves the per-part report next to the plain /health probe
const healthDetailPath = "/health/detail"

func newApp(cli *CLIConfig, cfg *config.Config, logger *slog.Logger) *app {
	if logger == nil {
		logger = slog.Default()
	}
	return &app{
		cli:     cli,
		cfg:     cfg,
		logger:  logger,
		metrics: metric.NewMetricsRegistry(),
		health:  health.NewMonitor(),
	}
}

// setup builds everything short of importing the graph and serving
func (a *app) setup(ctx context.Context) error {
	if a.cli.FlowName != "" && a.cfg.Flows.Bucket == "" {
		return errors.WrapInvalid(errors.Detail(errors.ErrMissingConfig, "-flow requires flows.bucket"),
			"app", "setup", "flow store check")
	}
	if a.cli.Publish && a.cfg.Libraries.Source != config.LibrarySourceNATS {
		return errors.WrapInvalid(errors.Detail(errors.ErrInvalidConfig, "-publish requires libraries.source nats"),
			"app", "setup", "publish check")
	}

	if a.cfg.NeedsNATS() {
		if err := a.connectNATS(ctx); err != nil {
			return err
		}
	}

	catalog, err := componentregistry.NewCatalog()
	if err != nil {
		return err
	}
	a.catalog = catalog

	resolver, err := a.buildResolver(ctx)
	a.health.Update("library", health.FromError("library", err, a.cfg.Libraries.Source))
	if err != nil {
		return err
	}
	a.modules = loader.New(resolver, types.NewBuiltinRegistry(),
		loader.WithLogger(a.logger),
		loader.WithMetrics(a.metrics))

	a.sheet = flow.NewSheet(a.modules.Types(), a.modules,
		flow.WithLogger(a.logger),
		flow.WithMetrics(a.metrics),
		flow.WithIDSource(flow.NewRandomIDSource(a.cfg.Runtime.Seed, a.cfg.Runtime.IDSpace)),
		flow.WithQueueSize(a.cfg.Runtime.QueueSize))
	a.health.Register("sheet", health.RunnerProbe(a.sheet))

	if a.cfg.Flows.Bucket != "" {
		store, err := flowstore.NewStore(ctx, a.nats, a.cfg.Flows.Bucket)
		if err != nil {
			return err
		}
		a.flows = store
	}

	return a.setupServers()
}

func (a *app) connectNATS(ctx context.Context) error {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(a.logger),
		natsclient.WithMetrics(a.metrics),
		natsclient.WithMaxReconnects(a.cfg.NATS.MaxReconnects),
		natsclient.WithName(appName),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			a.logger.Info("NATS health changed", "healthy", healthy)
		}),
	}
	if a.cfg.NATS.Timeout > 0 {
		opts = append(opts, natsclient.WithTimeout(a.cfg.NATS.Timeout))
	}
	if a.cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(a.cfg.NATS.Username, a.cfg.NATS.Password))
	}
	if a.cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(a.cfg.NATS.Token))
	}

	client, err := natsclient.NewClient(strings.Join(a.cfg.NATS.URLs, ","), opts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	a.logger.Info("Connecting to NATS", "urls", a.cfg.NATS.URLs)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("NATS connection timeout: %w", err)
	}
	a.nats = client
	a.health.Register("nats", health.ConnectionProbe(client))
	return nil
}

// buildResolver selects where libraries come from
func (a *app) buildResolver(ctx context.Context) (loader.Resolver, error) {
	switch a.cfg.Libraries.Source {
	case config.LibrarySourceFS:
		a.logger.Info("Resolving libraries from files", "dir", a.cfg.Libraries.Dir)
		return loader.NewFSResolver(os.DirFS(a.cfg.Libraries.Dir), a.catalog), nil
	case config.LibrarySourceNATS:
		bucket, err := a.nats.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      a.cfg.Libraries.Bucket,
			Description: "semflow library manifests",
			History:     5,
		})
		if err != nil {
			return nil, fmt.Errorf("library bucket: %w", err)
		}
		a.libraryKV = a.nats.NewKVStore(bucket)
		a.logger.Info("Resolving libraries from NATS KV", "bucket", a.cfg.Libraries.Bucket)
		return loader.NewKVResolver(a.libraryKV, a.catalog), nil
	default:
		return a.catalog, nil
	}
}

// setupServers creates the metrics server and mounts the event stream,
// sharing one listener when both use the same address
func (a *app) setupServers() error {
	if a.cfg.Metrics.Addr != "" {
		a.servers = append(a.servers, metric.NewServer(a.cfg.Metrics.Addr, a.cfg.Metrics.Path, a.metrics))
	}
	if a.cfg.Events.Addr == "" {
		a.mountHealth()
		return nil
	}

	out, err := websocket.New(websocket.Config{BufferSize: a.cfg.Events.BufferSize},
		websocket.WithLogger(a.logger),
		websocket.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	out.Attach(a.sheet)
	a.events = out
	a.serverFor(a.cfg.Events.Addr).Handle(a.cfg.Events.Path, out)
	a.mountHealth()
	return nil
}

// mountHealth serves the health report on the first server
func (a *app) mountHealth() {
	if len(a.servers) == 0 {
		return
	}
	a.servers[0].Handle(healthDetailPath, health.Handler(a.health, appName))
}

func (a *app) serverFor(addr string) *metric.Server {
	for _, srv := range a.servers {
		if srv.Addr() == addr {
			return srv
		}
	}
	srv := metric.NewServer(addr, a.cfg.Metrics.Path, a.metrics)
	a.servers = append(a.servers, srv)
	return srv
}

// loadGraph imports the -graph file or the stored -flow into the sheet
func (a *app) loadGraph(ctx context.Context) error {
	var doc *flow.Document
	if a.cli.GraphPath != "" {
		data, err := os.ReadFile(a.cli.GraphPath)
		if err != nil {
			return fmt.Errorf("read graph: %w", err)
		}
		d, err := flow.ParseDocument(data)
		if err != nil {
			return fmt.Errorf("parse graph %s: %w", a.cli.GraphPath, err)
		}
		doc = &d
	}

	if a.cli.FlowName != "" {
		f, err := a.flows.FindByName(ctx, a.cli.FlowName)
		switch {
		case err == nil:
			a.flow = f
			if doc == nil {
				doc = &f.Graph
			}
		case errors.Is(err, flowstore.ErrNotFound) && a.cli.SaveOnExit:
			a.logger.Info("Flow not stored yet, it is created on shutdown", "flow", a.cli.FlowName)
			a.flow = flowstore.New(a.cli.FlowName, flow.Document{})
		default:
			return err
		}
	}

	if doc == nil {
		return nil
	}
	ids, err := a.sheet.ImportGraph(ctx, *doc)
	if err != nil {
		return err
	}
	a.logger.Info("Graph imported", "processes", len(ids), "connections", len(doc.Connections))
	return nil
}

// validate prints the connectivity report of the imported graph
func (a *app) validate(w io.Writer) error {
	result := flowgraph.FromSheet(a.sheet).AnalyzeConnectivity()
	_, err := fmt.Fprint(w, result.Summary())
	return err
}

// list prints the modules reachable through the configured library
func (a *app) list(ctx context.Context, w io.Writer) error {
	handlers, err := a.modules.List(ctx, loader.KindProcesses)
	if err != nil {
		return err
	}
	typeModules, err := a.modules.List(ctx, loader.KindTypes)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(w, "processes:")
	for _, name := range handlers {
		h, err := a.modules.LoadHandler(ctx, name)
		if err != nil {
			_, _ = fmt.Fprintf(w, "  %s (load failed: %v)\n", name, err)
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", name, h.Description)
	}
	_, _ = fmt.Fprintln(w, "types:")
	for _, name := range typeModules {
		_, _ = fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}

// publish copies the built-in manifests into the library bucket
func (a *app) publish(ctx context.Context, w io.Writer) error {
	n, err := loader.Publish(ctx, a.libraryKV, a.catalog)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "published %d manifests to %s\n", n, a.libraryKV.Bucket())
	return err
}

// serve runs the sheet until ctx ends or a server fails
func (a *app) serve(ctx context.Context) error {
	errCh := make(chan error, len(a.servers))
	for _, srv := range a.servers {
		a.logger.Info("Serving HTTP", "addr", srv.Addr())
		go func() { errCh <- srv.Start() }()
	}

	processes := len(a.sheet.Processes())
	if err := a.sheet.Start(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(err, a.shutdown())
	}
	a.markRunning(ctx)
	a.logger.Info("semflow started", "processes", processes)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	case runErr = <-errCh:
		a.logger.Error("Server stopped", "error", runErr)
	}
	return errors.Join(runErr, a.shutdown())
}

func (a *app) markRunning(ctx context.Context) {
	if a.flow == nil || a.flow.Version == 0 {
		return
	}
	if err := a.flows.SetRuntimeState(ctx, a.flow.ID, flowstore.StateRunning); err != nil {
		a.logger.Warn("Failed to mark flow running", "flow", a.flow.Name, "error", err)
	}
}

// shutdown stops the sheet first so its final batch reaches clients, then
// stores the flow and stops the servers
func (a *app) shutdown() error {
	timeout := a.cfg.Runtime.ShutdownTimeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errs := []error{a.sheet.Stop(timeout)}
	if a.events != nil {
		errs = append(errs, a.events.Close(timeout))
	}
	errs = append(errs, a.storeFlow(ctx))
	for _, srv := range a.servers {
		errs = append(errs, srv.Stop(ctx))
	}

	err := errors.Join(errs...)
	if err == nil {
		a.logger.Info("semflow shutdown complete")
	}
	return err
}

// storeFlow saves the exported graph when -save is set, and otherwise only
// records that the stored flow stopped
func (a *app) storeFlow(ctx context.Context) error {
	if a.flows == nil || a.flow == nil {
		return nil
	}
	if !a.cli.SaveOnExit {
		if a.flow.Version == 0 {
			return nil
		}
		return a.flows.SetRuntimeState(ctx, a.flow.ID, flowstore.StateStopped)
	}

	target := a.flow
	if target.Version > 0 {
		latest, err := a.flows.Get(ctx, target.ID)
		if err != nil {
			return err
		}
		target = latest
	}
	target.Snapshot(a.sheet)
	target.MarkState(flowstore.StateStopped, time.Now())
	if err := a.flows.Save(ctx, target); err != nil {
		return err
	}
	a.logger.Info("Flow saved", "flow", target.Name, "id", target.ID, "version", target.Version)
	return nil
}

// close releases the NATS connection
func (a *app) close() {
	if a.nats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.nats.Close(ctx); err != nil {
		a.logger.Warn("NATS close failed", "error", err)
	}
}
