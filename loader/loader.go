package loader

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/metric"
	"github.com/c360/semflow/types"
)

// Loader resolves module names through a Resolver's manifest tree and
// memoizes what it fetched. Concurrent requests for the same manifest or
// module share one fetch. Loaded types modules are installed into the
// loader's type registry.
type Loader struct {
	resolver Resolver
	registry *types.Registry
	logger   *slog.Logger
	metrics  *metric.Metrics
	retry    errors.RetryConfig
	override bool

	group singleflight.Group

	mu          sync.RWMutex
	manifests   map[string]*Manifest
	handlers    map[string]*flow.Handler
	typeModules map[string]*types.Module

	busyMu sync.Mutex
	busy   int
	idle   chan struct{}
}

// Option configures a Loader
type Option func(*Loader)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics reports loads and in-flight fetches to registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(l *Loader) { l.metrics = registry.CoreMetrics() }
}

// WithRetry sets the retry policy for transient resolver failures
func WithRetry(cfg errors.RetryConfig) Option {
	return func(l *Loader) { l.retry = cfg }
}

// WithOverride lets loaded types modules replace existing type definitions
func WithOverride(override bool) Option {
	return func(l *Loader) { l.override = override }
}

// New creates a loader. A nil registry gets the built-in types.
func New(resolver Resolver, registry *types.Registry, opts ...Option) *Loader {
	if registry == nil {
		registry = types.NewBuiltinRegistry()
	}
	l := &Loader{
		resolver:    resolver,
		registry:    registry,
		logger:      slog.Default(),
		retry:       errors.DefaultRetryConfig(),
		manifests:   make(map[string]*Manifest),
		handlers:    make(map[string]*flow.Handler),
		typeModules: make(map[string]*types.Module),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "loader")
	return l
}

// Types returns the registry loaded types modules are installed into
func (l *Loader) Types() *types.Registry { return l.registry }

// normalize accepts "a.b.c" and "a/b/c"
func normalize(name string) (string, []string, error) {
	norm := strings.Trim(strings.ReplaceAll(name, "/", "."), ".")
	segs := strings.Split(norm, ".")
	for _, seg := range segs {
		if seg == "" {
			return "", nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownModule, "malformed name %q", name),
				"Loader", "normalize", "name check")
		}
	}
	return norm, segs, nil
}

func (l *Loader) enter() {
	l.busyMu.Lock()
	if l.busy == 0 {
		l.idle = make(chan struct{})
	}
	l.busy++
	n := l.busy
	l.busyMu.Unlock()
	l.metrics.RecordLoaderInflight(n)
}

func (l *Loader) exit() {
	l.busyMu.Lock()
	l.busy--
	n := l.busy
	if n == 0 {
		close(l.idle)
	}
	l.busyMu.Unlock()
	l.metrics.RecordLoaderInflight(n)
}

// Busy returns the number of load operations in progress
func (l *Loader) Busy() int {
	l.busyMu.Lock()
	defer l.busyMu.Unlock()
	return l.busy
}

// AwaitIdle blocks until no load is in progress, failed loads included
func (l *Loader) AwaitIdle(ctx context.Context) error {
	l.busyMu.Lock()
	if l.busy == 0 {
		l.busyMu.Unlock()
		return nil
	}
	idle := l.idle
	l.busyMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Loader", "AwaitIdle", "wait for idle")
	}
}

// manifest returns the memoized manifest of dir
func (l *Loader) manifest(ctx context.Context, dir string) (*Manifest, error) {
	l.mu.RLock()
	m, ok := l.manifests[dir]
	l.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := l.group.Do("manifest:"+dir, func() (any, error) {
		l.enter()
		defer l.exit()

		var fetched *Manifest
		err := errors.Retry(ctx, l.retry, func() error {
			var err error
			fetched, err = l.resolver.ResolveManifest(ctx, dir)
			return err
		})
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.manifests[dir] = fetched
		l.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Manifest), nil
}

// ResolveLibraryPath walks the manifest tree one segment at a time and
// returns the src of the named module.
func (l *Loader) ResolveLibraryPath(ctx context.Context, kind Kind, name string) (string, error) {
	norm, segs, err := normalize(name)
	if err != nil {
		return "", err
	}

	dir := ""
	for i, seg := range segs {
		m, err := l.manifest(ctx, dir)
		if err != nil {
			return "", errors.Wrap(err, "Loader", "ResolveLibraryPath", "fetch manifest for "+norm)
		}
		sec := m.Section(kind)
		if i == len(segs)-1 {
			mod, ok := sec.Module(seg)
			if !ok {
				return "", errors.WrapInvalid(errors.Detail(errors.ErrUnknownModule, "%s module %q", kind, norm),
					"Loader", "ResolveLibraryPath", "module lookup")
			}
			return mod.Src, nil
		}
		lib, ok := sec.Library(seg)
		if !ok {
			return "", errors.WrapInvalid(
				errors.Detail(errors.ErrUnknownLibrary, "%s library %q in %q", kind, strings.Join(segs[:i+1], "."), norm),
				"Loader", "ResolveLibraryPath", "library lookup")
		}
		dir = path.Join(dir, lib.Dir)
	}
	return "", errors.WrapInvalid(errors.Detail(errors.ErrUnknownModule, "%q", name),
		"Loader", "ResolveLibraryPath", "module lookup")
}

func (l *Loader) fetchModule(ctx context.Context, kind Kind, src string) (Module, error) {
	var mod Module
	err := errors.Retry(ctx, l.retry, func() error {
		var err error
		mod, err = l.resolver.LoadModule(ctx, kind, src)
		return err
	})
	return mod, err
}

func (l *Loader) record(kind Kind, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l.metrics.RecordModuleLoad(string(kind), status)
}

// Handler returns an already loaded handler without fetching
func (l *Loader) Handler(name string) (*flow.Handler, bool) {
	norm, _, err := normalize(name)
	if err != nil {
		return nil, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.handlers[norm]
	return h, ok
}

// LoadHandler fetches a handler module and the types modules it requires
func (l *Loader) LoadHandler(ctx context.Context, name string) (*flow.Handler, error) {
	norm, _, err := normalize(name)
	if err != nil {
		return nil, err
	}
	if h, ok := l.Handler(norm); ok {
		return h, nil
	}

	v, err, _ := l.group.Do("processes:"+norm, func() (any, error) {
		l.enter()
		defer l.exit()

		h, err := l.loadHandler(ctx, norm)
		l.record(KindProcesses, err)
		if err != nil {
			l.logger.Warn("Handler load failed", "module", norm, "error", err)
			return nil, err
		}
		l.mu.Lock()
		l.handlers[norm] = h
		l.mu.Unlock()
		l.logger.Debug("Handler loaded", "module", norm)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*flow.Handler), nil
}

func (l *Loader) loadHandler(ctx context.Context, name string) (*flow.Handler, error) {
	src, err := l.ResolveLibraryPath(ctx, KindProcesses, name)
	if err != nil {
		return nil, err
	}
	mod, err := l.fetchModule(ctx, KindProcesses, src)
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "LoadHandler", "fetch "+src)
	}
	if mod.Handler == nil {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrModuleKind, "%q is not a handler module", name),
			"Loader", "LoadHandler", "kind check")
	}
	for _, req := range mod.Handler.Requires {
		if _, err := l.LoadTypes(ctx, req); err != nil {
			return nil, errors.Wrap(err, "Loader", "LoadHandler", "load required types "+req)
		}
	}
	return mod.Handler, nil
}

// LoadTypes fetches a types module and installs it into the registry
func (l *Loader) LoadTypes(ctx context.Context, name string) (*types.Module, error) {
	norm, _, err := normalize(name)
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	m, ok := l.typeModules[norm]
	l.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := l.group.Do("types:"+norm, func() (any, error) {
		l.enter()
		defer l.exit()

		m, err := l.loadTypes(ctx, norm)
		l.record(KindTypes, err)
		if err != nil {
			l.logger.Warn("Types load failed", "module", norm, "error", err)
			return nil, err
		}
		l.mu.Lock()
		l.typeModules[norm] = m
		l.mu.Unlock()
		l.logger.Debug("Types loaded", "module", norm, "types", m.Types)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Module), nil
}

func (l *Loader) loadTypes(ctx context.Context, name string) (*types.Module, error) {
	src, err := l.ResolveLibraryPath(ctx, KindTypes, name)
	if err != nil {
		return nil, err
	}
	mod, err := l.fetchModule(ctx, KindTypes, src)
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "LoadTypes", "fetch "+src)
	}
	if mod.Types == nil {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrModuleKind, "%q is not a types module", name),
			"Loader", "LoadTypes", "kind check")
	}
	if err := mod.Types.Install(l.registry, l.override); err != nil {
		return nil, err
	}
	return mod.Types, nil
}

// List walks the manifest tree and returns every module name of kind
func (l *Loader) List(ctx context.Context, kind Kind) ([]string, error) {
	var names []string
	var walk func(dir string, prefix []string) error
	walk = func(dir string, prefix []string) error {
		m, err := l.manifest(ctx, dir)
		if err != nil {
			return err
		}
		sec := m.Section(kind)
		for _, mod := range sec.Modules {
			names = append(names, strings.Join(append(prefix, mod.Name), "."))
		}
		for _, lib := range sec.Libraries {
			next := append(append([]string(nil), prefix...), lib.Name)
			if err := walk(path.Join(dir, lib.Dir), next); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("", nil); err != nil {
		return nil, err
	}
	return names, nil
}

var _ flow.HandlerSource = (*Loader)(nil)
