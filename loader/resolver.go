package loader

import (
	"context"
	"io/fs"
	"path"
	"strings"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/natsclient"
)

// ModuleSource turns a manifest src into a module
type ModuleSource interface {
	LoadModule(ctx context.Context, kind Kind, src string) (Module, error)
}

// Resolver fetches manifests and modules. Dir "" is the root library.
type Resolver interface {
	ModuleSource
	ResolveManifest(ctx context.Context, dir string) (*Manifest, error)
}

// manifestFiles are tried in order in every library directory
var manifestFiles = []string{"library.json", "library.yaml", "library.yml"}

// FSResolver reads manifests from a file system; module sources are looked
// up in Modules.
type FSResolver struct {
	FS      fs.FS
	Modules ModuleSource
}

// NewFSResolver returns a resolver over fsys
func NewFSResolver(fsys fs.FS, modules ModuleSource) *FSResolver {
	return &FSResolver{FS: fsys, Modules: modules}
}

// ResolveManifest implements Resolver
func (r *FSResolver) ResolveManifest(_ context.Context, dir string) (*Manifest, error) {
	base := dir
	if base == "" {
		base = "."
	}
	for _, file := range manifestFiles {
		name := path.Join(base, file)
		data, err := fs.ReadFile(r.FS, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, errors.WrapTransient(err, "FSResolver", "ResolveManifest", "read "+name)
		}
		return ParseManifest(name, data)
	}
	return nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownLibrary, "no manifest in %q", dir),
		"FSResolver", "ResolveManifest", "lookup")
}

// LoadModule implements Resolver
func (r *FSResolver) LoadModule(ctx context.Context, kind Kind, src string) (Module, error) {
	return r.Modules.LoadModule(ctx, kind, src)
}

// KVResolver reads JSON manifests from a KV bucket. The root manifest is
// stored under "manifest" and the one for dir "a/b" under "manifest.a.b".
type KVResolver struct {
	KV      *natsclient.KVStore
	Modules ModuleSource
}

// NewKVResolver returns a resolver over kv
func NewKVResolver(kv *natsclient.KVStore, modules ModuleSource) *KVResolver {
	return &KVResolver{KV: kv, Modules: modules}
}

// ManifestKey returns the key holding the manifest of dir
func ManifestKey(dir string) string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return "manifest"
	}
	return "manifest." + strings.ReplaceAll(dir, "/", ".")
}

// ResolveManifest implements Resolver
func (r *KVResolver) ResolveManifest(ctx context.Context, dir string) (*Manifest, error) {
	key := ManifestKey(dir)
	entry, err := r.KV.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownLibrary, "no manifest in %q", dir),
				"KVResolver", "ResolveManifest", "lookup")
		}
		return nil, err
	}
	return ParseManifest(key+".json", entry.Value)
}

// LoadModule implements Resolver
func (r *KVResolver) LoadModule(ctx context.Context, kind Kind, src string) (Module, error) {
	return r.Modules.LoadModule(ctx, kind, src)
}
