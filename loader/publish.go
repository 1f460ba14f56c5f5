package loader

import (
	"context"
	"encoding/json"
	"path"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/natsclient"
)

// Publish copies the manifest tree of src into kv so that a KVResolver
// over the same bucket sees the same libraries. It returns the number of
// manifests written.
func Publish(ctx context.Context, kv *natsclient.KVStore, src Resolver) (int, error) {
	written := 0
	visited := make(map[string]bool)
	var walk func(dir string) error
	walk = func(dir string) error {
		if visited[dir] {
			return nil
		}
		visited[dir] = true

		m, err := src.ResolveManifest(ctx, dir)
		if err != nil {
			return err
		}
		data, err := json.Marshal(m)
		if err != nil {
			return errors.WrapFatal(err, "Loader", "Publish", "marshal manifest")
		}
		if _, err := kv.Put(ctx, ManifestKey(dir), data); err != nil {
			return err
		}
		written++

		for _, kind := range []Kind{KindProcesses, KindTypes} {
			for _, lib := range m.Section(kind).Libraries {
				if err := walk(path.Join(dir, lib.Dir)); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(""); err != nil {
		return written, err
	}
	return written, nil
}
