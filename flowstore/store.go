package flowstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/natsclient"
)

// DefaultBucket is the KV bucket used when none is configured
const DefaultBucket = "semflow_flows"

// Store errors
var (
	ErrNotFound        = fmt.Errorf("flow: %w", errors.ErrKeyNotFound)
	ErrExists          = fmt.Errorf("flow: %w", errors.ErrDuplicateID)
	ErrVersionConflict = errors.New("flow: version conflict")
)

// Store persists flows in a NATS KV bucket, one key per flow id
type Store struct {
	kv *natsclient.KVStore
}

// NewStore creates the bucket if needed and returns a store on it
func NewStore(ctx context.Context, client *natsclient.Client, bucket string) (*Store, error) {
	if client == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "flowstore", "NewStore", "nats client cannot be nil")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "semflow graph documents",
		History:     10, // previous versions stay recoverable
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "NewStore", "create KV bucket")
	}
	return NewStoreFromKV(client.NewKVStore(kv)), nil
}

// NewStoreFromKV wraps an existing KV store
func NewStoreFromKV(kv *natsclient.KVStore) *Store {
	return &Store{kv: kv}
}

// Bucket returns the name of the backing bucket
func (s *Store) Bucket() string { return s.kv.Bucket() }

// Create stores a new flow at version 1. An empty id gets a fresh uuid.
func (s *Store) Create(ctx context.Context, f *Flow) error {
	if f == nil {
		return errors.WrapInvalid(errors.ErrInvalidDocument, "flowstore", "Create", "flow cannot be nil")
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.RuntimeState == "" {
		f.RuntimeState = StateStored
	}
	if err := f.Validate(); err != nil {
		return err
	}

	now := time.Now()
	f.Version = 1
	f.CreatedAt = now
	f.UpdatedAt = now

	data, err := json.Marshal(f)
	if err != nil {
		return errors.WrapFatal(err, "flowstore", "Create", "marshal flow")
	}
	if _, err := s.kv.Create(ctx, f.ID, data); err != nil {
		f.Version = 0
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(errors.Detail(ErrExists, "%s", f.ID), "flowstore", "Create", "create in KV")
		}
		return errors.WrapTransient(err, "flowstore", "Create", "create in KV")
	}
	return nil
}

// Get retrieves a flow by id
func (s *Store) Get(ctx context.Context, id string) (*Flow, error) {
	f, _, err := s.get(ctx, id)
	return f, err
}

func (s *Store) get(ctx context.Context, id string) (*Flow, uint64, error) {
	if id == "" {
		return nil, 0, errors.WrapInvalid(errors.Detail(ErrNotFound, "empty id"), "flowstore", "Get", "id check")
	}
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, 0, errors.WrapInvalid(errors.Detail(ErrNotFound, "%s", id), "flowstore", "Get", "get from KV")
		}
		return nil, 0, errors.WrapTransient(err, "flowstore", "Get", "get from KV")
	}

	var f Flow
	if err := json.Unmarshal(entry.Value, &f); err != nil {
		return nil, 0, errors.WrapFatal(err, "flowstore", "Get", "unmarshal flow")
	}
	return &f, entry.Revision, nil
}

// Update writes f if its version still matches the stored one and bumps
// the version. The write is a compare-and-set on the KV revision, so a
// concurrent writer that passed the version check still loses.
func (s *Store) Update(ctx context.Context, f *Flow) error {
	if f == nil {
		return errors.WrapInvalid(errors.ErrInvalidDocument, "flowstore", "Update", "flow cannot be nil")
	}
	if err := f.Validate(); err != nil {
		return err
	}

	current, revision, err := s.get(ctx, f.ID)
	if err != nil {
		return err
	}
	if current.Version != f.Version {
		return errors.WrapInvalid(
			errors.Detail(ErrVersionConflict, "flow %s: stored version %d, given %d", f.ID, current.Version, f.Version),
			"flowstore", "Update", "version check")
	}

	next := *f
	next.Version++
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now()

	data, err := json.Marshal(&next)
	if err != nil {
		return errors.WrapFatal(err, "flowstore", "Update", "marshal flow")
	}
	if _, err := s.kv.Update(ctx, f.ID, data, revision); err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(errors.Detail(ErrVersionConflict, "flow %s: concurrent write", f.ID),
				"flowstore", "Update", "update in KV")
		}
		return errors.WrapTransient(err, "flowstore", "Update", "update in KV")
	}
	*f = next
	return nil
}

// Save creates f when it has never been stored and updates it otherwise
func (s *Store) Save(ctx context.Context, f *Flow) error {
	if f != nil && f.Version == 0 {
		return s.Create(ctx, f)
	}
	return s.Update(ctx, f)
}

// SetRuntimeState records a state transition without a version check,
// retrying on concurrent writes
func (s *Store) SetRuntimeState(ctx context.Context, id string, state RuntimeState) error {
	if !state.Valid() {
		return errors.WrapInvalid(fmt.Errorf("invalid runtime state %q", state), "flowstore", "SetRuntimeState", "state check")
	}
	err := s.kv.UpdateWithRetry(ctx, id, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, errors.Detail(ErrNotFound, "%s", id)
		}
		var f Flow
		if err := json.Unmarshal(current, &f); err != nil {
			return nil, err
		}
		now := time.Now()
		f.MarkState(state, now)
		f.Version++
		f.UpdatedAt = now
		return json.Marshal(&f)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return errors.WrapInvalid(err, "flowstore", "SetRuntimeState", "update in KV")
	default:
		return errors.WrapTransient(err, "flowstore", "SetRuntimeState", "update in KV")
	}
}

// Delete removes a flow by id
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.kv.Delete(ctx, id); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return errors.WrapInvalid(errors.Detail(ErrNotFound, "%s", id), "flowstore", "Delete", "delete from KV")
		}
		return errors.WrapTransient(err, "flowstore", "Delete", "delete from KV")
	}
	return nil
}

// List returns every stored flow ordered by name, then id
func (s *Store) List(ctx context.Context) ([]*Flow, error) {
	keys, err := s.kv.Keys(ctx, "")
	if err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "List", "list KV keys")
	}

	flows := make([]*Flow, 0, len(keys))
	for _, key := range keys {
		f, err := s.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // deleted since listing
			}
			return nil, err
		}
		flows = append(flows, f)
	}
	slices.SortFunc(flows, func(a, b *Flow) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return flows, nil
}

// FindByName returns the flow with the given name
func (s *Store) FindByName(ctx context.Context, name string) (*Flow, error) {
	flows, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range flows {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, errors.WrapInvalid(errors.Detail(ErrNotFound, "name %q", name), "flowstore", "FindByName", "lookup")
}
