package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/evstore/internal/ir"
)

// Backend is the synchronous, kind-specific half of a store's storage.
//
// Only the Handle's flusher goroutine calls Append; ReadAll may run
// concurrently with it and must observe a prefix of the appended records.
type Backend interface {
	// Append makes events durable. On nil return every event is visible to
	// any later ReadAll, including one from another process.
	Append(ctx context.Context, events []ir.Event) error

	// ReadAll returns durable events in ascending seq order, stopping before
	// the first gap or damaged record.
	ReadAll(ctx context.Context) ([]ir.Event, error)

	// Close releases the backend. Data appended before Close stays durable.
	Close() error
}

// Factory opens the backend of one store. cfg has defaults applied and the
// store lock, if any, is already held.
type Factory func(ctx context.Context, cfg Config, storeID string) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend kind available to Open. It panics on a duplicate
// kind, like database/sql.Register.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if f == nil {
		panic("storage: Register factory is nil")
	}
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("storage: Register called twice for kind %q", kind))
	}
	registry[kind] = f
}

// Registered reports whether kind has a factory.
func Registered(kind string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

// Kinds returns the registered kinds, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func lookup(kind string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[kind]
	return f, ok
}

// Empty returns a Backend with no events that rejects appends. Backends use
// it for read-only opens of a store that was never written.
func Empty() Backend {
	return emptyBackend{}
}

type emptyBackend struct{}

func (emptyBackend) Append(context.Context, []ir.Event) error {
	return ErrReadOnly
}

func (emptyBackend) ReadAll(context.Context) ([]ir.Event, error) {
	return []ir.Event{}, nil
}

func (emptyBackend) Close() error {
	return nil
}
