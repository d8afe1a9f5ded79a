// Package storagetest provides an in-memory route store that counts calls,
// for tests of the layers above storage.
package storagetest

import (
	"context"
	"sort"
	"sync"

	"github.com/yegors/flightroutes/internal/storage"
)

// Fake is an in-memory storage.Store
type Fake struct {
	mu      sync.Mutex
	records map[string]storage.RouteRecord

	// Err is returned by every call when set
	Err error
	// Block makes GetMany and Callsigns wait for context cancellation
	Block bool

	getManyCalls int
	keysFetched  [][]string
}

// NewFake creates a fake store holding records keyed by callsign
func NewFake(records ...storage.RouteRecord) *Fake {
	f := &Fake{records: make(map[string]storage.RouteRecord)}
	for _, r := range records {
		f.records[r.Callsign] = r
	}
	return f
}

// Put adds or replaces a record under key
func (f *Fake) Put(key string, record storage.RouteRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[key] = record
}

// SetErr changes the error returned by subsequent calls
func (f *Fake) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// GetMany implements storage.RouteStore
func (f *Fake) GetMany(ctx context.Context, keys []string) (map[string]storage.RouteRecord, error) {
	f.mu.Lock()
	f.getManyCalls++
	f.keysFetched = append(f.keysFetched, append([]string(nil), keys...))
	block, err := f.Block, f.Err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]storage.RouteRecord, len(keys))
	for _, k := range keys {
		if r, ok := f.records[k]; ok {
			out[k] = r
		}
	}
	return out, nil
}

// Callsigns implements storage.RouteLister
func (f *Fake) Callsigns(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	block := f.Block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]string, 0, len(f.records))
	for k := range f.records {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Ping implements storage.RouteStore
func (f *Fake) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Err
}

// Close implements storage.RouteStore
func (f *Fake) Close() error { return nil }

// GetManyCalls returns how many times GetMany was called
func (f *Fake) GetManyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getManyCalls
}

// KeysFetched returns the key sets passed to GetMany, in call order
func (f *Fake) KeysFetched() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.keysFetched...)
}
