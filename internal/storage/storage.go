package storage

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Store receives every successfully rebuilt exchange option list.
type Store interface {
	CommitSnapshot(context.Context, Snapshot) error
}

// Snapshot represents one successful rebuild of a selection widget
// ready to store.
type Snapshot struct {
	Widget    string    `json:"widget"`
	Exchanges []string  `json:"exchanges"`
	Timestamp time.Time `json:"timestamp"`
}

var (
	storesMu sync.Mutex
	stores   = make(map[string]Store)
)

func register(name string, s Store) {
	storesMu.Lock()
	stores[name] = s
	storesMu.Unlock()
}

// Get returns an already initialized store by its config name.
func Get(name string) (Store, bool) {
	storesMu.Lock()
	defer storesMu.Unlock()
	s, ok := stores[name]
	return s, ok
}

// Multi commits each snapshot to all of its stores concurrently.
// Every store gets its chance even when another one fails, the first
// error is returned.
type Multi []Store

// CommitSnapshot commits s to every store.
func (m Multi) CommitSnapshot(ctx context.Context, s Snapshot) error {
	var g errgroup.Group
	for _, str := range m {
		str := str
		g.Go(func() error {
			return str.CommitSnapshot(ctx, s)
		})
	}
	return g.Wait()
}
