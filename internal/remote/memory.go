package remote

import (
	"context"
	"sort"
	"sync"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
)

// Memory is an in-process Store. It is used by tests and by single-process setups
// where every client shares one address space.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[string]aggregate.ClientSnapshot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{snapshots: make(map[string]aggregate.ClientSnapshot)}
}

func (m *Memory) Get(ctx context.Context, clientID string) (aggregate.ClientSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return aggregate.ClientSnapshot{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snapshots[clientID]
	if !ok {
		return aggregate.ClientSnapshot{}, false, nil
	}
	return s.Clone(), true, nil
}

func (m *Memory) Put(ctx context.Context, clientID string, snapshot aggregate.ClientSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if stored, ok := m.snapshots[clientID]; ok {
		if err := CheckVersion(stored, snapshot); err != nil {
			return err
		}
	}
	s := snapshot.Clone()
	s.ClientID = clientID
	m.snapshots[clientID] = s
	return nil
}

func (m *Memory) List(ctx context.Context, cursor string, limit int) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.snapshots))
	for id := range m.snapshots {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var page Page
	for i, id := range ids {
		if i == limit {
			page.NextCursor = ids[i-1]
			break
		}
		page.Snapshots = append(page.Snapshots, m.snapshots[id].Clone())
	}
	return page, nil
}

// Len returns the number of stored snapshots.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}

// Noop is a Store that holds nothing. It lets a client run without any shared
// store configured.
type Noop struct{}

func (Noop) Get(context.Context, string) (aggregate.ClientSnapshot, bool, error) {
	return aggregate.ClientSnapshot{}, false, nil
}

func (Noop) Put(context.Context, string, aggregate.ClientSnapshot) error { return nil }

func (Noop) List(context.Context, string, int) (Page, error) { return Page{}, nil }
