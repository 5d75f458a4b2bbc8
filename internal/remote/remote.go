// Package remote defines the shared store that holds every client's snapshot and
// the adapters that talk to it.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
)

// DefaultPageSize is used when a caller passes a non-positive page size.
const DefaultPageSize = 100

// ErrStaleVersion is returned by Put when the store already holds a newer version
// of the client's snapshot.
var ErrStaleVersion = errors.New("snapshot version is older than the stored one")

// TransportError reports that the store could not be reached or did not answer in
// time. Callers recover by serving cached data and retrying on a later tick.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Page is one page of a List call. NextCursor is empty on the last page.
// Skipped counts stored snapshots that could not be decoded and were left out.
type Page struct {
	Snapshots  []aggregate.ClientSnapshot `json:"snapshots"`
	NextCursor string                     `json:"next_cursor,omitempty"`
	Skipped    int                        `json:"skipped,omitempty"`
}

// Store is a keyed document store of client snapshots.
type Store interface {
	// Get returns the snapshot stored for clientID. ok is false when none exists.
	Get(ctx context.Context, clientID string) (snapshot aggregate.ClientSnapshot, ok bool, err error)

	// Put replaces the snapshot stored for clientID. It returns ErrStaleVersion
	// when the stored snapshot has a higher version.
	Put(ctx context.Context, clientID string, snapshot aggregate.ClientSnapshot) error

	// List returns up to limit snapshots ordered by client id, starting after
	// cursor. An empty cursor starts from the beginning.
	List(ctx context.Context, cursor string, limit int) (Page, error)
}

// ListAll drains every page of store into a map keyed by client id.
func ListAll(ctx context.Context, store Store, pageSize int) (map[string]aggregate.ClientSnapshot, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	out := make(map[string]aggregate.ClientSnapshot)
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := store.List(ctx, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		for _, s := range page.Snapshots {
			if s.ClientID == "" {
				continue
			}
			out[s.ClientID] = s
		}

		if page.NextCursor == "" {
			return out, nil
		}
		if page.NextCursor == cursor {
			return nil, fmt.Errorf("list snapshots: cursor %q did not advance", cursor)
		}
		cursor = page.NextCursor
	}
}

// CheckVersion returns ErrStaleVersion when incoming is older than stored.
func CheckVersion(stored, incoming aggregate.ClientSnapshot) error {
	if incoming.Version < stored.Version {
		return fmt.Errorf("%w: stored %d, got %d", ErrStaleVersion, stored.Version, incoming.Version)
	}
	return nil
}
