// Package lock provides bounded, per-key exclusive locks used to serialize
// balance changes on the same wallet.
package lock

import (
	"context"
	"errors"
	"sort"
)

// ErrTimeout is returned when a lock could not be acquired in time.
var ErrTimeout = errors.New("lock acquisition timed out")

// Release frees every key acquired by one Acquire call. It is safe to call more than once.
type Release func()

// Locker acquires exclusive locks on a set of keys.
type Locker interface {
	// Acquire locks keys in a fixed order. Duplicate keys are locked once. On
	// failure nothing stays held.
	Acquire(ctx context.Context, keys ...string) (Release, error)
}

// normalize de-duplicates and sorts keys so every caller locks in the same order.
func normalize(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func waitErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}
