package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MrWong99/songwords/internal/store"
)

// StoreChecker reports whether the song database answers pings.
func StoreChecker(s store.Store) Checker {
	return Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			return s.Ping(ctx)
		},
	}
}

// ExclusionStateChecker reports whether the exclusion state file's directory
// is writable, since the tracker rewrites the file on every mutation.
func ExclusionStateChecker(path string) Checker {
	return Checker{
		Name: "exclusion_state",
		Check: func(context.Context) error {
			dir := filepath.Dir(path)
			probe, err := os.CreateTemp(dir, ".health-*")
			if err != nil {
				return fmt.Errorf("exclusion state dir %s not writable: %w", dir, err)
			}
			probe.Close()
			return os.Remove(probe.Name())
		},
	}
}
