package approval

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollFallback is the re-check interval used alongside fsnotify events;
// it also covers filesystems where fsnotify is unreliable.
const pollFallback = 2 * time.Second

// WaitResolved blocks until the request leaves StatusPending or ctx is
// done. Returns the resolved status; a cancelled context returns
// StatusPending and the context error. Used by an interactive cycle so
// a NEEDS_CONFIRMATION action can proceed as soon as the operator
// approves from another terminal.
func (s *Store) WaitResolved(ctx context.Context, key string) (Status, error) {
	if st, err := s.Check(key); err == nil && st != StatusPending {
		return st, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return s.pollResolved(ctx, key)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return s.pollResolved(ctx, key)
	}

	ticker := time.NewTicker(pollFallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return StatusPending, ctx.Err()
		case <-ticker.C:
		case event, ok := <-watcher.Events:
			if !ok {
				return s.pollResolved(ctx, key)
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return s.pollResolved(ctx, key)
			}
			continue
		}

		if st, err := s.Check(key); err == nil && st != StatusPending {
			return st, nil
		}
	}
}

// pollResolved is the fsnotify-free fallback.
func (s *Store) pollResolved(ctx context.Context, key string) (Status, error) {
	ticker := time.NewTicker(pollFallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return StatusPending, ctx.Err()
		case <-ticker.C:
			if st, err := s.Check(key); err == nil && st != StatusPending {
				return st, nil
			}
		}
	}
}
