package vision

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handle is an externally allocated resource that must be closed exactly once.
type Handle interface {
	Close() error
}

// live counts tracked handles that have been allocated but not yet released.
var live atomic.Int64

// LiveHandles returns the number of tracked handles currently alive.
func LiveHandles() int64 {
	return live.Load()
}

// handle is a Handle whose release runs at most once.
type handle struct {
	once    sync.Once
	release func() error
	closed  atomic.Bool
}

// NewHandle tracks release as a live handle. Close runs release once; later
// calls return nil.
func NewHandle(release func() error) Handle {
	live.Add(1)
	return &handle{release: release}
}

// Close releases the handle.
func (h *handle) Close() error {
	var err error
	h.once.Do(func() {
		h.closed.Store(true)
		live.Add(-1)
		err = safeRelease(h.release)
	})
	return err
}

// Closed reports whether Close has been called.
func (h *handle) Closed() bool {
	return h.closed.Load()
}

type entry struct {
	name    string
	release func() error
}

// Arena collects the handles of one run and releases them together.
//
// An Arena is not safe for concurrent use; each run owns its own.
type Arena struct {
	name     string
	log      *slog.Logger
	entries  []entry
	released int
}

// NewArena returns an empty arena. logger receives release failures.
func NewArena(name string, logger *slog.Logger) *Arena {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arena{name: name, log: logger}
}

// Track registers release under name. It counts as a live handle until
// Release runs.
func (a *Arena) Track(name string, release func() error) {
	live.Add(1)
	a.entries = append(a.entries, entry{name: name, release: release})
}

// Len returns the number of handles waiting to be released.
func (a *Arena) Len() int {
	return len(a.entries)
}

// Released returns the number of handles released so far.
func (a *Arena) Released() int {
	return a.released
}

// Release closes every tracked handle in reverse registration order.
//
// Release never fails: a handle whose release returns an error or panics is
// logged and still counted as released, so teardown cannot mask the error
// that ended the run. Calling Release again only releases handles tracked
// since the previous call.
func (a *Arena) Release() {
	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		live.Add(-1)
		a.released++
		if err := safeRelease(e.release); err != nil {
			a.log.Warn("release failed", "arena", a.name, "handle", e.name, "error", err)
		}
	}
	a.entries = a.entries[:0]
}

// safeRelease runs release, converting a panic into an error.
func safeRelease(release func() error) (err error) {
	if release == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during release: %v", r)
		}
	}()
	return release()
}
