package gpib

import (
	"sync"

	"github.com/TheCount/go-multilocker/multilocker"
)

// Shared guards a Session with a mutex so several goroutines can use
// it.  Each method holds the lock for the whole address-select, send
// and read sequence, so commands for different instruments on the same
// bus never interleave.
type Shared struct {
	mu   sync.Mutex
	sess *Session
}

// Share wraps s.  s must not be used directly afterwards.
func Share(s *Session) *Shared {
	return &Shared{sess: s}
}

// Lock acquires exclusive use of the session.
func (sh *Shared) Lock() { sh.mu.Lock() }

// Unlock releases the session.
func (sh *Shared) Unlock() { sh.mu.Unlock() }

// Do runs fn with exclusive use of the session.
func (sh *Shared) Do(fn func(*Session) error) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return fn(sh.sess)
}

// Session returns the wrapped session.  Only use it while holding the
// lock (inside Do, or between Lock and Unlock).
func (sh *Shared) Session() *Session { return sh.sess }

// SendTo is Session.SendTo under the lock.
func (sh *Shared) SendTo(a int, command string) (int, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.sess.SendTo(a, command)
}

// Query is Session.Query under the lock.
func (sh *Shared) Query(a int, command string) (string, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.sess.Query(a, command)
}

// Close closes the session once in-flight use has finished.
func (sh *Shared) Close() error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.sess.Close()
}

// LockAll returns a Locker that acquires every given session at once,
// in an order that cannot deadlock against another LockAll over an
// overlapping set.  Duplicates are ignored.
func LockAll(shared ...*Shared) sync.Locker {
	seen := make(map[*Shared]struct{}, len(shared))
	lockers := make([]sync.Locker, 0, len(shared))
	for _, sh := range shared {
		if _, dup := seen[sh]; dup {
			continue
		}
		seen[sh] = struct{}{}
		lockers = append(lockers, sh)
	}
	return multilocker.New(lockers...)
}
