package scopehttp

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// Locker lets one client reserve the instrument; while locked, mutating
// requests from others return 423.  Paths in DoNotProtect stay reachable so
// the lock can always be inspected and released.
type Locker struct {
	mu       sync.Mutex
	isLocked bool

	DoNotProtect []string
}

// NewLocker returns a locker that never protects the lock routes themselves.
func NewLocker() *Locker {
	return &Locker{DoNotProtect: []string{"lock", "settings", "derived"}}
}

// Lock the locker.
func (l *Locker) Lock() {
	l.mu.Lock()
	l.isLocked = true
	l.mu.Unlock()
}

// Unlock the locker.
func (l *Locker) Unlock() {
	l.mu.Lock()
	l.isLocked = false
	l.mu.Unlock()
}

// Locked returns true if the locker is locked.
func (l *Locker) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isLocked
}

// Check is a middleware that bounces protected requests while locked.
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() {
			protected := true
			for _, str := range l.DoNotProtect {
				if strings.Contains(r.URL.Path, str) {
					protected = false
				}
			}
			if protected {
				w.WriteHeader(http.StatusLocked)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type lockT struct {
	Lock bool `json:"lock"`
}

// HTTPSet locks or unlocks based on json:lock in the request body.
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	var b lockT
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.Lock {
		l.Lock()
	} else {
		l.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPGet returns Locked() as JSON.
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	replyJSON(w, lockT{Lock: l.Locked()})
}
