package service

import (
	"time"

	"gowa-blast/internal/model"
)

// AcquireLock takes the dispatch lock for id without blocking. It reports
// false when a lock is already held. AcquireLock, ReleaseLock and LockedAt
// are the raw lock table; the dispatcher goes through BeginDispatch and a
// Lease, which bind the lock to one session record.
func (r *Registry) AcquireLock(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.acquireLocked(id)
	return ok
}

// ReleaseLock drops the dispatch lock for id unconditionally.
func (r *Registry) ReleaseLock(id string) {
	r.mu.Lock()
	delete(r.locks, id)
	r.mu.Unlock()
}

// LockedAt reports when the current lock on id was taken.
func (r *Registry) LockedAt(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.locks[id]
	return tok.at, ok
}

func (r *Registry) acquireLocked(id string) (uint64, bool) {
	if _, held := r.locks[id]; held {
		return 0, false
	}
	r.lockSeq++
	r.locks[id] = lockToken{seq: r.lockSeq, at: r.now()}
	return r.lockSeq, true
}

// Lease is a held dispatch lock on a ready session. It is bound to the
// session record it was taken on: once that session is destroyed, Alive
// reports false and Release never touches a lock taken by a newer session
// with the same id.
type Lease struct {
	registry *Registry
	rec      *session
	token    uint64
	client   MessagingClient
}

// BeginDispatch checks the session is ready and takes its lock in one step.
func (r *Registry) BeginDispatch(id string) (*Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if rec.status != model.StatusReady || rec.client == nil {
		return nil, ErrSessionNotReady
	}
	token, ok := r.acquireLocked(id)
	if !ok {
		return nil, ErrSessionBusy
	}
	rec.lastActivity = r.now()
	return &Lease{registry: r, rec: rec, token: token, client: rec.client}, nil
}

func (l *Lease) SessionID() string { return l.rec.id }

func (l *Lease) Client() MessagingClient { return l.client }

// Alive reports whether the leased session is still registered and ready.
func (l *Lease) Alive() bool {
	r := l.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[l.rec.id] == l.rec && l.rec.status == model.StatusReady
}

// Touch records activity on the leased session.
func (l *Lease) Touch() {
	r := l.registry
	r.mu.Lock()
	if r.sessions[l.rec.id] == l.rec {
		l.rec.lastActivity = r.now()
	}
	r.mu.Unlock()
}

// Release drops the lock if it is still the one this lease took. Safe to
// call more than once.
func (l *Lease) Release() {
	r := l.registry
	r.mu.Lock()
	if tok, ok := r.locks[l.rec.id]; ok && tok.seq == l.token {
		delete(r.locks, l.rec.id)
	}
	r.mu.Unlock()
}
