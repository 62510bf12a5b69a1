package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"gowa-blast/internal/metrics"
	"gowa-blast/internal/model"
	"gowa-blast/internal/ws"

	"github.com/rs/zerolog"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.@+-]{1,128}$`)

// ArtifactStore removes the on-disk auth data and cache of a session.
type ArtifactStore interface {
	Remove(sessionID string) error
}

// AuditRecorder persists status transitions. model.AuditLog implements it.
type AuditRecorder interface {
	RecordStatus(ctx context.Context, sessionID string, status model.Status) error
}

type session struct {
	id           string
	status       model.Status
	lastActivity time.Time
	qr           string
	client       MessagingClient
}

type lockToken struct {
	seq uint64
	at  time.Time
}

type RegistryConfig struct {
	MaxSessions int
	NewClient   ClientFactory
	Artifacts   ArtifactStore
	Audit       AuditRecorder
	Publisher   ws.RealtimePublisher
	Metrics     *metrics.Metrics
	Log         zerolog.Logger
	// Now is overridable for tests.
	Now func() time.Time
}

// Registry owns every session record and the dispatch lock table. One mutex
// guards both; client calls are never made while it is held.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	locks    map[string]lockToken
	lockSeq  uint64

	max       int
	newClient ClientFactory
	artifacts ArtifactStore
	audit     AuditRecorder
	publisher ws.RealtimePublisher
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time

	// teardowns tracks artifact removals and event-triggered destroys so
	// Shutdown can wait for them.
	teardowns sync.WaitGroup
}

type CreateResult struct {
	Status   model.Status `json:"status"`
	Existing bool         `json:"existing"`
	Evicted  string       `json:"evicted,omitempty"`
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1
	}
	if cfg.Publisher == nil {
		cfg.Publisher = ws.NopPublisher{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		sessions:  make(map[string]*session),
		locks:     make(map[string]lockToken),
		max:       cfg.MaxSessions,
		newClient: cfg.NewClient,
		artifacts: cfg.Artifacts,
		audit:     cfg.Audit,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		log:       cfg.Log.With().Str("component", "registry").Logger(),
		now:       cfg.Now,
	}
}

// CreateSession starts a session for id, evicting the least recently active
// session first when the registry is full. A live session is returned as is.
func (r *Registry) CreateSession(ctx context.Context, id string) (CreateResult, error) {
	if !sessionIDPattern.MatchString(id) {
		return CreateResult{Status: model.StatusNoSession}, ErrInvalidSessionID
	}

	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok && existing.status.Live() {
		existing.lastActivity = r.now()
		status := existing.status
		r.mu.Unlock()
		return CreateResult{Status: status, Existing: true}, nil
	}

	stale := r.sessions[id]
	if stale != nil {
		r.detachLocked(stale)
	}

	var victim *session
	if len(r.sessions) >= r.max {
		if victimID, ok := selectVictim(r.sessions); ok {
			victim = r.sessions[victimID]
			r.detachLocked(victim)
		}
	}

	rec := &session{
		id:           id,
		status:       model.StatusInitializing,
		lastActivity: r.now(),
	}
	r.sessions[id] = rec
	r.mu.Unlock()

	result := CreateResult{Status: model.StatusInitializing}
	if stale != nil {
		r.teardown(ctx, stale, "replaced")
	}
	if victim != nil {
		result.Evicted = victim.id
		r.log.Info().Str("session", victim.id).Str("for", id).Msg("evicting least recently active session")
		r.metrics.SessionEvicted()
		r.teardown(ctx, victim, "evicted")
	}

	r.recordStatus(ctx, id, model.StatusInitializing, "")

	client, err := r.newClient(id)
	if err != nil {
		return r.failInit(ctx, rec, fmt.Errorf("%w: new client: %v", ErrInitFailed, err))
	}

	r.mu.Lock()
	if r.sessions[id] != rec {
		r.mu.Unlock()
		if derr := client.Destroy(); derr != nil {
			r.log.Warn().Err(derr).Str("session", id).Msg("destroy orphaned client")
		}
		return CreateResult{Status: model.StatusNoSession}, ErrSessionClosed
	}
	rec.client = client
	r.mu.Unlock()

	r.metrics.SessionCreated()

	if err := client.Connect(ctx, func(ev ClientEvent) { r.handleEvent(rec, ev) }); err != nil {
		return r.failInit(ctx, rec, fmt.Errorf("%w: connect: %v", ErrInitFailed, err))
	}

	result.Status = r.Status(id)
	return result, nil
}

func (r *Registry) failInit(ctx context.Context, rec *session, err error) (CreateResult, error) {
	r.log.Error().Err(err).Str("session", rec.id).Msg("session init failed")

	r.mu.Lock()
	current := r.sessions[rec.id] == rec
	if current {
		rec.status = model.StatusInitError
		r.detachLocked(rec)
	}
	r.mu.Unlock()

	if current {
		r.recordStatus(ctx, rec.id, model.StatusInitError, err.Error())
		r.teardown(ctx, rec, "init_error")
	}
	return CreateResult{Status: model.StatusInitError}, err
}

// DestroySession tears a session down. Unknown ids are a no-op.
func (r *Registry) DestroySession(ctx context.Context, id string) bool {
	r.mu.Lock()
	rec, ok := r.sessions[id]
	if ok {
		r.detachLocked(rec)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.teardown(ctx, rec, "closed")
	return true
}

// destroyRecord destroys rec only if it is still the registered record for
// its id, so a late event from an old client never hits a newer session.
func (r *Registry) destroyRecord(ctx context.Context, rec *session, reason string) bool {
	r.mu.Lock()
	current := r.sessions[rec.id] == rec
	if current {
		r.detachLocked(rec)
	}
	r.mu.Unlock()

	if !current {
		return false
	}
	r.teardown(ctx, rec, reason)
	return true
}

// detachLocked purges every in-memory trace of rec. Caller holds r.mu.
func (r *Registry) detachLocked(rec *session) {
	delete(r.sessions, rec.id)
	delete(r.locks, rec.id)
}

// teardown releases the client of an already detached record. Every step is
// best effort: failures are logged and destruction is still complete.
func (r *Registry) teardown(ctx context.Context, rec *session, reason string) {
	log := r.log.With().Str("session", rec.id).Str("reason", reason).Logger()

	if rec.client != nil {
		if rec.status.LoggedIn() {
			if err := rec.client.Logout(ctx); err != nil {
				log.Warn().Err(err).Msg("logout failed")
			}
		}
		if err := rec.client.Destroy(); err != nil {
			log.Warn().Err(err).Msg("destroy client failed")
		}
	}

	if r.artifacts != nil {
		r.teardowns.Add(1)
		go func() {
			defer r.teardowns.Done()
			if err := r.artifacts.Remove(rec.id); err != nil {
				log.Warn().Err(err).Msg("remove session files failed")
			}
		}()
	}

	r.metrics.SessionDestroyed(reason)
	r.recordStatus(ctx, rec.id, model.StatusNoSession, reason)
	r.publisher.Publish(ws.WsEvent{
		Event: ws.EventSessionClosed,
		Data: ws.SessionStatusChangedData{
			SessionID: rec.id,
			Status:    string(model.StatusNoSession),
			Previous:  string(rec.status),
			Reason:    reason,
		},
	})
	log.Info().Msg("session destroyed")
}

// handleEvent runs a client signal through Transition and applies the
// resulting effects.
func (r *Registry) handleEvent(rec *session, ev ClientEvent) {
	r.mu.Lock()
	if r.sessions[rec.id] != rec {
		r.mu.Unlock()
		return
	}
	prev := rec.status
	next, effects, ok := Transition(prev, ev.Kind)
	if !ok {
		r.mu.Unlock()
		r.log.Debug().Str("session", rec.id).Str("status", string(prev)).Str("event", string(ev.Kind)).Msg("event ignored")
		return
	}
	rec.status = next
	rec.lastActivity = r.now()
	if effects.Has(EffectStoreQR) {
		rec.qr = ev.Payload
	}
	if effects.Has(EffectClearQR) {
		rec.qr = ""
	}
	r.mu.Unlock()

	ctx := context.Background()
	reason := ""
	if ev.Kind == EventAuthFailure || ev.Kind == EventDisconnected {
		reason = ev.Payload
	}
	if next != prev {
		r.recordStatus(ctx, rec.id, next, reason)
		r.publisher.Publish(ws.WsEvent{
			Event: ws.EventSessionStatusChanged,
			Data: ws.SessionStatusChangedData{
				SessionID: rec.id,
				Status:    string(next),
				Previous:  string(prev),
				Reason:    reason,
			},
		})
	}
	if effects.Has(EffectStoreQR) {
		r.publisher.Publish(ws.WsEvent{
			Event: ws.EventQRGenerated,
			Data:  ws.QRGeneratedData{SessionID: rec.id, QRData: ev.Payload},
		})
	}
	if effects.Has(EffectDestroy) {
		// Signals may arrive on the client's own event goroutine; tearing the
		// client down from there could deadlock, so hand it off.
		r.teardowns.Add(1)
		go func() {
			defer r.teardowns.Done()
			r.destroyRecord(ctx, rec, string(next))
		}()
	}
}

func (r *Registry) recordStatus(ctx context.Context, id string, status model.Status, reason string) {
	r.metrics.StatusTransition(string(status))
	ev := r.log.Debug().Str("session", id).Str("status", string(status))
	if reason != "" {
		ev = ev.Str("reason", reason)
	}
	ev.Msg("status")
	if r.audit == nil {
		return
	}
	if err := r.audit.RecordStatus(ctx, id, status); err != nil {
		r.log.Warn().Err(err).Str("session", id).Msg("audit status failed")
	}
}

// Status returns model.StatusNoSession for unknown ids.
func (r *Registry) Status(id string) model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.sessions[id]; ok {
		return rec.status
	}
	return model.StatusNoSession
}

func (r *Registry) QRCode(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok || rec.qr == "" {
		return "", false
	}
	return rec.qr, true
}

// Touch marks the session as active now. It reports false for unknown ids.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if ok {
		rec.lastActivity = r.now()
	}
	return ok
}

// Client returns the client of a session along with its status.
func (r *Registry) Client(id string) (MessagingClient, model.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok || rec.client == nil {
		return nil, model.StatusNoSession, false
	}
	return rec.client, rec.status, true
}

func (r *Registry) Stats() model.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := model.Stats{
		Total:    len(r.sessions),
		Max:      r.max,
		ByStatus: make(map[model.Status]int),
	}
	for _, rec := range r.sessions {
		stats.ByStatus[rec.status]++
	}
	return stats
}

// Info returns a snapshot of one session.
func (r *Registry) Info(id string) (model.SessionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok {
		return model.SessionInfo{ID: id, Status: model.StatusNoSession}, false
	}
	return r.infoLocked(rec), true
}

// List returns a snapshot ordered by id.
func (r *Registry) List() []model.SessionInfo {
	r.mu.Lock()
	out := make([]model.SessionInfo, 0, len(r.sessions))
	for _, rec := range r.sessions {
		out = append(out, r.infoLocked(rec))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) infoLocked(rec *session) model.SessionInfo {
	info := model.SessionInfo{
		ID:           rec.id,
		Status:       rec.status,
		LastActivity: rec.lastActivity,
		HasQR:        rec.qr != "",
	}
	if tok, ok := r.locks[rec.id]; ok {
		info.Locked = true
		info.LockedAt = tok.at
	}
	return info
}

// IdleSessions lists unlocked sessions whose last activity is before cutoff.
func (r *Registry) IdleSessions(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, rec := range r.sessions {
		if _, locked := r.locks[id]; locked {
			continue
		}
		if rec.lastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// DestroyIdle destroys id only if it is still idle and unlocked at cutoff.
func (r *Registry) DestroyIdle(ctx context.Context, id string, cutoff time.Time) bool {
	r.mu.Lock()
	rec, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, locked := r.locks[id]; locked || !rec.lastActivity.Before(cutoff) {
		r.mu.Unlock()
		return false
	}
	r.detachLocked(rec)
	r.mu.Unlock()

	r.teardown(ctx, rec, "idle")
	return true
}

// Shutdown disconnects every client without logging out or removing auth
// data, so sessions can be restored on the next start, then waits for
// pending teardowns.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	recs := make([]*session, 0, len(r.sessions))
	for _, rec := range r.sessions {
		recs = append(recs, rec)
		r.detachLocked(rec)
	}
	r.mu.Unlock()

	for _, rec := range recs {
		if rec.client == nil {
			continue
		}
		if err := rec.client.Destroy(); err != nil {
			r.log.Warn().Err(err).Str("session", rec.id).Msg("destroy client on shutdown")
		}
	}
	r.teardowns.Wait()
}
