package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/metrics"
	"github.com/brainbox/retailplus/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultEntryTimeout = 10 * time.Second

// attempt tracks consecutive failures of one entry. It is stored beside the
// queue so entries themselves stay immutable.
type attempt struct {
	Count          int              `json:"count"`
	ConflictStreak int              `json:"conflictStreak"`
	LastKind       domain.ErrorKind `json:"lastKind"`
	LastError      string           `json:"lastError"`
	LastAttemptAt  time.Time        `json:"lastAttemptAt"`
}

// QueueService is the durable pending-operation queue. Enqueue never touches
// the network; Drain replays entries against the gateway in FIFO order.
type QueueService struct {
	kv      domain.KVStore
	gateway domain.Gateway
	metrics *metrics.Metrics
	logger  *zap.Logger

	entryTimeout time.Duration

	mu       sync.Mutex
	entries  []domain.PendingEntry
	attempts map[string]*attempt
	failures []domain.SyncFailure

	// one drain at a time
	drainMu sync.Mutex
}

// NewQueueService loads any persisted queue from kv. Unreadable entries are
// backed up and dropped; the rest of the queue survives.
func NewQueueService(ctx context.Context, kv domain.KVStore, gw domain.Gateway, logger *zap.Logger) *QueueService {
	s := &QueueService{
		kv:           kv,
		gateway:      gw,
		logger:       logger,
		entryTimeout: defaultEntryTimeout,
		attempts:     make(map[string]*attempt),
	}
	s.load(ctx)
	return s
}

func (s *QueueService) SetEntryTimeout(d time.Duration) {
	if d > 0 {
		s.entryTimeout = d
	}
}

func (s *QueueService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
	s.metrics.SetPending(s.PendingCount())
}

// Enqueue appends a mutation and persists the queue.
func (s *QueueService) Enqueue(ctx context.Context, action domain.Action, collection domain.Table, payload domain.Payload, tenantID string) (string, error) {
	if !domain.ValidAction(string(action)) {
		return "", fmt.Errorf("%w: action %q", domain.ErrInvalidPayload, action)
	}
	if payload == nil {
		return "", fmt.Errorf("%w: nil payload", domain.ErrInvalidPayload)
	}
	if payload.Table() != collection {
		return "", fmt.Errorf("%w: %s into %s", ErrWrongCollection, payload.Table(), collection)
	}

	entry := domain.PendingEntry{
		ID:         uuid.NewString(),
		Action:     action,
		Collection: collection,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
		TenantID:   tenantID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	if err := s.persistEntries(ctx); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		return "", err
	}
	s.metrics.SetPending(s.unsyncedLocked())

	s.logger.Debug("entry enqueued",
		zap.String("entry_id", entry.ID),
		zap.String("action", string(action)),
		zap.String("table", string(collection)),
		zap.String("tenant_id", tenantID))
	return entry.ID, nil
}

// Drain applies a snapshot of the unsynced entries in creation order. An
// entry enqueued while a drain runs waits for the next drain. One entry's
// failure never stops the others.
func (s *QueueService) Drain(ctx context.Context) domain.DrainResult {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	result := domain.DrainResult{
		Succeeded: []string{},
		Failed:    []string{},
		Skipped:   []string{},
		Surfaced:  []string{},
	}

	for _, e := range s.snapshot() {
		if ctx.Err() != nil {
			// abandoned entries stay queued
			break
		}

		if !ValidIdentifier(e.Payload.EntityID()) {
			s.logger.Warn("dropping entry with malformed identifier",
				zap.String("entry_id", e.ID),
				zap.String("table", string(e.Collection)),
				zap.String("entity_id", e.Payload.EntityID()))
			s.retire(ctx, e, domain.KindData, domain.ErrInvalidIdentifier.Error(), 0)
			result.Skipped = append(result.Skipped, e.ID)
			continue
		}

		err := s.apply(ctx, e)
		if err == nil {
			s.commit(ctx, e)
			result.Succeeded = append(result.Succeeded, e.ID)
			continue
		}

		switch outcome := s.fail(ctx, e, err); outcome {
		case outcomeSkipped:
			result.Skipped = append(result.Skipped, e.ID)
		case outcomeSurfaced:
			result.Surfaced = append(result.Surfaced, e.ID)
		default:
			result.Failed = append(result.Failed, e.ID)
		}
	}

	s.metrics.ObserveDrain(result)
	s.metrics.SetPending(s.PendingCount())
	return result
}

func (s *QueueService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsyncedLocked()
}

// Pending returns a copy of the unsynced entries in creation order.
func (s *QueueService) Pending() []domain.PendingEntry {
	return s.snapshot()
}

// HasPending reports whether tenantID has unsynced entries for c.
func (s *QueueService) HasPending(c domain.Table, tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if !e.Synced && e.Collection == c && e.TenantID == tenantID {
			return true
		}
	}
	return false
}

func (s *QueueService) Failures() []domain.SyncFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SyncFailure, len(s.failures))
	copy(out, s.failures)
	return out
}

// DismissFailure removes a surfaced failure once the user acknowledged it.
func (s *QueueService) DismissFailure(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.failures {
		if f.EntryID == entryID {
			s.failures = append(s.failures[:i:i], s.failures[i+1:]...)
			return s.persistJSON(ctx, KeySyncFailures, s.failures)
		}
	}
	return ErrRecordNotFound
}

// PruneFailures drops recorded failures older than before and returns how
// many were removed.
func (s *QueueService) PruneFailures(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]domain.SyncFailure, 0, len(s.failures))
	for _, f := range s.failures {
		if f.FailedAt.After(before) {
			kept = append(kept, f)
		}
	}
	pruned := len(s.failures) - len(kept)
	if pruned == 0 {
		return 0, nil
	}
	s.failures = kept
	return pruned, s.persistJSON(ctx, KeySyncFailures, s.failures)
}

// ValidIdentifier reports whether id is a well-formed, non-nil UUID.
func ValidIdentifier(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed != uuid.Nil
}

type drainOutcome int

const (
	outcomeRetry drainOutcome = iota
	outcomeSkipped
	outcomeSurfaced
)

func (s *QueueService) apply(ctx context.Context, e domain.PendingEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.entryTimeout)
	defer cancel()

	id := e.Payload.EntityID()
	switch e.Action {
	case domain.ActionCreate:
		return s.gateway.Insert(ctx, e.Collection, e.Payload)
	case domain.ActionUpdate:
		return s.gateway.Update(ctx, e.Collection, id, e.Payload)
	case domain.ActionDelete:
		return s.gateway.Delete(ctx, e.Collection, id)
	default:
		return fmt.Errorf("%w: action %q", domain.ErrInvalidPayload, e.Action)
	}
}

// fail records a failed attempt and decides whether e stays queued. Data
// errors are dropped at once; a conflict is retried once and surfaced if the
// retry conflicts again; everything else is retried on every drain.
func (s *QueueService) fail(ctx context.Context, e domain.PendingEntry, err error) drainOutcome {
	kind := domain.KindOf(err)

	s.mu.Lock()
	a := s.attempts[e.ID]
	if a == nil {
		a = &attempt{}
		s.attempts[e.ID] = a
	}
	a.Count++
	if kind == domain.KindConflict {
		a.ConflictStreak++
	} else {
		a.ConflictStreak = 0
	}
	a.LastKind = kind
	a.LastError = err.Error()
	a.LastAttemptAt = time.Now().UTC()
	count, streak := a.Count, a.ConflictStreak
	if perr := s.persistJSON(ctx, KeySyncAttempts, s.attempts); perr != nil {
		s.logger.Warn("failed to persist sync attempts", zap.Error(perr))
	}
	s.mu.Unlock()

	fields := []zap.Field{
		zap.String("entry_id", e.ID),
		zap.String("action", string(e.Action)),
		zap.String("table", string(e.Collection)),
		zap.String("tenant_id", e.TenantID),
		zap.String("reason", string(kind)),
		zap.Int("attempts", count),
		zap.Error(err),
	}

	switch {
	case kind == domain.KindData:
		s.logger.Warn("dropping entry the backend cannot accept", fields...)
		s.retire(ctx, e, kind, err.Error(), count)
		return outcomeSkipped
	case kind == domain.KindConflict && streak >= 2:
		s.logger.Warn("entry rejected twice, surfacing", fields...)
		s.retire(ctx, e, kind, err.Error(), count)
		return outcomeSurfaced
	default:
		s.logger.Warn("entry failed, will retry", fields...)
		return outcomeRetry
	}
}

// commit marks e synced and removes it from the persisted queue.
func (s *QueueService) commit(ctx context.Context, e domain.PendingEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(e.ID); i >= 0 {
		s.entries[i].Synced = true
		s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
	}
	if err := s.persistEntries(ctx); err != nil {
		s.logger.Warn("failed to persist queue after sync", zap.String("entry_id", e.ID), zap.Error(err))
	}
	if _, ok := s.attempts[e.ID]; ok {
		delete(s.attempts, e.ID)
		if err := s.persistJSON(ctx, KeySyncAttempts, s.attempts); err != nil {
			s.logger.Warn("failed to persist sync attempts", zap.Error(err))
		}
	}
}

// retire removes e from the retry set and records why.
func (s *QueueService) retire(ctx context.Context, e domain.PendingEntry, kind domain.ErrorKind, reason string, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(e.ID); i >= 0 {
		s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
	}
	delete(s.attempts, e.ID)
	s.failures = append(s.failures, domain.SyncFailure{
		EntryID:    e.ID,
		Action:     e.Action,
		Collection: e.Collection,
		EntityID:   e.Payload.EntityID(),
		TenantID:   e.TenantID,
		Kind:       kind,
		Reason:     reason,
		Attempts:   attempts,
		FailedAt:   time.Now().UTC(),
	})

	if err := s.persistEntries(ctx); err != nil {
		s.logger.Warn("failed to persist queue", zap.String("entry_id", e.ID), zap.Error(err))
	}
	if err := s.persistJSON(ctx, KeySyncAttempts, s.attempts); err != nil {
		s.logger.Warn("failed to persist sync attempts", zap.Error(err))
	}
	if err := s.persistJSON(ctx, KeySyncFailures, s.failures); err != nil {
		s.logger.Warn("failed to persist sync failures", zap.Error(err))
	}
}

func (s *QueueService) snapshot() []domain.PendingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PendingEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.Synced {
			out = append(out, e)
		}
	}
	return out
}

func (s *QueueService) unsyncedLocked() int {
	n := 0
	for _, e := range s.entries {
		if !e.Synced {
			n++
		}
	}
	return n
}

func (s *QueueService) indexLocked(id string) int {
	for i, e := range s.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *QueueService) persistEntries(ctx context.Context) error {
	return s.persistJSON(ctx, KeyPendingSync, s.entries)
}

func (s *QueueService) persistJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func (s *QueueService) load(ctx context.Context) {
	s.entries = []domain.PendingEntry{}

	raw, err := s.kv.Get(ctx, KeyPendingSync)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		s.logger.Warn("failed to read pending queue", zap.Error(err))
	default:
		s.loadEntries(ctx, raw)
	}

	if raw, err := s.kv.Get(ctx, KeySyncAttempts); err == nil {
		if err := json.Unmarshal(raw, &s.attempts); err != nil {
			s.logger.Warn("discarding corrupt sync attempts", zap.Error(err))
			s.attempts = make(map[string]*attempt)
		}
	}
	if raw, err := s.kv.Get(ctx, KeySyncFailures); err == nil {
		if err := json.Unmarshal(raw, &s.failures); err != nil {
			s.logger.Warn("discarding corrupt sync failures", zap.Error(err))
			s.failures = nil
		}
	}

	if n := len(s.entries); n > 0 {
		s.logger.Info("pending queue restored", zap.Int("entries", n))
	}
}

func (s *QueueService) loadEntries(ctx context.Context, raw []byte) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		s.backup(ctx, raw, err)
		return
	}

	var bad []json.RawMessage
	for _, el := range elems {
		var e domain.PendingEntry
		if err := json.Unmarshal(el, &e); err != nil {
			s.logger.Warn("dropping unreadable queue entry", zap.Error(err))
			bad = append(bad, el)
			continue
		}
		s.entries = append(s.entries, e)
	}
	if len(bad) > 0 {
		b, _ := json.Marshal(bad)
		s.backup(ctx, b, fmt.Errorf("%d unreadable entries", len(bad)))
		if err := s.persistEntries(ctx); err != nil {
			s.logger.Warn("failed to rewrite pending queue", zap.Error(err))
		}
	}
}

// backup keeps unreadable queue content for manual recovery.
func (s *QueueService) backup(ctx context.Context, raw []byte, cause error) {
	key := fmt.Sprintf("%s%d", CorruptQueuePrefix, time.Now().UnixNano())
	s.logger.Warn("pending queue content unreadable, backed up", zap.String("key", key), zap.Error(cause))
	if err := s.kv.Set(ctx, key, raw); err != nil {
		s.logger.Error("failed to back up pending queue", zap.Error(err))
	}
}
