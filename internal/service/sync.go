package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/metrics"
	"github.com/brainbox/retailplus/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	defaultSyncInterval = 30 * time.Second
	defaultReadTimeout  = 15 * time.Second
	pullConcurrency     = 4
)

// Sync triggers
const (
	TriggerManual    = "manual"
	TriggerInterval  = "interval"
	TriggerReconnect = "reconnect"
)

// SyncService reconciles the local cache and queue with the backend: it
// drains the queue, then pulls every collection that has nothing unsent.
type SyncService struct {
	queue   *QueueService
	cache   *CacheService
	monitor *ConnectivityMonitor
	gateway domain.Gateway
	scope   *Scope
	kv      domain.KVStore
	metrics *metrics.Metrics
	logger  *zap.Logger

	readTimeout time.Duration
	interval    time.Duration

	group singleflight.Group

	mu         sync.Mutex
	lastReport *domain.SyncReport

	kick     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSyncService(
	queue *QueueService,
	cache *CacheService,
	monitor *ConnectivityMonitor,
	gw domain.Gateway,
	scope *Scope,
	kv domain.KVStore,
	logger *zap.Logger,
) *SyncService {
	s := &SyncService{
		queue:       queue,
		cache:       cache,
		monitor:     monitor,
		gateway:     gw,
		scope:       scope,
		kv:          kv,
		logger:      logger,
		readTimeout: defaultReadTimeout,
		interval:    defaultSyncInterval,
		kick:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
	s.restoreLastSync()
	return s
}

func (s *SyncService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

func (s *SyncService) SetReadTimeout(d time.Duration) {
	if d > 0 {
		s.readTimeout = d
	}
}

func (s *SyncService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SyncOut drains the queue and stamps the last sync time.
func (s *SyncService) SyncOut(ctx context.Context) domain.DrainResult {
	start := time.Now()
	result := s.queue.Drain(ctx)
	s.metrics.ObserveSyncDuration("out", time.Since(start))

	now := time.Now().UTC()
	s.monitor.RecordSync(now)
	if err := s.kv.Set(ctx, KeyLastSync, []byte(now.Format(time.RFC3339Nano))); err != nil {
		s.logger.Warn("failed to persist last sync time", zap.Error(err))
	}

	if len(result.Succeeded)+len(result.Failed)+len(result.Skipped)+len(result.Surfaced) > 0 {
		s.logger.Info("sync out finished",
			zap.Int("succeeded", len(result.Succeeded)),
			zap.Int("failed", len(result.Failed)),
			zap.Int("skipped", len(result.Skipped)),
			zap.Int("surfaced", len(result.Surfaced)))
	}
	return result
}

// SyncIn replaces the active tenant's collections with the backend's rows.
// Collections with unsent entries are left alone. Every read must succeed
// before anything is written, so a failed pull leaves the cache untouched.
func (s *SyncService) SyncIn(ctx context.Context) ([]domain.Table, error) {
	tenantID, ok := s.scope.ActiveTenantID()
	if !ok {
		return nil, ErrNotResolved
	}
	start := time.Now()
	defer func() { s.metrics.ObserveSyncDuration("in", time.Since(start)) }()

	var targets []domain.Table
	for _, c := range domain.TenantCollections {
		if s.queue.HasPending(c, tenantID) {
			s.logger.Debug("skipping pull of collection with unsent entries",
				zap.String("table", string(c)),
				zap.String("tenant_id", tenantID))
			continue
		}
		targets = append(targets, c)
	}

	rows := make([][]domain.Payload, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pullConcurrency)
	for i, c := range targets {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, s.readTimeout)
			defer cancel()
			got, err := s.gateway.Select(rctx, c, domain.Filter{"tenant_id": tenantID})
			if err != nil {
				return fmt.Errorf("pull %s: %w", c, err)
			}
			rows[i] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("sync in failed, cache left untouched",
			zap.String("tenant_id", tenantID),
			zap.String("reason", string(domain.KindOf(err))),
			zap.Error(err))
		return nil, err
	}

	// a local write may have been enqueued while the reads were in flight
	updates := make(map[domain.Table][]domain.Payload, len(targets))
	var refreshed []domain.Table
	for i, c := range targets {
		if s.queue.HasPending(c, tenantID) {
			continue
		}
		updates[c] = rows[i]
		refreshed = append(refreshed, c)
	}

	if err := s.cache.ReplaceFor(ctx, tenantID, updates); err != nil {
		s.logger.Warn("sync in discarded", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, err
	}
	return refreshed, nil
}

// SyncNow runs a full cycle if the device is online and the backend answers.
// Concurrent callers share one run.
func (s *SyncService) SyncNow(ctx context.Context, trigger string) (domain.SyncReport, error) {
	v, err, shared := s.group.Do("sync", func() (any, error) {
		return s.run(ctx, trigger)
	})
	if shared {
		s.logger.Debug("sync request coalesced", zap.String("trigger", trigger))
	}
	report, _ := v.(domain.SyncReport)
	return report, err
}

func (s *SyncService) run(ctx context.Context, trigger string) (domain.SyncReport, error) {
	report := domain.SyncReport{
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}

	if err := s.ready(ctx); err != nil {
		s.metrics.ObserveSyncRun(trigger, err)
		return report, err
	}

	report.Out = s.SyncOut(ctx)

	refreshed, err := s.SyncIn(ctx)
	report.Refreshed = refreshed
	if err != nil {
		report.PullError = err.Error()
	}
	report.FinishedAt = time.Now().UTC()
	s.metrics.ObserveSyncRun(trigger, err)

	s.mu.Lock()
	s.lastReport = &report
	s.mu.Unlock()
	return report, nil
}

// Push drains the queue only when the device is online and the backend
// answers a probe.
func (s *SyncService) Push(ctx context.Context) (domain.DrainResult, error) {
	if err := s.ready(ctx); err != nil {
		return domain.DrainResult{}, err
	}
	return s.SyncOut(ctx), nil
}

// Pull refreshes the active tenant's collections only when the device is
// online and the backend answers a probe.
func (s *SyncService) Pull(ctx context.Context) ([]domain.Table, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.SyncIn(ctx)
}

// ready reports ErrOffline unless the device is online and the backend is
// reachable.
func (s *SyncService) ready(ctx context.Context) error {
	if !s.monitor.IsOnline() {
		return fmt.Errorf("%w: %w", ErrOffline, domain.ErrUnreachable)
	}
	if probe := s.monitor.ProbeBackend(ctx); !probe.Reachable {
		return fmt.Errorf("%w: %w: %s", ErrOffline, probeSentinel(probe.Reason), probe.Reason.Message())
	}
	return nil
}

func probeSentinel(r domain.ProbeReason) error {
	switch r {
	case domain.ProbeConfiguration:
		return domain.ErrNotConfigured
	case domain.ProbeTimeout:
		return domain.ErrTimeout
	default:
		return domain.ErrUnreachable
	}
}

func (s *SyncService) Status() domain.SyncStatus {
	s.mu.Lock()
	last := s.lastReport
	s.mu.Unlock()

	status := domain.SyncStatus{
		Pending:      s.queue.PendingCount(),
		Failures:     s.queue.Failures(),
		Connectivity: s.monitor.State(),
	}
	if last != nil {
		r := *last
		status.LastReport = &r
	}
	return status
}

// Start runs sync on a fixed interval and once on every reconnect.
func (s *SyncService) Start() {
	s.monitor.Subscribe(func() {
		select {
		case s.kick <- struct{}{}:
		default:
			// a reconnect run is already pending
		}
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("sync engine started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				s.runBackground(TriggerInterval)
			case <-s.kick:
				s.runBackground(TriggerReconnect)
			case <-s.stopCh:
				s.logger.Info("sync engine stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the sync loop.
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *SyncService) runBackground(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := s.SyncNow(ctx, trigger); err != nil {
		s.logger.Debug("background sync skipped", zap.String("trigger", trigger), zap.Error(err))
	}
}

func (s *SyncService) restoreLastSync() {
	raw, err := s.kv.Get(context.Background(), KeyLastSync)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("failed to read last sync time", zap.Error(err))
		return
	}
	at, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		s.logger.Warn("discarding unreadable last sync time", zap.Error(err))
		return
	}
	s.monitor.RecordSync(at)
}
