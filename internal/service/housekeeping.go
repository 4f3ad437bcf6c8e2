package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brainbox/retailplus/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultHousekeepingInterval = 1 * time.Hour
	defaultRetention            = 30 * 24 * time.Hour
)

// HousekeepingService periodically drops local state nobody will act on:
// sync failures past retention and old backups of corrupt queue content.
type HousekeepingService struct {
	kv     domain.KVStore
	queue  *QueueService
	logger *zap.Logger

	interval  time.Duration
	retention time.Duration
	now       func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewHousekeepingService(kv domain.KVStore, queue *QueueService, logger *zap.Logger) *HousekeepingService {
	return &HousekeepingService{
		kv:        kv,
		queue:     queue,
		logger:    logger,
		interval:  defaultHousekeepingInterval,
		retention: defaultRetention,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

func (s *HousekeepingService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

func (s *HousekeepingService) SetRetention(d time.Duration) {
	if d > 0 {
		s.retention = d
	}
}

// Start runs housekeeping once, then on a periodic schedule.
func (s *HousekeepingService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("housekeeping started",
			zap.Duration("interval", s.interval),
			zap.Duration("retention", s.retention))

		s.runWithTimeout()
		for {
			select {
			case <-ticker.C:
				s.runWithTimeout()
			case <-s.stopCh:
				s.logger.Info("housekeeping stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the worker. It is safe to call more than once.
func (s *HousekeepingService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *HousekeepingService) runWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Run(ctx)
}

// HousekeepingResult counts what one pass removed.
type HousekeepingResult struct {
	FailuresPruned int `json:"failures_pruned"`
	BackupsRemoved int `json:"backups_removed"`
}

// Run performs one housekeeping pass. Errors are logged, never returned:
// a failed pass is retried on the next tick.
func (s *HousekeepingService) Run(ctx context.Context) HousekeepingResult {
	var res HousekeepingResult
	cutoff := s.now().Add(-s.retention)

	pruned, err := s.queue.PruneFailures(ctx, cutoff)
	if err != nil {
		s.logger.Warn("failed to prune sync failures", zap.Error(err))
	}
	res.FailuresPruned = pruned

	keys, err := s.kv.Keys(ctx, CorruptQueuePrefix)
	if err != nil {
		s.logger.Warn("failed to list queue backups", zap.Error(err))
		return res
	}
	for _, key := range keys {
		nanos, err := strconv.ParseInt(strings.TrimPrefix(key, CorruptQueuePrefix), 10, 64)
		if err != nil || !time.Unix(0, nanos).Before(cutoff) {
			continue
		}
		if err := s.kv.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to remove queue backup", zap.String("key", key), zap.Error(err))
			continue
		}
		res.BackupsRemoved++
	}

	if res.FailuresPruned > 0 || res.BackupsRemoved > 0 {
		s.logger.Info("housekeeping pass",
			zap.Int("failures_pruned", res.FailuresPruned),
			zap.Int("backups_removed", res.BackupsRemoved))
	}
	return res
}
