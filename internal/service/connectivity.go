package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultProbeTimeout  = 5 * time.Second
	defaultWatchInterval = 15 * time.Second
)

// ConnectivityMonitor tracks network and backend reachability. Network state
// comes from SetOnline (fed by the watcher); backend state from probes.
type ConnectivityMonitor struct {
	gateway domain.Gateway
	metrics *metrics.Metrics
	logger  *zap.Logger

	probeTimeout time.Duration

	mu          sync.Mutex
	online      bool
	reachable   bool
	reason      domain.ProbeReason
	lastProbeAt *time.Time
	lastSyncAt  *time.Time
	subscribers []func()

	watchAddr     string
	watchInterval time.Duration
	dialer        net.Dialer
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

func NewConnectivityMonitor(gw domain.Gateway, logger *zap.Logger) *ConnectivityMonitor {
	return &ConnectivityMonitor{
		gateway:       gw,
		logger:        logger,
		probeTimeout:  defaultProbeTimeout,
		online:        true,
		watchInterval: defaultWatchInterval,
		stopCh:        make(chan struct{}),
	}
}

func (m *ConnectivityMonitor) SetProbeTimeout(d time.Duration) {
	if d > 0 {
		m.probeTimeout = d
	}
}

func (m *ConnectivityMonitor) SetMetrics(mt *metrics.Metrics) {
	m.metrics = mt
}

// SetWatch configures the network watcher: a TCP dial of addr (host:port)
// every interval. An empty addr disables the watcher.
func (m *ConnectivityMonitor) SetWatch(addr string, interval time.Duration) {
	m.watchAddr = addr
	if interval > 0 {
		m.watchInterval = interval
	}
}

func (m *ConnectivityMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a network transition. Subscribers run once for every
// offline to online transition and never for repeated online reports.
func (m *ConnectivityMonitor) SetOnline(online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	subs := append([]func(){}, m.subscribers...)
	m.mu.Unlock()

	m.metrics.SetOnline(online)
	if was == online {
		return
	}

	m.logger.Info("network state changed", zap.Bool("online", online))
	if !online {
		return
	}
	for _, fn := range subs {
		fn()
	}
}

// Subscribe registers fn to run on every reconnect.
func (m *ConnectivityMonitor) Subscribe(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// ProbeBackend issues a lightweight read with a short timeout. Failures are
// classified and recorded; the probe itself never fails.
func (m *ConnectivityMonitor) ProbeBackend(ctx context.Context) domain.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	start := time.Now()
	err := m.ping(ctx)
	result := domain.ProbeResult{
		Reachable: err == nil,
		Reason:    ClassifyProbeError(err),
		Latency:   time.Since(start),
		CheckedAt: time.Now().UTC(),
	}
	if err != nil {
		result.Detail = err.Error()
		m.logger.Warn("backend probe failed",
			zap.String("reason", string(result.Reason)),
			zap.Duration("latency", result.Latency),
			zap.Error(err))
	}

	m.mu.Lock()
	m.reachable = result.Reachable
	m.reason = result.Reason
	checked := result.CheckedAt
	m.lastProbeAt = &checked
	m.mu.Unlock()

	m.metrics.ObserveProbe(result)
	return result
}

func (m *ConnectivityMonitor) ping(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return m.gateway.Ping(ctx)
}

// ClassifyProbeError maps a probe failure to a user-legible reason.
func ClassifyProbeError(err error) domain.ProbeReason {
	if err == nil {
		return domain.ProbeOK
	}
	if domain.KindOf(err) == domain.KindConfiguration {
		return domain.ProbeConfiguration
	}
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ProbeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ProbeTimeout
	}
	if domain.KindOf(err) == domain.KindConnectivity {
		return domain.ProbeNetwork
	}
	return domain.ProbeUnknown
}

// RecordSync stamps the time of the last completed sync.
func (m *ConnectivityMonitor) RecordSync(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at = at.UTC()
	m.lastSyncAt = &at
}

func (m *ConnectivityMonitor) State() domain.ConnectivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.ConnectivityState{
		IsOnline:           m.online,
		IsBackendReachable: m.reachable,
		Reason:             m.reason,
		LastProbeAt:        copyTime(m.lastProbeAt),
		LastSyncAt:         copyTime(m.lastSyncAt),
	}
}

// Start runs the network watcher in a background goroutine.
func (m *ConnectivityMonitor) Start() {
	if m.watchAddr == "" {
		m.logger.Info("network watcher disabled: no backend address")
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.watchInterval)
		defer ticker.Stop()

		m.logger.Info("network watcher started",
			zap.String("addr", m.watchAddr),
			zap.Duration("interval", m.watchInterval))

		m.check()
		for {
			select {
			case <-ticker.C:
				m.check()
			case <-m.stopCh:
				m.logger.Info("network watcher stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the watcher.
func (m *ConnectivityMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *ConnectivityMonitor) check() {
	ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
	defer cancel()

	conn, err := m.dialer.DialContext(ctx, "tcp", m.watchAddr)
	if err != nil {
		m.logger.Debug("network check failed", zap.String("addr", m.watchAddr), zap.Error(err))
		m.SetOnline(false)
		return
	}
	_ = conn.Close()
	m.SetOnline(true)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
