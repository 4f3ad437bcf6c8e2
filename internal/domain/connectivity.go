package domain

import "time"

type ProbeReason string

const (
	ProbeOK            ProbeReason = ""
	ProbeTimeout       ProbeReason = "timeout"
	ProbeNetwork       ProbeReason = "network"
	ProbeConfiguration ProbeReason = "configuration"
	ProbeUnknown       ProbeReason = "unknown"
)

// Message returns a user-legible explanation of the reason.
func (r ProbeReason) Message() string {
	switch r {
	case ProbeOK:
		return "backend reachable"
	case ProbeTimeout:
		return "backend did not answer in time"
	case ProbeNetwork:
		return "backend could not be reached over the network"
	case ProbeConfiguration:
		return "backend is not configured or rejected the credentials"
	default:
		return "backend check failed"
	}
}

type ProbeResult struct {
	Reachable bool          `json:"reachable"`
	Reason    ProbeReason   `json:"reason,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// ConnectivityState is process-wide and never persisted.
type ConnectivityState struct {
	IsOnline           bool        `json:"isOnline"`
	IsBackendReachable bool        `json:"isBackendReachable"`
	Reason             ProbeReason `json:"reason,omitempty"`
	LastProbeAt        *time.Time  `json:"lastProbeAt,omitempty"`
	LastSyncAt         *time.Time  `json:"lastSyncAt,omitempty"`
}

// CanSync reports whether a sync attempt may be made.
func (s ConnectivityState) CanSync() bool {
	return s.IsOnline && s.IsBackendReachable
}
