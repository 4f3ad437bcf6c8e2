package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func ValidAction(a string) bool {
	switch Action(a) {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// PendingEntry is one mutation awaiting confirmation from the remote store.
// Only Synced changes after creation.
type PendingEntry struct {
	ID         string    `json:"id"`
	Action     Action    `json:"action"`
	Collection Table     `json:"collection"`
	Payload    Payload   `json:"payload"`
	CreatedAt  time.Time `json:"createdAt"`
	Synced     bool      `json:"synced"`
	TenantID   string    `json:"tenantId"`
}

type pendingEntryJSON struct {
	ID         string          `json:"id"`
	Action     Action          `json:"action"`
	Collection Table           `json:"collection"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`
	Synced     bool            `json:"synced"`
	TenantID   string          `json:"tenantId"`
}

func (e PendingEntry) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(pendingEntryJSON{
		ID:         e.ID,
		Action:     e.Action,
		Collection: e.Collection,
		Payload:    raw,
		CreatedAt:  e.CreatedAt,
		Synced:     e.Synced,
		TenantID:   e.TenantID,
	})
}

// UnmarshalJSON decodes the payload through the collection tag.
func (e *PendingEntry) UnmarshalJSON(b []byte) error {
	var v pendingEntryJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if !ValidAction(string(v.Action)) {
		return fmt.Errorf("%w: action %q", ErrInvalidPayload, v.Action)
	}
	p, err := DecodePayload(v.Collection, v.Payload)
	if err != nil {
		return err
	}
	*e = PendingEntry{
		ID:         v.ID,
		Action:     v.Action,
		Collection: v.Collection,
		Payload:    p,
		CreatedAt:  v.CreatedAt,
		Synced:     v.Synced,
		TenantID:   v.TenantID,
	}
	return nil
}

// SyncFailure records an entry that left the retry set without being applied.
type SyncFailure struct {
	EntryID    string    `json:"entryId"`
	Action     Action    `json:"action"`
	Collection Table     `json:"collection"`
	EntityID   string    `json:"entityId"`
	TenantID   string    `json:"tenantId"`
	Kind       ErrorKind `json:"kind"`
	Reason     string    `json:"reason"`
	Attempts   int       `json:"attempts"`
	FailedAt   time.Time `json:"failedAt"`
}

// DrainResult lists entry ids by outcome for one drain pass.
type DrainResult struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Skipped   []string `json:"skipped"`
	Surfaced  []string `json:"surfaced"`
}

// SyncReport summarizes one sync cycle.
type SyncReport struct {
	Trigger    string      `json:"trigger"`
	Out        DrainResult `json:"out"`
	Refreshed  []Table     `json:"refreshed"`
	PullError  string      `json:"pullError,omitempty"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
}

// SyncStatus is the advisory view the UI renders as badges and toasts.
type SyncStatus struct {
	Pending      int               `json:"pending"`
	Failures     []SyncFailure     `json:"failures"`
	Connectivity ConnectivityState `json:"connectivity"`
	LastReport   *SyncReport       `json:"lastReport,omitempty"`
}
