package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/store"
	"github.com/google/uuid"
)

// DeviceID returns the identifier of this installation, creating and
// persisting one on first use. An unreadable stored value is replaced.
func DeviceID(ctx context.Context, kv domain.KVStore) (string, error) {
	raw, err := kv.Get(ctx, KeyDeviceID)
	if err == nil && ValidIdentifier(string(raw)) {
		return string(raw), nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	id := uuid.NewString()
	if err := kv.Set(ctx, KeyDeviceID, []byte(id)); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}
