package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHousekeeping_PrunesOldFailuresAndBackups(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	failures := []domain.SyncFailure{
		{EntryID: "old", Kind: domain.KindConflict, FailedAt: now.Add(-40 * 24 * time.Hour)},
		{EntryID: "recent", Kind: domain.KindData, FailedAt: now.Add(-time.Hour)},
	}
	raw, err := json.Marshal(failures)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, KeySyncFailures, raw))

	oldBackup := fmt.Sprintf("%s%d", CorruptQueuePrefix, now.Add(-31*24*time.Hour).UnixNano())
	newBackup := fmt.Sprintf("%s%d", CorruptQueuePrefix, now.Add(-24*time.Hour).UnixNano())
	oddBackup := CorruptQueuePrefix + "manual"
	for _, key := range []string{oldBackup, newBackup, oddBackup} {
		require.NoError(t, kv.Set(ctx, key, []byte("[]")))
	}

	queue := NewQueueService(ctx, kv, gateway.NewMockClient(), zap.NewNop())
	hk := NewHousekeepingService(kv, queue, zap.NewNop())
	hk.now = func() time.Time { return now }

	res := hk.Run(ctx)
	assert.Equal(t, 1, res.FailuresPruned)
	assert.Equal(t, 1, res.BackupsRemoved)

	remaining := queue.Failures()
	require.Len(t, remaining, 1)
	assert.Equal(t, "recent", remaining[0].EntryID)

	keys, err := kv.Keys(ctx, CorruptQueuePrefix)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{newBackup, oddBackup}, keys)

	// pruning is persisted
	reloaded := NewQueueService(ctx, kv, gateway.NewMockClient(), zap.NewNop())
	assert.Len(t, reloaded.Failures(), 1)
}

func TestHousekeeping_Retention(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	now := time.Now()
	backup := fmt.Sprintf("%s%d", CorruptQueuePrefix, now.Add(-2*time.Hour).UnixNano())
	require.NoError(t, kv.Set(ctx, backup, []byte("x")))

	queue := NewQueueService(ctx, kv, gateway.NewMockClient(), zap.NewNop())
	hk := NewHousekeepingService(kv, queue, zap.NewNop())

	assert.Zero(t, hk.Run(ctx).BackupsRemoved)

	hk.SetRetention(time.Hour)
	assert.Equal(t, 1, hk.Run(ctx).BackupsRemoved)

	hk.SetRetention(0)
	assert.Equal(t, time.Hour, hk.retention, "non-positive retention is ignored")
}

func TestHousekeeping_StartStop(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	queue := NewQueueService(ctx, kv, gateway.NewMockClient(), zap.NewNop())
	hk := NewHousekeepingService(kv, queue, zap.NewNop())
	hk.SetInterval(10 * time.Millisecond)

	hk.Start()
	hk.Stop()
	hk.Stop()
}

func TestDeviceID(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()

	id, err := DeviceID(ctx, kv)
	require.NoError(t, err)
	assert.True(t, ValidIdentifier(id))

	again, err := DeviceID(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, id, again, "stable across calls")

	require.NoError(t, kv.Set(ctx, KeyDeviceID, []byte("garbage")))
	replaced, err := DeviceID(ctx, kv)
	require.NoError(t, err)
	assert.NotEqual(t, "garbage", replaced)
	assert.True(t, ValidIdentifier(replaced))
}
