package resultstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synclabs/voiceflow/workflow"
)

func TestMemoryStore_SaveAndLoad(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	result := &Result{
		RequestID: "req-123",
		Status:    StatusComplete,
		Workflow:  &workflow.Spec{Name: "Test Workflow", IsComplete: true},
	}
	require.NoError(t, store.Save(ctx, result))

	loaded, err := store.Load(ctx, "req-123")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, loaded.Status)
	assert.Equal(t, "Test Workflow", loaded.Workflow.Name)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestMemoryStore_LoadNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Load(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_InvalidInput(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Load(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidID)

	assert.ErrorIs(t, store.Save(ctx, nil), ErrInvalidResult)
	assert.ErrorIs(t, store.Save(ctx, &Result{}), ErrInvalidID)
	assert.ErrorIs(t, store.Delete(ctx, ""), ErrInvalidID)
}

func TestMemoryStore_DefaultNoTTL(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Result{RequestID: "req-1", Status: StatusProcessing}))

	loaded, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, loaded.Status)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	store := NewMemoryStore(WithMemoryTTL(50 * time.Millisecond))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Result{RequestID: "req-ttl", Status: StatusComplete}))

	_, err := store.Load(ctx, "req-ttl")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	_, err = store.Load(ctx, "req-ttl")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SaveOverwrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Result{RequestID: "req-1", Status: StatusProcessing}))
	require.NoError(t, store.Save(ctx, &Result{RequestID: "req-1", Status: StatusComplete}))

	loaded, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, loaded.Status)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Result{RequestID: "req-1", Status: StatusComplete}))
	require.NoError(t, store.Delete(ctx, "req-1"))

	_, err := store.Load(ctx, "req-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "req-1"), ErrNotFound)
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Result{RequestID: "req-1", Status: StatusProcessing}))

	first, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	first.Status = StatusFailed

	second, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, second.Status)
}
