package taskrun

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/cua-agent/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormStore_Create(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	t.Run("successfully create run", func(t *testing.T) {
		r := &Run{InvocationID: "inv-1", Instruction: "find kernel"}
		err := store.Create(ctx, r)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, r.ID)
		assert.Equal(t, StateIdle, r.State)
	})

	t.Run("create run without invocation", func(t *testing.T) {
		r := &Run{}
		require.NoError(t, store.Create(ctx, r))
		assert.NotEqual(t, uuid.Nil, r.ID)
	})

	t.Run("invalid state returns error", func(t *testing.T) {
		r := &Run{State: State("paused")}
		err := store.Create(ctx, r)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestGormStore_GetByID(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	t.Run("retrieve existing run", func(t *testing.T) {
		r := &Run{InvocationID: "inv-2", Instruction: "find kernel"}
		require.NoError(t, store.Create(ctx, r))

		retrieved, err := store.GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, retrieved.ID)
		assert.Equal(t, "inv-2", retrieved.InvocationID)
		assert.Equal(t, "find kernel", retrieved.Instruction)
		assert.Equal(t, StateIdle, retrieved.State)
	})

	t.Run("non-existent run returns error", func(t *testing.T) {
		_, err := store.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}

func TestGormStore_Update(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	t.Run("walk the success path", func(t *testing.T) {
		r := &Run{}
		require.NoError(t, store.Create(ctx, r))

		require.NoError(t, store.Update(ctx, r.ID, SetState(StateProvisioning)))
		require.NoError(t, store.Update(ctx, r.ID,
			SetSession("sess-1", "https://live.example/sess-1"),
			SetState(StateSessionInit),
		))
		require.NoError(t, store.Update(ctx, r.ID, SetState(StateExecuting)))
		require.NoError(t, store.Update(ctx, r.ID, SetState(StateFinalizing)))
		require.NoError(t, store.Update(ctx, r.ID,
			SetTeardownError(errors.New("release: 500")),
			SetArtifactURL("file:///tmp/artifacts/result.md"),
			SetFinished(true, "Found Kernel's page; draft: ..."),
		))

		retrieved, err := store.GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StateDone, retrieved.State)
		assert.True(t, retrieved.Success)
		assert.Equal(t, "Found Kernel's page; draft: ...", retrieved.Result)
		assert.Equal(t, "sess-1", retrieved.SessionID)
		assert.Equal(t, "https://live.example/sess-1", retrieved.LiveViewURL)
		assert.Equal(t, "release: 500", retrieved.TeardownError)
		assert.Equal(t, "file:///tmp/artifacts/result.md", retrieved.ArtifactURL)
		assert.Empty(t, retrieved.Error)
		require.NotNil(t, retrieved.StartTime)
		require.NotNil(t, retrieved.EndTime)
		require.NotNil(t, retrieved.Duration)
	})

	t.Run("provisioning failure goes straight to done", func(t *testing.T) {
		r := &Run{}
		require.NoError(t, store.Create(ctx, r))
		require.NoError(t, store.Update(ctx, r.ID, SetState(StateProvisioning)))
		require.NoError(t, store.Update(ctx, r.ID,
			SetError(errors.New("quota exceeded")),
			SetFinished(false, ""),
		))

		retrieved, err := store.GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.False(t, retrieved.Success)
		assert.Equal(t, "quota exceeded", retrieved.Error)
	})

	t.Run("invalid transition returns error", func(t *testing.T) {
		r := &Run{}
		require.NoError(t, store.Create(ctx, r))

		err := store.Update(ctx, r.ID, SetState(StateExecuting))
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("update non-existent returns error", func(t *testing.T) {
		err := store.Update(ctx, uuid.New(), SetState(StateProvisioning))
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}

func TestGormStore_List(t *testing.T) {
	db, store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var runs []interface{}
	for i := 0; i < 5; i++ {
		runs = append(runs, &Run{
			InvocationID: "inv-list",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
	}
	runs = append(runs, &Run{InvocationID: "inv-other", CreatedAt: base.Add(10 * time.Minute)})
	testutil.CreateFixtures(t, db, runs...)

	t.Run("list newest first with pagination", func(t *testing.T) {
		page1, err := store.List(ctx, 2, 0)
		require.NoError(t, err)
		require.Len(t, page1, 2)
		assert.Equal(t, "inv-other", page1[0].InvocationID)

		page2, err := store.List(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, page2, 2)
		assert.NotEqual(t, page1[1].ID, page2[0].ID)
	})

	t.Run("count", func(t *testing.T) {
		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 6, count)
	})

	t.Run("list by invocation", func(t *testing.T) {
		got, err := store.ListByInvocation(ctx, "inv-list")
		require.NoError(t, err)
		assert.Len(t, got, 5)
		for _, r := range got {
			assert.Equal(t, "inv-list", r.InvocationID)
		}

		none, err := store.ListByInvocation(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
