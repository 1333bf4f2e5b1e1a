package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ManuelEspejo/DreamDX-AI/internal/model/dream"
	"github.com/ManuelEspejo/DreamDX-AI/internal/store"
)

func newTestSession(id, ownerID string) *dream.Session {
	return &dream.Session{
		ID:      id,
		OwnerID: ownerID,
		Status:  dream.StatusActive,
		Turns: []dream.Turn{{
			Role:     dream.RoleUser,
			Content:  "I was flying over a city",
			Sequence: 0,
		}},
	}
}

func newMemory(t *testing.T) store.Store {
	t.Helper()
	st, err := store.New(store.DriverMemory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestMemoryCreateAndGet(t *testing.T) {
	st := newMemory(t)
	ctx := context.Background()

	sess := newTestSession("s1", "u1")
	require.NoError(t, st.Create(ctx, sess))
	require.EqualValues(t, 1, sess.Version)
	require.False(t, sess.CreatedAt.IsZero())

	got, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "u1", got.OwnerID)
	require.Len(t, got.Turns, 1)
}

func TestMemoryGetAbsent(t *testing.T) {
	st := newMemory(t)

	got, err := st.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryCreateDuplicate(t *testing.T) {
	st := newMemory(t)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, newTestSession("s1", "u1")))
	err := st.Create(ctx, newTestSession("s1", "u2"))
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestMemoryUpdateBumpsVersion(t *testing.T) {
	st := newMemory(t)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, newTestSession("s1", "u1")))

	sess, err := st.Get(ctx, "s1")
	require.NoError(t, err)

	sess.Turns = append(sess.Turns, dream.Turn{Role: dream.RoleNarrator, Content: "You touch down gently...", Sequence: 1})
	require.NoError(t, st.Update(ctx, sess))
	require.EqualValues(t, 2, sess.Version)

	got, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	require.EqualValues(t, 2, got.Version)
	require.Len(t, got.Turns, 2)
}

func TestMemoryUpdateVersionConflict(t *testing.T) {
	st := newMemory(t)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, newTestSession("s1", "u1")))

	stale, err := st.Get(ctx, "s1")
	require.NoError(t, err)

	fresh, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, st.Update(ctx, fresh))

	err = st.Update(ctx, stale)
	require.ErrorIs(t, err, store.ErrVersionConflict)

	// A failed update must leave the caller's session untouched so a
	// re-read and retry starts from a clean state.
	require.EqualValues(t, 1, stale.Version)
	require.Equal(t, stale.CreatedAt, stale.UpdatedAt)
}

func TestMemoryUpdateMissing(t *testing.T) {
	st := newMemory(t)

	err := st.Update(context.Background(), newTestSession("ghost", "u1"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryConcurrentUpdatesOneWinner(t *testing.T) {
	st := newMemory(t)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, newTestSession("s1", "u1")))

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := st.Get(ctx, "s1")
			if err != nil {
				errs[i] = err
				return
			}
			sess.Turns = append(sess.Turns, dream.Turn{Role: dream.RoleNarrator, Content: "passage", Sequence: 1})
			errs[i] = st.Update(ctx, sess)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, store.ErrVersionConflict)
		}
	}
	require.GreaterOrEqual(t, succeeded, 1)

	got, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	require.EqualValues(t, 1+succeeded, got.Version)
	require.Len(t, got.Turns, 1+succeeded)
}

func TestMemoryListByOwner(t *testing.T) {
	st := newMemory(t)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, newTestSession("s1", "u1")))
	require.NoError(t, st.Create(ctx, newTestSession("s2", "u1")))
	require.NoError(t, st.Create(ctx, newTestSession("s3", "u2")))

	sessions, err := st.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	sessions, err = st.ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestMemoryDelete(t *testing.T) {
	st := newMemory(t)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, newTestSession("s1", "u1")))
	require.NoError(t, st.Delete(ctx, "s1"))

	got, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryGetReturnsIsolatedCopy(t *testing.T) {
	st := newMemory(t)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, newTestSession("s1", "u1")))

	got, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	got.Turns[0].Content = "tampered"
	got.Turns = append(got.Turns, dream.Turn{Role: dream.RoleNarrator, Content: "extra", Sequence: 1})

	fresh, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, fresh.Turns, 1)
	require.Equal(t, "I was flying over a city", fresh.Turns[0].Content)
}
