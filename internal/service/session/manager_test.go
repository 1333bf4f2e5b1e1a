package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ManuelEspejo/DreamDX-AI/internal/model/dream"
	"github.com/ManuelEspejo/DreamDX-AI/internal/service/session"
	"github.com/ManuelEspejo/DreamDX-AI/internal/store"
)

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	st, err := store.New(store.DriverMemory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return session.NewManager(st)
}

func TestCreateSeedsDescriptionTurn(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "I was flying over a city")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, dream.StatusActive, sess.Status)
	require.EqualValues(t, 1, sess.Version)
	require.Len(t, sess.Turns, 1)
	require.Equal(t, dream.RoleUser, sess.Turns[0].Role)
	require.Equal(t, "I was flying over a city", sess.Turns[0].Content)
	require.Equal(t, 0, sess.Turns[0].Sequence)
}

func TestCreateValidation(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, "u1", "   ")
	require.ErrorIs(t, err, dream.ErrValidation)

	_, err = m.Create(ctx, "", "a dream")
	require.ErrorIs(t, err, dream.ErrValidation)
}

func TestGetEnforcesOwnership(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "a dream")
	require.NoError(t, err)

	_, err = m.Get(ctx, sess.ID, "u2")
	require.ErrorIs(t, err, dream.ErrNotOwner)

	_, err = m.Get(ctx, "missing", "u1")
	require.ErrorIs(t, err, dream.ErrNotFound)
}

func TestAppendTurnAlternation(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "a dream")
	require.NoError(t, err)

	// A second user turn before the narrator reply violates alternation.
	_, err = m.AppendTurn(ctx, sess.ID, "u1", dream.RoleUser, "I run", sess.Version)
	require.ErrorIs(t, err, dream.ErrInvalidState)

	updated, err := m.AppendTurn(ctx, sess.ID, "u1", dream.RoleNarrator, "You open your eyes...", sess.Version)
	require.NoError(t, err)
	require.EqualValues(t, 2, updated.Version)
	require.Len(t, updated.Turns, 2)

	_, err = m.AppendTurn(ctx, sess.ID, "u1", dream.RoleNarrator, "another passage", updated.Version)
	require.ErrorIs(t, err, dream.ErrInvalidState)
}

func TestAppendTurnSequencesContiguous(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "a dream")
	require.NoError(t, err)

	roles := []dream.Role{dream.RoleNarrator, dream.RoleUser, dream.RoleNarrator, dream.RoleUser}
	current := sess
	for _, role := range roles {
		current, err = m.AppendTurn(ctx, sess.ID, "u1", role, "turn content", current.Version)
		require.NoError(t, err)
	}

	require.Len(t, current.Turns, 5)
	for i, turn := range current.Turns {
		require.Equal(t, i, turn.Sequence)
		if i%2 == 0 {
			require.Equal(t, dream.RoleUser, turn.Role)
		} else {
			require.Equal(t, dream.RoleNarrator, turn.Role)
		}
	}
	require.EqualValues(t, 5, current.Version)
}

func TestAppendTurnStaleVersion(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "a dream")
	require.NoError(t, err)

	_, err = m.AppendTurn(ctx, sess.ID, "u1", dream.RoleNarrator, "passage", sess.Version+41)
	require.ErrorIs(t, err, dream.ErrConflict)

	got, err := m.Get(ctx, sess.ID, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 1, got.Version)
	require.Len(t, got.Turns, 1)
}

func TestAppendTurnOnEndedSession(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "a dream")
	require.NoError(t, err)

	ended, err := m.End(ctx, sess.ID, "u1")
	require.NoError(t, err)

	_, err = m.AppendTurn(ctx, sess.ID, "u1", dream.RoleNarrator, "passage", ended.Version)
	require.ErrorIs(t, err, dream.ErrInvalidState)
}

func TestEndIsIdempotent(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "a dream")
	require.NoError(t, err)

	first, err := m.End(ctx, sess.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, dream.StatusEnded, first.Status)
	require.EqualValues(t, 2, first.Version)

	second, err := m.End(ctx, sess.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, dream.StatusEnded, second.Status)
	require.EqualValues(t, 2, second.Version)
}

func TestDeleteHidesSession(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "a dream")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, sess.ID, "u1"))

	_, err = m.Get(ctx, sess.ID, "u1")
	require.ErrorIs(t, err, dream.ErrNotFound)

	err = m.Delete(ctx, sess.ID, "u1")
	require.ErrorIs(t, err, dream.ErrNotFound)
}

func TestListFiltersDeleted(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, "u1", "first dream")
	require.NoError(t, err)
	second, err := m.Create(ctx, "u1", "second dream")
	require.NoError(t, err)
	_, err = m.Create(ctx, "u2", "someone else's dream")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, first.ID, "u1"))

	sessions, err := m.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, second.ID, sessions[0].ID)
}
