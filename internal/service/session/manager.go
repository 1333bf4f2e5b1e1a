package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ManuelEspejo/DreamDX-AI/internal/model/dream"
	"github.com/ManuelEspejo/DreamDX-AI/internal/store"
)

// Manager owns the dream session lifecycle: creation, turn sequencing,
// the wake-up transition, and soft deletion. Every mutation goes through
// the store's compare-and-swap, which is the only synchronization in
// the system.
type Manager struct {
	store store.Store
}

// NewManager wires a Manager over the given session store.
func NewManager(st store.Store) *Manager {
	return &Manager{store: st}
}

// Create allocates a new session for ownerID, seeded with the dream
// description as turn 0.
func (m *Manager) Create(ctx context.Context, ownerID, description string) (*dream.Session, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", dream.ErrValidation)
	}
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: dream description is required", dream.ErrValidation)
	}

	sess := &dream.Session{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Status:  dream.StatusActive,
		Turns: []dream.Turn{{
			Role:      dream.RoleUser,
			Content:   description,
			Sequence:  0,
			CreatedAt: time.Now().UTC(),
		}},
	}

	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Get loads a session and verifies ownership. Soft-deleted sessions are
// reported as not found.
func (m *Manager) Get(ctx context.Context, sessionID, ownerID string) (*dream.Session, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.Deleted {
		return nil, dream.ErrNotFound
	}
	if sess.OwnerID != ownerID {
		return nil, dream.ErrNotOwner
	}
	return sess, nil
}

// AppendTurn appends one turn, enforcing the alternation invariant and
// optimistic concurrency. The write is all-or-nothing: either the turn
// and the version bump land together or nothing changes.
func (m *Manager) AppendTurn(ctx context.Context, sessionID, ownerID string, role dream.Role, content string, expectedVersion int64) (*dream.Session, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: turn content is required", dream.ErrValidation)
	}

	sess, err := m.Get(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	if sess.Status == dream.StatusEnded {
		return nil, fmt.Errorf("%w: session has ended", dream.ErrInvalidState)
	}
	if next := sess.NextRole(); next != role {
		return nil, fmt.Errorf("%w: expected %s turn, got %s", dream.ErrInvalidState, next, role)
	}
	if sess.Version != expectedVersion {
		return nil, fmt.Errorf("%w: expected version %d, stored version %d", dream.ErrConflict, expectedVersion, sess.Version)
	}

	sess.Turns = append(sess.Turns, dream.Turn{
		Role:      role,
		Content:   content,
		Sequence:  len(sess.Turns),
		CreatedAt: time.Now().UTC(),
	})

	if err := m.update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// End transitions the session to ended. Idempotent: ending an already
// ended session returns it unchanged without a write.
func (m *Manager) End(ctx context.Context, sessionID, ownerID string) (*dream.Session, error) {
	sess, err := m.Get(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	if sess.Status == dream.StatusEnded {
		return sess, nil
	}

	sess.Status = dream.StatusEnded
	if err := m.update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete soft-deletes a session. The record stays in the store but
// disappears from Get and List.
func (m *Manager) Delete(ctx context.Context, sessionID, ownerID string) error {
	sess, err := m.Get(ctx, sessionID, ownerID)
	if err != nil {
		return err
	}

	sess.Deleted = true
	return m.update(ctx, sess)
}

// List returns the owner's sessions, newest first, excluding
// soft-deleted ones.
func (m *Manager) List(ctx context.Context, ownerID string) ([]*dream.Session, error) {
	sessions, err := m.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	active := sessions[:0]
	for _, sess := range sessions {
		if !sess.Deleted {
			active = append(active, sess)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

// update translates store-level CAS failures into the domain taxonomy.
func (m *Manager) update(ctx context.Context, sess *dream.Session) error {
	err := m.store.Update(ctx, sess)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrVersionConflict):
		return fmt.Errorf("%w: concurrent update on session %s", dream.ErrConflict, sess.ID)
	case errors.Is(err, store.ErrNotFound):
		return dream.ErrNotFound
	default:
		return fmt.Errorf("persist session: %w", err)
	}
}
