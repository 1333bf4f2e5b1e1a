package dream

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser     Role = "user"
	RoleNarrator Role = "narrator"
)

// Status tracks the session lifecycle.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Turn is a single exchange unit within a session.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sequence  int       `json:"sequence"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is a persisted dream narrative: an ordered, append-only
// conversation between one user and the narrator.
type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Status    Status    `json:"status"`
	Turns     []Turn    `json:"turns"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"version"`
}

// LastTurn returns the most recent turn, if any.
func (s *Session) LastTurn() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

// NextRole is the role the alternation invariant expects next. Sessions
// open with a user turn, and exactly one narrator turn follows each
// user turn.
func (s *Session) NextRole() Role {
	last, ok := s.LastTurn()
	if !ok {
		return RoleUser
	}
	if last.Role == RoleUser {
		return RoleNarrator
	}
	return RoleUser
}

// Clone returns a deep copy so callers can mutate freely without
// aliasing store-held state.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Turns = make([]Turn, len(s.Turns))
	copy(cp.Turns, s.Turns)
	return &cp
}
