package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zhouzirui/implantai/backend/internal/model/chat"
)

var (
	ErrEmptyTurn      = errors.New("turn has no text and no images")
	ErrDuplicateTurn  = errors.New("turn id already in log")
	ErrInvalidSpeaker = errors.New("invalid speaker")
)

// Discarder drops any live remote session when the log is reset.
type Discarder interface {
	Reset()
}

// Store is the ordered, append-only conversation log.
type Store struct {
	mu        sync.RWMutex
	turns     []chat.Turn
	ids       map[string]struct{}
	discarder Discarder
}

// NewStore creates a log holding only the greeting turn. discarder may be nil.
func NewStore(discarder Discarder) *Store {
	s := &Store{discarder: discarder}
	s.resetLocked()
	return s
}

// Append adds turn to the end of the log and returns it as stored. CreatedAt
// is moved forward when needed so the log stays in non-decreasing time order.
func (s *Store) Append(_ context.Context, turn chat.Turn) (chat.Turn, error) {
	if !turn.Speaker.Valid() {
		return chat.Turn{}, fmt.Errorf("%w: %q", ErrInvalidSpeaker, turn.Speaker)
	}
	if turn.Empty() {
		return chat.Turn{}, ErrEmptyTurn
	}
	if turn.ID == "" {
		return chat.Turn{}, errors.New("turn id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[turn.ID]; exists {
		return chat.Turn{}, fmt.Errorf("%w: %s", ErrDuplicateTurn, turn.ID)
	}

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	if last := len(s.turns) - 1; last >= 0 && turn.CreatedAt.Before(s.turns[last].CreatedAt) {
		turn.CreatedAt = s.turns[last].CreatedAt
	}

	turn.Images = append([]chat.Image(nil), turn.Images...)
	s.turns = append(s.turns, turn)
	s.ids[turn.ID] = struct{}{}
	return turn, nil
}

// All returns a copy of the log in insertion order.
func (s *Store) All(_ context.Context) []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Turn, len(s.turns))
	copy(copied, s.turns)
	return copied
}

// Len reports the number of turns, greeting included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Reset clears the log back to a fresh greeting and discards the live remote
// session. It returns the new greeting.
func (s *Store) Reset(_ context.Context) chat.Turn {
	s.mu.Lock()
	greeting := s.resetLocked()
	s.mu.Unlock()

	if s.discarder != nil {
		s.discarder.Reset()
	}
	return greeting
}

func (s *Store) resetLocked() chat.Turn {
	greeting := chat.NewGreetingTurn()
	s.turns = make([]chat.Turn, 0, 16)
	s.turns = append(s.turns, greeting)
	s.ids = map[string]struct{}{greeting.ID: {}}
	return greeting
}
