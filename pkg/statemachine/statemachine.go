package statemachine

import (
	"sync"
)

// StateFn is a state expressed as a function, after Rob Pike's lexer
// talk: running the state returns the next one, or nil to terminate.
type StateFn[T any] func(*T) StateFn[T]

// StateMachine drives an entity through StateFn transitions. It only
// guards the current-state pointer; the entity guards itself.
type StateMachine[T any] struct {
	entity  *T
	stateFn StateFn[T]
	mu      sync.RWMutex
}

// New creates a state machine positioned at the initial state.
func New[T any](entity *T, initial StateFn[T]) *StateMachine[T] {
	return &StateMachine[T]{
		entity:  entity,
		stateFn: initial,
	}
}

// Dispatch jumps to the given state, runs it once, and settles on
// whatever state it returns. A nil jump is a no-op.
func (sm *StateMachine[T]) Dispatch(stateFn StateFn[T]) {
	sm.mu.Lock()
	sm.stateFn = stateFn
	sm.mu.Unlock()

	if stateFn == nil {
		return
	}

	next := stateFn(sm.entity)

	sm.mu.Lock()
	sm.stateFn = next
	sm.mu.Unlock()
}

// Current returns the state the machine sits in.
func (sm *StateMachine[T]) Current() StateFn[T] {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stateFn
}

// SetState repositions the machine without running anything.
func (sm *StateMachine[T]) SetState(stateFn StateFn[T]) {
	sm.mu.Lock()
	sm.stateFn = stateFn
	sm.mu.Unlock()
}
