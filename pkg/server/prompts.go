package server

import (
	"errors"
	"sync"
	"time"

	"github.com/vctt94/karata/pkg/karata"
)

// Prompt outcomes. A canceled prompt means the connection went away;
// a timed out one means the player never answered. The turn pipeline
// treats both as the player abandoning the game.
var (
	ErrPromptPending  = errors.New("a prompt of this kind is already outstanding")
	ErrPromptCanceled = errors.New("prompt canceled")
	ErrPromptTimeout  = errors.New("prompt timed out")
)

// DefaultPromptTimeout bounds how long a turn waits on an answer.
const DefaultPromptTimeout = 2 * time.Minute

// PromptKind distinguishes the questions a turn can ask.
type PromptKind int

const (
	// PromptCardRequest asks which card or suit the player demands.
	PromptCardRequest PromptKind = iota
	// PromptLastCard asks whether the player's next card wins.
	PromptLastCard
)

var promptKinds = [...]PromptKind{PromptCardRequest, PromptLastCard}

type promptKey struct {
	connID string
	kind   PromptKind
}

type promptWaiter struct {
	card   chan karata.Card
	answer chan bool
	cancel chan struct{}
}

// PromptRegistry tracks the inline questions the turn pipeline puts to
// players: at most one prompt of each kind per connection. Answers
// that arrive with no matching prompt are dropped.
type PromptRegistry struct {
	mu      sync.Mutex
	pending map[promptKey]*promptWaiter
	timeout time.Duration
}

// NewPromptRegistry creates a registry with the given answer timeout.
// A non-positive timeout falls back to DefaultPromptTimeout.
func NewPromptRegistry(timeout time.Duration) *PromptRegistry {
	if timeout <= 0 {
		timeout = DefaultPromptTimeout
	}
	return &PromptRegistry{
		pending: make(map[promptKey]*promptWaiter),
		timeout: timeout,
	}
}

func (r *PromptRegistry) register(connID string, kind PromptKind) (*promptWaiter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := promptKey{connID, kind}
	if _, ok := r.pending[key]; ok {
		return nil, ErrPromptPending
	}
	w := &promptWaiter{
		card:   make(chan karata.Card, 1),
		answer: make(chan bool, 1),
		cancel: make(chan struct{}),
	}
	r.pending[key] = w
	return w, nil
}

// removeWaiter deletes the entry only if it still belongs to w, so a
// stale waiter cannot evict a fresh prompt registered under the same
// key.
func (r *PromptRegistry) removeWaiter(key promptKey, w *promptWaiter) {
	r.mu.Lock()
	if cur, ok := r.pending[key]; ok && cur == w {
		delete(r.pending, key)
	}
	r.mu.Unlock()
}

func (r *PromptRegistry) cancelKey(key promptKey) {
	r.mu.Lock()
	w, ok := r.pending[key]
	if ok {
		delete(r.pending, key)
	}
	r.mu.Unlock()
	if ok {
		close(w.cancel)
	}
}

// CardWait is the pending half of a card request prompt.
type CardWait struct {
	reg *PromptRegistry
	key promptKey
	w   *promptWaiter
}

// AwaitCardRequest inserts a card request prompt for the connection
// and fails if one is already outstanding. Deliver the prompt to the
// player after this returns, then Wait for the answer; registering
// first means an instant answer cannot race past the registry.
func (r *PromptRegistry) AwaitCardRequest(connID string) (*CardWait, error) {
	w, err := r.register(connID, PromptCardRequest)
	if err != nil {
		return nil, err
	}
	return &CardWait{reg: r, key: promptKey{connID, PromptCardRequest}, w: w}, nil
}

// Wait blocks until the player answers, the prompt is canceled, or the
// registry timeout passes.
func (cw *CardWait) Wait() (karata.Card, error) {
	defer cw.reg.removeWaiter(cw.key, cw.w)
	timer := time.NewTimer(cw.reg.timeout)
	defer timer.Stop()
	select {
	case card := <-cw.w.card:
		return card, nil
	case <-cw.w.cancel:
		return karata.Card{}, ErrPromptCanceled
	case <-timer.C:
		return karata.Card{}, ErrPromptTimeout
	}
}

// Cancel withdraws the prompt; a pending Wait returns
// ErrPromptCanceled.
func (cw *CardWait) Cancel() {
	cw.reg.cancelKey(cw.key)
}

// LastCardWait is the pending half of a last card prompt.
type LastCardWait struct {
	reg *PromptRegistry
	key promptKey
	w   *promptWaiter
}

// AwaitLastCard inserts a last card prompt for the connection, failing
// if one is already outstanding.
func (r *PromptRegistry) AwaitLastCard(connID string) (*LastCardWait, error) {
	w, err := r.register(connID, PromptLastCard)
	if err != nil {
		return nil, err
	}
	return &LastCardWait{reg: r, key: promptKey{connID, PromptLastCard}, w: w}, nil
}

// Wait blocks until the player answers, the prompt is canceled, or the
// registry timeout passes.
func (lw *LastCardWait) Wait() (bool, error) {
	defer lw.reg.removeWaiter(lw.key, lw.w)
	timer := time.NewTimer(lw.reg.timeout)
	defer timer.Stop()
	select {
	case declared := <-lw.w.answer:
		return declared, nil
	case <-lw.w.cancel:
		return false, ErrPromptCanceled
	case <-timer.C:
		return false, ErrPromptTimeout
	}
}

// Cancel withdraws the prompt; a pending Wait returns
// ErrPromptCanceled.
func (lw *LastCardWait) Cancel() {
	lw.reg.cancelKey(lw.key)
}

// ResolveCardRequest answers an outstanding card request prompt.
// It reports whether a prompt was actually waiting.
func (r *PromptRegistry) ResolveCardRequest(connID string, card karata.Card) bool {
	r.mu.Lock()
	w, ok := r.pending[promptKey{connID, PromptCardRequest}]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case w.card <- card:
		return true
	default:
		return false
	}
}

// ResolveLastCard answers an outstanding last card prompt. It reports
// whether a prompt was actually waiting.
func (r *PromptRegistry) ResolveLastCard(connID string, declared bool) bool {
	r.mu.Lock()
	w, ok := r.pending[promptKey{connID, PromptLastCard}]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case w.answer <- declared:
		return true
	default:
		return false
	}
}

// HasOutstanding reports whether the connection owes an answer to any
// prompt.
func (r *PromptRegistry) HasOutstanding(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kind := range promptKinds {
		if _, ok := r.pending[promptKey{connID, kind}]; ok {
			return true
		}
	}
	return false
}

// CancelConn cancels every outstanding prompt of a connection, waking
// its waiters with ErrPromptCanceled. Called when the connection goes
// away.
func (r *PromptRegistry) CancelConn(connID string) {
	r.mu.Lock()
	var canceled []*promptWaiter
	for _, kind := range promptKinds {
		key := promptKey{connID, kind}
		if w, ok := r.pending[key]; ok {
			canceled = append(canceled, w)
			delete(r.pending, key)
		}
	}
	r.mu.Unlock()
	for _, w := range canceled {
		close(w.cancel)
	}
}
