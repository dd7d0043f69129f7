package server

import (
	"sync"
	"time"

	"github.com/decred/slog"
)

// GameEventType identifies a lobby-level event.
type GameEventType string

const (
	GameEventPlayerJoined GameEventType = "player_joined"
	GameEventPlayerLeft   GameEventType = "player_left"
	GameEventPlayerReady  GameEventType = "player_ready"
	GameEventGameStarted  GameEventType = "game_started"
	GameEventTurnPlayed   GameEventType = "turn_played"
	GameEventGameEnded    GameEventType = "game_ended"
)

// GameEvent is one room happening, queued for asynchronous fanout and
// persistence. The snapshot is taken at publish time so handlers see
// the room as it was when the event fired, not as it is when they get
// around to it.
//
// The in-order card movement events of a turn are NOT routed through
// here: the turn pipeline sends those synchronously. This queue only
// carries the advisory work that may lag: room state refreshes, lobby
// notices and saves.
type GameEvent struct {
	Type         GameEventType
	RoomID       string
	PlayerID     string
	Payload      EventPayload
	Timestamp    time.Time
	RoomSnapshot *RoomSnapshot
}

// EventHandler processes events from the queue. Handlers must tolerate
// rooms that have since disappeared.
type EventHandler interface {
	Name() string
	HandleEvent(ev *GameEvent) error
}

const (
	defaultEventWorkers = 4
	eventQueueSize      = 1000
)

// EventProcessor fans queued events out to its handlers on a small
// worker pool. Publishing never blocks; when the queue is full the
// event is dropped with a warning, since every event is advisory.
type EventProcessor struct {
	queue    chan *GameEvent
	stop     chan struct{}
	wg       sync.WaitGroup
	log      slog.Logger
	workers  int
	handlers []EventHandler
}

// NewEventProcessor creates a processor with the given worker count.
// Non-positive counts fall back to the default.
func NewEventProcessor(log slog.Logger, workers int) *EventProcessor {
	if workers <= 0 {
		workers = defaultEventWorkers
	}
	return &EventProcessor{
		queue:   make(chan *GameEvent, eventQueueSize),
		stop:    make(chan struct{}),
		log:     log,
		workers: workers,
	}
}

// RegisterHandler adds a handler. Register everything before Start.
func (ep *EventProcessor) RegisterHandler(h EventHandler) {
	ep.handlers = append(ep.handlers, h)
}

// Start launches the worker pool.
func (ep *EventProcessor) Start() {
	for i := 0; i < ep.workers; i++ {
		ep.wg.Add(1)
		go ep.worker()
	}
	ep.log.Debugf("event processor started with %d workers", ep.workers)
}

// Stop shuts the pool down after draining whatever is already queued.
func (ep *EventProcessor) Stop() {
	close(ep.stop)
	ep.wg.Wait()
}

// Publish enqueues an event, dropping it when the queue is full.
func (ep *EventProcessor) Publish(ev *GameEvent) bool {
	select {
	case ep.queue <- ev:
		return true
	default:
		ep.log.Warnf("event queue full, dropping %s for room %s", ev.Type, ev.RoomID)
		return false
	}
}

func (ep *EventProcessor) worker() {
	defer ep.wg.Done()
	for {
		select {
		case ev := <-ep.queue:
			ep.process(ev)
		case <-ep.stop:
			for {
				select {
				case ev := <-ep.queue:
					ep.process(ev)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventProcessor) process(ev *GameEvent) {
	for _, h := range ep.handlers {
		if err := h.HandleEvent(ev); err != nil {
			ep.log.Errorf("%s handler failed on %s for room %s: %v",
				h.Name(), ev.Type, ev.RoomID, err)
		}
	}
}
