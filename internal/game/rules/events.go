package rules

import (
	"sync"
	"time"
)

// EventType indicates the category of a match event.
type EventType string

const (
	// Match lifecycle
	EventMatchCreated EventType = "MATCH_CREATED"
	EventSetupDone    EventType = "SETUP_DONE"
	EventMulligan     EventType = "MULLIGAN"
	EventGameOver     EventType = "GAME_OVER"

	// Turn structure
	EventTurnStarted   EventType = "TURN_STARTED"
	EventTurnEnded     EventType = "TURN_ENDED"
	EventPhaseChanged  EventType = "PHASE_CHANGED"
	EventCheckup       EventType = "CHECKUP"
	EventCoinFlipped   EventType = "COIN_FLIPPED"
	EventActionApplied EventType = "ACTION_APPLIED"
	EventActionFailed  EventType = "ACTION_FAILED"

	// Cards
	EventCardDrawn        EventType = "CARD_DRAWN"
	EventCardDiscarded    EventType = "CARD_DISCARDED"
	EventPokemonBenched   EventType = "POKEMON_BENCHED"
	EventPokemonEvolved   EventType = "POKEMON_EVOLVED"
	EventPokemonSwitched  EventType = "POKEMON_SWITCHED"
	EventPokemonRetreated EventType = "POKEMON_RETREATED"
	EventEnergyAttached   EventType = "ENERGY_ATTACHED"
	EventTrainerPlayed    EventType = "TRAINER_PLAYED"
	EventAbilityUsed      EventType = "ABILITY_USED"

	// Combat
	EventAttackDeclared EventType = "ATTACK_DECLARED"
	EventDamageDealt    EventType = "DAMAGE_DEALT"
	EventKnockedOut     EventType = "KNOCKED_OUT"
	EventPrizeTaken     EventType = "PRIZE_TAKEN"

	// Interactive effects
	EventSelectionRequested EventType = "SELECTION_REQUESTED"
	EventSelectionResolved  EventType = "SELECTION_RESOLVED"
	EventUnsupportedEffect  EventType = "UNSUPPORTED_EFFECT"
)

// Event represents a state change that other subsystems may react to.
type Event struct {
	Type      EventType
	MatchID   string
	PlayerID  string
	TargetID  string
	SourceID  string
	Amount    int
	Data      string
	Targets   []string
	Timestamp time.Time
	Metadata  map[string]string
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle,
// whether it was registered with Subscribe or SubscribeTyped.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		listener(event)
	}
	for _, listener := range bus.typedListeners[event.Type] {
		listener.Callback(event)
	}
}

// PublishBatch publishes events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, matchID, playerID, targetID string) Event {
	return Event{
		Type:      eventType,
		MatchID:   matchID,
		PlayerID:  playerID,
		TargetID:  targetID,
		Timestamp: time.Now(),
		Metadata:  make(map[string]string),
	}
}

// NewEventWithAmount creates a new event with an amount value.
func NewEventWithAmount(eventType EventType, matchID, playerID, targetID string, amount int) Event {
	evt := NewEvent(eventType, matchID, playerID, targetID)
	evt.Amount = amount
	return evt
}
