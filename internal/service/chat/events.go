package chat

import (
	"sync"

	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/internal/model/chat"
)

// EventType names a conversation change pushed to subscribers.
type EventType string

const (
	EventTurn  EventType = "turn"
	EventBusy  EventType = "busy"
	EventReset EventType = "reset"
	EventModel EventType = "model"
)

// Event is one conversation change.
type Event struct {
	Type  EventType     `json:"type"`
	Turn  *chat.Turn    `json:"turn,omitempty"`
	Busy  bool          `json:"busy"`
	Model catalog.Model `json:"model,omitempty"`
}

const subscriberBuffer = 32

// broadcaster fans events out to subscribers. Slow subscribers lose events
// instead of blocking the sender.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan Event]struct{})}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *broadcaster) publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
