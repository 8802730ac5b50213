package service

import (
	"sync"
	"time"
)

// ============================================================
// Change Hub
// ============================================================

type ChangeEvent string

const (
	ChangeInsert ChangeEvent = "INSERT"
	ChangeDelete ChangeEvent = "DELETE"
)

// Change describes a write to a user's interactions.
type Change struct {
	Event           ChangeEvent `json:"event"`
	UserID          string      `json:"user_id"`
	PositionID      string      `json:"position_id"`
	InteractionType string      `json:"interaction_type"`
	At              time.Time   `json:"at"`
}

const subscriberBuffer = 16

// ChangeHub fans interaction changes out to the subscribers of each user.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type ChangeHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Change // userID -> subscriber id -> channel
}

func NewChangeHub() *ChangeHub {
	return &ChangeHub{
		subs: make(map[string]map[int]chan Change),
	}
}

// Subscribe returns the user's change stream and a cancel func that closes it.
func (h *ChangeHub) Subscribe(userID string) (<-chan Change, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan Change, subscriberBuffer)
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan Change)
	}
	h.subs[userID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers c to the subscribers of c.UserID and returns how many got it.
func (h *ChangeHub) Publish(c Change) int {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, ch := range h.subs[c.UserID] {
		select {
		case ch <- c:
			delivered++
		default:
		}
	}
	return delivered
}

func (h *ChangeHub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}
