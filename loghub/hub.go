// Package loghub captures structured log events in bounded per-account ring
// buffers and fans each event out to live subscribers.
package loghub

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Capacity is the number of entries retained per account.
// Once full, appending evicts the single oldest entry.
const Capacity = 500

// subscriberBuffer is the channel depth of one subscriber. A subscriber that
// falls further behind than this loses entries rather than blocking writers.
const subscriberBuffer = 256

// Entry is one captured log event.
type Entry struct {
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	AccountID string    `json:"account_id"`

	// seq is the hub-assigned insertion sequence, used as a deterministic
	// tie-break when merging entries with equal timestamps.
	seq uint64
}

// Filter restricts which entries a subscriber receives; nil matches all.
type Filter func(Entry) bool

// ForAccount matches entries of a single account.
func ForAccount(accountID string) Filter {
	return func(entry Entry) bool {
		return entry.AccountID == accountID
	}
}

// Hub stores per-account log rings and publishes every appended entry to its
// subscribers.
type Hub struct {
	mu          sync.Mutex
	buffers     map[string][]Entry
	seq         uint64
	subscribers map[chan Entry]Filter
}

func New() *Hub {
	return &Hub{
		buffers:     make(map[string][]Entry),
		subscribers: make(map[chan Entry]Filter),
	}
}

// Append stores the entry in its account's ring, evicting the oldest entry
// when the ring is full, then publishes it to matching subscribers.
// Sends are non-blocking: a full subscriber drops the entry.
func (h *Hub) Append(entry Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	entry.seq = h.seq

	buffer := append(h.buffers[entry.AccountID], entry)
	if len(buffer) > Capacity {
		buffer = buffer[1:]
	}
	h.buffers[entry.AccountID] = buffer

	for channel, filter := range h.subscribers {
		if filter != nil && !filter(entry) {
			continue
		}
		select {
		case channel <- entry:
		default:
		}
	}
}

// Recent returns the last n entries of one account, in insertion order.
// n <= 0 returns the whole ring.
func (h *Hub) Recent(accountID string, n int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	buffer := h.buffers[accountID]
	if n <= 0 || n > len(buffer) {
		n = len(buffer)
	}
	return slices.Clone(buffer[len(buffer)-n:])
}

// RecentAll merges the entries of every account and returns the n most
// recent, sorted by timestamp descending. Equal timestamps order by
// descending insertion sequence.
func (h *Hub) RecentAll(n int) []Entry {
	h.mu.Lock()
	var all []Entry
	for _, buffer := range h.buffers {
		all = append(all, buffer...)
	}
	h.mu.Unlock()

	slices.SortFunc(all, func(a, b Entry) int {
		if c := b.Time.Compare(a.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	if n > 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// Subscribe registers a listener and returns its channel plus a cancel
// function that MUST be called when the listener goes away, otherwise the hub
// keeps publishing to it forever.
func (h *Hub) Subscribe(filter Filter) (<-chan Entry, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	channel := make(chan Entry, subscriberBuffer)
	h.subscribers[channel] = filter

	return channel, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subscribers, channel)
	}
}
