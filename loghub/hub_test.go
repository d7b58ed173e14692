package loghub

import (
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryAt(account string, offset time.Duration, message string) Entry {
	return Entry{
		Time:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(offset),
		Level:     "INFO",
		Message:   message,
		AccountID: account,
	}
}

func TestHubRecentReturnsInsertionOrder(t *testing.T) {
	hub := New()
	hub.Append(entryAt("acme", 0, "first"))
	hub.Append(entryAt("acme", time.Second, "second"))
	hub.Append(entryAt("acme", 2*time.Second, "third"))

	messages := lo.Map(hub.Recent("acme", 0), func(e Entry, _ int) string { return e.Message })
	assert.Equal(t, []string{"first", "second", "third"}, messages)

	messages = lo.Map(hub.Recent("acme", 2), func(e Entry, _ int) string { return e.Message })
	assert.Equal(t, []string{"second", "third"}, messages)
}

func TestHubRecentUnknownAccount(t *testing.T) {
	assert.Empty(t, New().Recent("ghost", 10))
}

func TestHubEvictsOldestAtCapacity(t *testing.T) {
	hub := New()
	for i := range Capacity + 25 {
		hub.Append(entryAt("acme", time.Duration(i)*time.Second, fmt.Sprintf("entry %d", i)))
	}

	entries := hub.Recent("acme", 0)
	require.Len(t, entries, Capacity)
	assert.Equal(t, "entry 25", entries[0].Message)
	assert.Equal(t, fmt.Sprintf("entry %d", Capacity+24), entries[len(entries)-1].Message)
}

func TestHubRecentAllMergesNewestFirst(t *testing.T) {
	hub := New()
	hub.Append(entryAt("acme", 0, "a0"))
	hub.Append(entryAt("globex", time.Second, "g1"))
	hub.Append(entryAt("acme", 2*time.Second, "a2"))

	messages := lo.Map(hub.RecentAll(0), func(e Entry, _ int) string { return e.Message })
	assert.Equal(t, []string{"a2", "g1", "a0"}, messages)

	messages = lo.Map(hub.RecentAll(2), func(e Entry, _ int) string { return e.Message })
	assert.Equal(t, []string{"a2", "g1"}, messages)
}

func TestHubRecentAllBreaksTimestampTiesByInsertion(t *testing.T) {
	hub := New()
	// Same timestamp on purpose: insertion order must decide
	hub.Append(entryAt("acme", 0, "older"))
	hub.Append(entryAt("globex", 0, "newer"))

	messages := lo.Map(hub.RecentAll(0), func(e Entry, _ int) string { return e.Message })
	assert.Equal(t, []string{"newer", "older"}, messages)
}

func TestHubSubscribeReceivesMatchingEntries(t *testing.T) {
	hub := New()
	entries, unsubscribe := hub.Subscribe(ForAccount("acme"))
	defer unsubscribe()

	hub.Append(entryAt("globex", 0, "not for us"))
	hub.Append(entryAt("acme", time.Second, "for us"))

	select {
	case entry := <-entries:
		assert.Equal(t, "for us", entry.Message)
	case <-time.After(time.Second):
		t.Fatal("expected an entry")
	}
	assert.Empty(t, entries)
}

func TestHubSubscribeNilFilterMatchesAll(t *testing.T) {
	hub := New()
	entries, unsubscribe := hub.Subscribe(nil)
	defer unsubscribe()

	hub.Append(entryAt("acme", 0, "one"))
	hub.Append(entryAt("globex", time.Second, "two"))

	assert.Equal(t, "one", (<-entries).Message)
	assert.Equal(t, "two", (<-entries).Message)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := New()
	entries, unsubscribe := hub.Subscribe(nil)
	unsubscribe()

	hub.Append(entryAt("acme", 0, "late"))
	assert.Empty(t, entries)
}

func TestHubSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := New()
	entries, unsubscribe := hub.Subscribe(nil)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Nobody reads: overflow past the channel depth must not deadlock
		for i := range subscriberBuffer + 10 {
			hub.Append(entryAt("acme", time.Duration(i)*time.Millisecond, "flood"))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("hub blocked on a slow subscriber")
	}
	assert.Len(t, entries, subscriberBuffer)
}
