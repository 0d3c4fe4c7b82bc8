// Package eventlog keeps the producer's human-readable activity log: an
// append-only list of timestamped lines with a live feed for streaming
// consumers.
package eventlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
)

// DefaultCapacity is the number of entries retained when none is given.
const DefaultCapacity = 1000

// timeLayout renders entry timestamps as HH:MM:SS.
const timeLayout = "15:04:05"

// Entry is one log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String renders the entry as "[HH:MM:SS] message".
func (e Entry) String() string {
	return "[" + e.Time.Format(timeLayout) + "] " + e.Message
}

// Log is a bounded, concurrency-safe event log. Once capacity is reached
// the oldest entries are dropped.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	now      func() time.Time
	feed     event.Feed
}

// New returns an empty log retaining at most capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Add appends msg and notifies subscribers.
func (l *Log) Add(msg string) Entry {
	l.mu.Lock()
	e := Entry{Time: l.now(), Message: msg}
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append([]Entry(nil), l.entries[over:]...)
	}
	l.mu.Unlock()

	l.feed.Send(e)
	return e
}

// Addf formats and appends a message.
func (l *Log) Addf(format string, args ...any) Entry {
	return l.Add(fmt.Sprintf(format, args...))
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Tail returns a copy of the last n entries, oldest first. n <= 0 returns
// every retained entry.
func (l *Log) Tail(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Lines renders Tail(n) as strings.
func (l *Log) Lines(n int) []string {
	tail := l.Tail(n)
	lines := make([]string, len(tail))
	for i, e := range tail {
		lines[i] = e.String()
	}
	return lines
}

// Subscribe delivers every new entry to ch. Sends block until ch accepts,
// so subscribers should use a buffered channel and drain it.
func (l *Log) Subscribe(ch chan<- Entry) event.Subscription {
	return l.feed.Subscribe(ch)
}
