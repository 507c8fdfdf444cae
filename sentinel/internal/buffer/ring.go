package buffer

import (
	"sort"
	"sync"
	"time"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// Ring is a capacity-bounded window of events kept in timestamp order.
// Inserts are sorted, so producers that deliver slightly out of order still
// yield an ordered window. When full, the oldest event is dropped.
type Ring struct {
	mu       sync.RWMutex
	capacity int
	ttl      time.Duration
	events   []models.SecurityEvent
}

// NewRing creates a ring holding at most capacity events spanning at most ttl
// (measured back from the newest event). A zero ttl disables the span bound.
func NewRing(capacity int, ttl time.Duration) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		capacity: capacity,
		ttl:      ttl,
		events:   make([]models.SecurityEvent, 0, min(capacity, 64)),
	}
}

// Insert adds e in timestamp order. It returns false when e was not kept:
// a duplicate id at the same timestamp, or older than everything in a full ring.
func (r *Ring) Insert(e models.SecurityEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// First index with a strictly later timestamp keeps equal timestamps in
	// arrival order.
	pos := sort.Search(len(r.events), func(i int) bool {
		return r.events[i].Timestamp.After(e.Timestamp)
	})

	for i := pos - 1; i >= 0 && r.events[i].Timestamp.Equal(e.Timestamp); i-- {
		if e.ID != "" && r.events[i].ID == e.ID {
			return false
		}
	}

	if len(r.events) >= r.capacity {
		if pos == 0 {
			return false
		}
		// Drop the oldest to make room.
		copy(r.events, r.events[1:])
		r.events = r.events[:len(r.events)-1]
		pos--
	}

	r.events = append(r.events, models.SecurityEvent{})
	copy(r.events[pos+1:], r.events[pos:])
	r.events[pos] = e

	if r.ttl > 0 {
		r.trimBefore(r.events[len(r.events)-1].Timestamp.Add(-r.ttl))
	}
	return true
}

// Between returns events with from <= timestamp <= to, oldest first.
func (r *Ring) Between(from, to time.Time) []models.SecurityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lo := sort.Search(len(r.events), func(i int) bool {
		return !r.events[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(r.events), func(i int) bool {
		return r.events[i].Timestamp.After(to)
	})
	if lo >= hi {
		return nil
	}
	out := make([]models.SecurityEvent, hi-lo)
	copy(out, r.events[lo:hi])
	return out
}

// Recent returns up to n of the newest events, oldest first.
func (r *Ring) Recent(n int) []models.SecurityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || len(r.events) == 0 {
		return nil
	}
	start := max(len(r.events)-n, 0)
	out := make([]models.SecurityEvent, len(r.events)-start)
	copy(out, r.events[start:])
	return out
}

// EvictBefore drops events older than cutoff and returns how many were removed.
func (r *Ring) EvictBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trimBefore(cutoff)
}

func (r *Ring) trimBefore(cutoff time.Time) int {
	n := sort.Search(len(r.events), func(i int) bool {
		return !r.events[i].Timestamp.Before(cutoff)
	})
	if n == 0 {
		return 0
	}
	remaining := copy(r.events, r.events[n:])
	clear(r.events[remaining:])
	r.events = r.events[:remaining]
	return n
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

func (r *Ring) Capacity() int {
	return r.capacity
}
