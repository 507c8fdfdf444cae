package buffer

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func ev(id string, offset time.Duration) models.SecurityEvent {
	return models.SecurityEvent{
		ID:            id,
		Type:          models.EventLoginFailed,
		Timestamp:     base.Add(offset),
		ActorID:       "U1",
		SourceAddress: "198.51.100.1",
		Outcome:       models.OutcomeFailure,
	}
}

func ids(events []models.SecurityEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestRing_SortedInsert(t *testing.T) {
	r := NewRing(10, 0)
	r.Insert(ev("c", 3*time.Second))
	r.Insert(ev("a", 1*time.Second))
	r.Insert(ev("d", 4*time.Second))
	r.Insert(ev("b", 2*time.Second))

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(r.Recent(10)))
}

func TestRing_EqualTimestampsKeepArrivalOrder(t *testing.T) {
	r := NewRing(10, 0)
	r.Insert(ev("first", time.Second))
	r.Insert(ev("second", time.Second))

	assert.Equal(t, []string{"first", "second"}, ids(r.Recent(10)))
}

func TestRing_DuplicateIDIgnored(t *testing.T) {
	r := NewRing(10, 0)
	assert.True(t, r.Insert(ev("a", time.Second)))
	assert.False(t, r.Insert(ev("a", time.Second)))
	assert.Equal(t, 1, r.Len())
}

func TestRing_OverflowEvictsOldest(t *testing.T) {
	r := NewRing(3, 0)
	for i := 0; i < 5; i++ {
		r.Insert(ev(fmt.Sprint(i), time.Duration(i)*time.Second))
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"2", "3", "4"}, ids(r.Recent(10)))

	// Older than everything in a full ring: dropped.
	assert.False(t, r.Insert(ev("old", -time.Hour)))
	// Late but within the window: oldest goes.
	assert.True(t, r.Insert(ev("late", 2500*time.Millisecond)))
	assert.Equal(t, []string{"late", "3", "4"}, ids(r.Recent(10)))
}

func TestRing_TTLSpan(t *testing.T) {
	r := NewRing(100, time.Hour)
	r.Insert(ev("old", 0))
	r.Insert(ev("mid", 30*time.Minute))
	r.Insert(ev("new", 90*time.Minute))

	assert.Equal(t, []string{"mid", "new"}, ids(r.Recent(10)))
}

func TestRing_Between(t *testing.T) {
	r := NewRing(10, 0)
	for i := 0; i < 6; i++ {
		r.Insert(ev(fmt.Sprint(i), time.Duration(i)*time.Minute))
	}

	got := r.Between(base.Add(2*time.Minute), base.Add(4*time.Minute))
	assert.Equal(t, []string{"2", "3", "4"}, ids(got))
	assert.Empty(t, r.Between(base.Add(time.Hour), base.Add(2*time.Hour)))
}

func TestRing_RecentLimit(t *testing.T) {
	r := NewRing(10, 0)
	for i := 0; i < 5; i++ {
		r.Insert(ev(fmt.Sprint(i), time.Duration(i)*time.Second))
	}
	assert.Equal(t, []string{"3", "4"}, ids(r.Recent(2)))
	assert.Nil(t, r.Recent(0))
}

func TestRing_EvictBefore(t *testing.T) {
	r := NewRing(10, 0)
	for i := 0; i < 5; i++ {
		r.Insert(ev(fmt.Sprint(i), time.Duration(i)*time.Minute))
	}
	assert.Equal(t, 3, r.EvictBefore(base.Add(3*time.Minute)))
	assert.Equal(t, []string{"3", "4"}, ids(r.Recent(10)))
	assert.Equal(t, 0, r.EvictBefore(base))
}

func TestRing_StressNeverExceedsCapacity(t *testing.T) {
	const capacity = 1000
	r := NewRing(capacity, 0)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		seed := int64(w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f := gofakeit.New(seed)
			for i := 0; i < 2000; i++ {
				offset := time.Duration(f.IntRange(0, 86400)) * time.Second
				r.Insert(ev(f.UUID(), offset))
				assert.LessOrEqual(t, r.Len(), capacity)
			}
		}()
	}
	wg.Wait()

	events := r.Recent(capacity * 2)
	assert.Len(t, events, capacity)
	assert.True(t, sort.SliceIsSorted(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	}))
}
