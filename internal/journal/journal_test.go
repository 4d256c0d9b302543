package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func createJournal(t *testing.T) Journal {
	t.Helper()

	journal := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	assert.NoError(t, journal.Init())
	return journal
}

func TestTailOnEmptyJournal(t *testing.T) {
	// GIVEN
	journal := createJournal(t)

	// WHEN
	events, err := journal.Tail(10)

	// THEN
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestRecordAndTail(t *testing.T) {
	// GIVEN
	journal := createJournal(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := journal.Record(Event{Time: base, Type: EventSample, Temperature: 55})
	assert.NoError(t, err)
	err = journal.Record(Event{Time: base.Add(time.Minute), Type: EventTransition, Temperature: 66, Detail: "silent -> active"})
	assert.NoError(t, err)
	err = journal.Record(Event{Time: base.Add(2 * time.Minute), Type: EventSample, Temperature: 67})
	assert.NoError(t, err)

	// WHEN
	events, err := journal.Tail(10)

	// THEN
	assert.NoError(t, err)
	assert.Len(t, events, 3)
	// oldest first
	assert.Equal(t, EventSample, events[0].Type)
	assert.Equal(t, 55, events[0].Temperature)
	assert.Equal(t, EventTransition, events[1].Type)
	assert.Equal(t, "silent -> active", events[1].Detail)
	assert.Equal(t, 67, events[2].Temperature)
}

func TestTailHonorsLimit(t *testing.T) {
	// GIVEN
	journal := createJournal(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := journal.Record(Event{Time: base.Add(time.Duration(i) * time.Minute), Type: EventSample, Temperature: 50 + i})
		assert.NoError(t, err)
	}

	// WHEN
	events, err := journal.Tail(2)

	// THEN
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	// the two most recent, oldest first
	assert.Equal(t, 53, events[0].Temperature)
	assert.Equal(t, 54, events[1].Temperature)
}

func TestCountByType(t *testing.T) {
	// GIVEN
	journal := createJournal(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := journal.Record(Event{Time: base, Type: EventEmergencyStart, Temperature: 82})
	assert.NoError(t, err)
	err = journal.Record(Event{Time: base.Add(time.Minute), Type: EventEmergencySuccess, Temperature: 58})
	assert.NoError(t, err)
	err = journal.Record(Event{Time: base.Add(2 * time.Minute), Type: EventEmergencyStart, Temperature: 84})
	assert.NoError(t, err)

	// WHEN
	starts, err := journal.CountByType(EventEmergencyStart)
	assert.NoError(t, err)
	dangers, err2 := journal.CountByType(EventDanger)

	// THEN
	assert.NoError(t, err2)
	assert.Equal(t, 2, starts)
	assert.Equal(t, 0, dangers)
}
