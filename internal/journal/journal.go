package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ecgovern/ecgovern/internal/ui"
	bolt "go.etcd.io/bbolt"
)

const (
	BucketEvents = "events"
)

type EventType string

const (
	EventTransition       EventType = "transition"
	EventSample           EventType = "sample"
	EventEmergencyStart   EventType = "emergency_start"
	EventEmergencySuccess EventType = "emergency_success"
	EventEmergencyFailure EventType = "emergency_failure"
	EventDanger           EventType = "danger"
	EventShutdown         EventType = "shutdown"
)

type Event struct {
	Time        time.Time `json:"time"`
	Type        EventType `json:"type"`
	Temperature int       `json:"temperature"`
	Detail      string    `json:"detail,omitempty"`
}

// Journal is a durable log of thermal events, keyed by timestamp.
type Journal interface {
	Init() error

	Record(event Event) error
	Tail(limit int) ([]Event, error)
	CountByType(eventType EventType) (int, error)
}

type journal struct {
	dbPath string
}

func NewJournal(dbPath string) Journal {
	return &journal{
		dbPath: dbPath,
	}
}

func (j journal) Init() (err error) {
	parentDir := filepath.Dir(j.dbPath)
	_, err = os.Stat(parentDir)
	if errors.Is(err, os.ErrNotExist) {
		ui.Info("Creating directory for journal: %s", parentDir)
		err = os.MkdirAll(parentDir, 0755)
		if err != nil {
			return err
		}
	}
	return nil
}

func (j journal) openJournal() (db *bolt.DB, err error) {
	db, err = bolt.Open(j.dbPath, 0600, &bolt.Options{Timeout: 1 * time.Minute})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Record appends the given event.
func (j journal) Record(event Event) error {
	db, err := j.openJournal()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	key := event.Time.UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketEvents))
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		return b.Put([]byte(key), data)
	})
}

// Tail returns up to limit most recent events, oldest first.
func (j journal) Tail(limit int) ([]Event, error) {
	db, err := j.openJournal()
	if err != nil {
		return nil, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	var events []Event
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketEvents))
		if b == nil {
			return nil
		}

		cursor := b.Cursor()
		for k, v := cursor.Last(); k != nil && len(events) < limit; k, v = cursor.Prev() {
			var event Event
			if err := json.Unmarshal(v, &event); err != nil {
				ui.Warning("Skipping unreadable journal entry %s: %v", string(k), err)
				continue
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// cursor iteration above runs newest to oldest
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	return events, nil
}

func (j journal) CountByType(eventType EventType) (int, error) {
	db, err := j.openJournal()
	if err != nil {
		return 0, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	count := 0
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketEvents))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var event Event
			if err := json.Unmarshal(v, &event); err != nil {
				return nil
			}
			if event.Type == eventType {
				count++
			}
			return nil
		})
	})
	return count, err
}
