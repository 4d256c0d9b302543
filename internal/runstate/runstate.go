package runstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ecgovern/ecgovern/internal/ui"
	"github.com/ecgovern/ecgovern/internal/util"
)

const (
	stateFileName    = "state"
	cooldownFileName = "cooldown_started"
)

// RunState is the durable part of the governor state. It survives process
// restarts and is removed on clean stop.
type RunState struct {
	// State is the current thermal state name.
	State string `json:"state"`
	// CooldownStart is the cool-down window start, zero when no window
	// is open.
	CooldownStart time.Time `json:"cooldownStart"`
}

// Store persists the run state as two small files: one holding the state
// name, one holding the cool-down start timestamp (present only while a
// window is open). External status tools may read them as snapshots that
// can be stale by up to one tick.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	return &Store{
		Dir: dir,
	}
}

func (s *Store) Init() (err error) {
	_, err = os.Stat(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		ui.Info("Creating state directory: %s", s.Dir)
		err = os.MkdirAll(s.Dir, 0755)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) statePath() string {
	return filepath.Join(s.Dir, stateFileName)
}

func (s *Store) cooldownPath() string {
	return filepath.Join(s.Dir, cooldownFileName)
}

// Load reads the persisted run state. A missing state file is a first
// run and yields the zero value without error.
func (s *Store) Load() (RunState, error) {
	var state RunState

	data, err := os.ReadFile(s.statePath())
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, err
	}
	state.State = strings.TrimSpace(string(data))

	seconds, err := util.ReadIntFromFile(s.cooldownPath())
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		// a corrupt cool-down file must not keep the quarantine open forever
		ui.Warning("Discarding unreadable cool-down timestamp: %v", err)
		_ = os.Remove(s.cooldownPath())
		return state, nil
	}
	state.CooldownStart = time.Unix(int64(seconds), 0)

	return state, nil
}

// Save writes the run state. The cool-down file is created or removed to
// match CooldownStart.
func (s *Store) Save(state RunState) error {
	if err := util.WriteStringToFileAtomic(state.State, s.statePath()); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}

	if state.CooldownStart.IsZero() {
		if err := os.Remove(s.cooldownPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing cool-down file: %w", err)
		}
		return nil
	}

	timestamp := strconv.FormatInt(state.CooldownStart.Unix(), 10)
	if err := util.WriteStringToFileAtomic(timestamp, s.cooldownPath()); err != nil {
		return fmt.Errorf("writing cool-down file: %w", err)
	}
	return nil
}

// Clear removes both files. Missing files are not an error.
func (s *Store) Clear() error {
	var result error
	for _, path := range []string{s.statePath(), s.cooldownPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			result = err
		}
	}
	return result
}
