package runstate

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadOnFirstRun(t *testing.T) {
	// GIVEN
	store := NewStore(t.TempDir())

	// WHEN
	state, err := store.Load()

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, "", state.State)
	assert.True(t, state.CooldownStart.IsZero())
}

func TestSaveLoadRoundtrip(t *testing.T) {
	// GIVEN
	store := NewStore(t.TempDir())
	cooldownStart := time.Unix(1700000000, 0)

	// WHEN
	err := store.Save(RunState{State: "cooling_down", CooldownStart: cooldownStart})
	assert.NoError(t, err)
	state, err := store.Load()

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, "cooling_down", state.State)
	assert.True(t, state.CooldownStart.Equal(cooldownStart))
}

func TestSaveWithoutCooldownRemovesCooldownFile(t *testing.T) {
	// GIVEN
	store := NewStore(t.TempDir())
	err := store.Save(RunState{State: "cooling_down", CooldownStart: time.Now()})
	assert.NoError(t, err)

	// WHEN
	err = store.Save(RunState{State: "active"})
	assert.NoError(t, err)

	// THEN
	_, err = os.Stat(store.cooldownPath())
	assert.True(t, os.IsNotExist(err))

	state, err := store.Load()
	assert.NoError(t, err)
	assert.Equal(t, "active", state.State)
	assert.True(t, state.CooldownStart.IsZero())
}

func TestLoadDiscardsCorruptCooldownFile(t *testing.T) {
	// GIVEN
	store := NewStore(t.TempDir())
	err := store.Save(RunState{State: "cooling_down", CooldownStart: time.Now()})
	assert.NoError(t, err)
	err = os.WriteFile(store.cooldownPath(), []byte("not a timestamp"), 0644)
	assert.NoError(t, err)

	// WHEN
	state, err := store.Load()

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, "cooling_down", state.State)
	assert.True(t, state.CooldownStart.IsZero())

	// the corrupt file must be gone so the quarantine cannot reopen
	_, err = os.Stat(store.cooldownPath())
	assert.True(t, os.IsNotExist(err))
}

func TestClearRemovesBothFiles(t *testing.T) {
	// GIVEN
	store := NewStore(t.TempDir())
	err := store.Save(RunState{State: "cooling_down", CooldownStart: time.Now()})
	assert.NoError(t, err)

	// WHEN
	err = store.Clear()

	// THEN
	assert.NoError(t, err)
	_, err = os.Stat(store.statePath())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(store.cooldownPath())
	assert.True(t, os.IsNotExist(err))
}

func TestClearOnEmptyDirectory(t *testing.T) {
	// GIVEN
	store := NewStore(t.TempDir())

	// WHEN
	err := store.Clear()

	// THEN
	assert.NoError(t, err)
}

func TestInitCreatesDirectory(t *testing.T) {
	// GIVEN
	dir := t.TempDir() + "/nested/state"
	store := NewStore(dir)

	// WHEN
	err := store.Init()

	// THEN
	assert.NoError(t, err)
	info, err := os.Stat(dir)
	assert.NoError(t, err)
	assert.True(t, info.IsDir())
}
