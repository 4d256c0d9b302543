package governor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ecgovern/ecgovern/internal/configuration"
	"github.com/ecgovern/ecgovern/internal/ec"
	"github.com/ecgovern/ecgovern/internal/fan"
	"github.com/ecgovern/ecgovern/internal/runstate"
	"github.com/stretchr/testify/assert"
)

type registerWrite struct {
	register int
	value    int
}

type MockController struct {
	registers   map[int]byte
	writes      []registerWrite
	available   bool
	writeErr    error
	verifiedErr error
}

func NewMockController() *MockController {
	return &MockController{
		registers: map[int]byte{},
		available: true,
	}
}

func (c *MockController) ReadRegister(register int) (byte, error) {
	return c.registers[register], nil
}

func (c *MockController) WriteRegister(register int, value int) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.registers[register] = byte(value)
	c.writes = append(c.writes, registerWrite{register: register, value: value})
	return nil
}

func (c *MockController) WriteRegisterVerified(register int, value int) error {
	if c.verifiedErr != nil {
		return c.verifiedErr
	}
	return c.WriteRegister(register, value)
}

func (c *MockController) Available() bool {
	return c.available
}

func (c *MockController) Reset() error {
	panic("not supported")
}

type reading struct {
	value int
	err   error
}

// ScriptedSource replays its readings in order and repeats the last one
// once the script is exhausted.
type ScriptedSource struct {
	readings []reading
	index    int
}

func (s *ScriptedSource) GetLabel() string {
	return "scripted"
}

func (s *ScriptedSource) GetValue() (int, error) {
	current := s.readings[s.index]
	if s.index < len(s.readings)-1 {
		s.index++
	}
	return current.value, current.err
}

func testConfig() configuration.Configuration {
	return configuration.Configuration{
		TickRate:              10 * time.Millisecond,
		HealthCheckInterval:   10 * time.Millisecond,
		StatusLogInterval:     time.Hour,
		TempRollingWindowSize: 10,
		Thresholds: configuration.ThresholdConfig{
			Upper:      65,
			Hysteresis: 5,
			Emergency:  80,
			Recovery:   60,
			Critical:   90,
			Danger:     95,
		},
		CooldownDuration: 2 * time.Minute,
		Emergency: configuration.EmergencyConfig{
			PollRate: time.Millisecond,
			Budget:   100 * time.Millisecond,
		},
		Reset: configuration.RetryConfig{
			MaxAttempts: 1,
		},
		MaxHealthCheckFailures: 3,
		MaxDangerEvents:        5,
		Notifications: configuration.NotificationConfig{
			Enabled: false,
		},
	}
}

func createGovernor(t *testing.T, controller *MockController, readings ...reading) *Governor {
	t.Helper()

	source := &ScriptedSource{readings: readings}
	store := runstate.NewStore(t.TempDir())
	return NewGovernor(controller, fan.NewActuator(controller), source, store, nil)
}

func TestSilentBelowUpperThreshold(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 64})

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateSilent, governor.state)
	assert.Empty(t, controller.writes)
}

func TestSilentToActiveAtUpperThreshold(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 65})

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateActive, governor.state)
	assert.Equal(t,
		[]registerWrite{{register: ec.RegisterFanMode, value: int(ec.ModeAutomatic)}},
		controller.writes)

	persisted, err := governor.store.Load()
	assert.NoError(t, err)
	assert.Equal(t, "active", persisted.State)
}

func TestActiveToSilentBelowHysteresisBand(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 59})
	governor.state = StateActive

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateSilent, governor.state)
	assert.Equal(t, []registerWrite{
		{register: ec.RegisterFanMode, value: int(ec.ModeManual)},
		{register: ec.RegisterFanDuty, value: ec.MinDuty},
	}, controller.writes)
}

func TestHysteresisHoldsFanInsideBand(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	// drops back into the band right after activation
	governor := createGovernor(t, controller,
		reading{value: 65},
		reading{value: 62},
		reading{value: 60},
	)

	// WHEN
	for i := 0; i < 3; i++ {
		assert.NoError(t, governor.tick(context.Background(), time.Now()))
	}

	// THEN
	assert.Equal(t, StateActive, governor.state)
	// exactly one mode toggle, no flapping
	assert.Equal(t,
		[]registerWrite{{register: ec.RegisterFanMode, value: int(ec.ModeAutomatic)}},
		controller.writes)
}

func TestUnknownTemperatureKeepsState(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{err: errors.New("no reading")})
	governor.state = StateActive

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateActive, governor.state)
	assert.Equal(t, 1, governor.readFailures)
	assert.Empty(t, controller.writes)
}

func TestCriticalForcesAutomaticControl(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 92})
	governor.state = StateCoolingDown
	governor.cooldownStart = time.Now()

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateEmergency, governor.state)
	assert.True(t, governor.cooldownStart.IsZero())
	assert.Equal(t,
		[]registerWrite{{register: ec.RegisterFanMode, value: int(ec.ModeAutomatic)}},
		controller.writes)
}

func TestEmergencyRecoversWellBelowCritical(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 79})
	governor.state = StateEmergency

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateActive, governor.state)
}

func TestEmergencyHoldsNearCritical(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 80})
	governor.state = StateEmergency

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateEmergency, governor.state)
}

func TestEmergencyCoolingSuccessOpensCooldown(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	governor := createGovernor(t, controller,
		reading{value: 85},
		reading{value: 55},
	)
	now := time.Now()

	// WHEN
	err := governor.tick(context.Background(), now)

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateCoolingDown, governor.state)
	assert.False(t, governor.cooldownStart.Before(now))
	assert.True(t, governor.cooldownOpen(time.Now(), configuration.CurrentConfig.CooldownDuration))
	assert.False(t, governor.retryPending)
	assert.Equal(t, 1, governor.emergencyCount)
	assert.Equal(t, []registerWrite{
		{register: ec.RegisterFanMode, value: int(ec.ModeManual)},
		{register: ec.RegisterFanDuty, value: ec.MaxDuty},
		{register: ec.RegisterFanMode, value: int(ec.ModeAutomatic)},
	}, controller.writes)

	persisted, err := governor.store.Load()
	assert.NoError(t, err)
	assert.Equal(t, "cooling_down", persisted.State)
	assert.False(t, persisted.CooldownStart.IsZero())
}

func TestEmergencyCoolingBudgetExhausted(t *testing.T) {
	// GIVEN
	config := testConfig()
	config.Emergency.Budget = 5 * time.Millisecond
	configuration.CurrentConfig = config
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 85})

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateEmergency, governor.state)
	assert.True(t, governor.cooldownStart.IsZero())
	// the fan must not stay pinned at maximum duty
	assert.Equal(t, byte(ec.ModeAutomatic), controller.registers[ec.RegisterFanMode])
}

func TestEmergencyCoolingCriticalAbort(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	governor := createGovernor(t, controller,
		reading{value: 85},
		reading{value: 93},
	)

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateEmergency, governor.state)
	assert.Equal(t, byte(ec.ModeAutomatic), controller.registers[ec.RegisterFanMode])
}

func TestFailedRetryInsideCooldownStaysQuarantined(t *testing.T) {
	// GIVEN
	config := testConfig()
	config.Emergency.Budget = 5 * time.Millisecond
	configuration.CurrentConfig = config
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 85})
	governor.state = StateCoolingDown
	governor.cooldownStart = time.Now().Add(-time.Second)
	now := time.Now()

	// WHEN
	err := governor.tick(context.Background(), now)

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateCoolingDown, governor.state)
	assert.True(t, governor.retryPending)
	// the window restarts so the quarantine keeps enforcing automatic mode
	assert.False(t, governor.cooldownStart.Before(now))
	assert.True(t, governor.cooldownOpen(time.Now(), configuration.CurrentConfig.CooldownDuration))
}

func TestCooldownReassertsAutomaticMode(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	controller.registers[ec.RegisterFanMode] = ec.ModeManual
	governor := createGovernor(t, controller, reading{value: 55})
	governor.state = StateCoolingDown
	governor.cooldownStart = time.Now()

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateCoolingDown, governor.state)
	assert.Equal(t,
		[]registerWrite{{register: ec.RegisterFanMode, value: int(ec.ModeAutomatic)}},
		controller.writes)
}

func TestCooldownLeavesAutomaticModeAlone(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	controller.registers[ec.RegisterFanMode] = ec.ModeAutomatic
	governor := createGovernor(t, controller, reading{value: 55})
	governor.state = StateCoolingDown
	governor.cooldownStart = time.Now()

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateCoolingDown, governor.state)
	assert.Empty(t, controller.writes)
}

func TestCooldownElapsedCoolFanOff(t *testing.T) {
	// GIVEN
	config := testConfig()
	configuration.CurrentConfig = config
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 55})
	governor.state = StateCoolingDown
	governor.cooldownStart = time.Now().Add(-config.CooldownDuration - time.Second)

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateSilent, governor.state)
	assert.True(t, governor.cooldownStart.IsZero())
	assert.Equal(t, []registerWrite{
		{register: ec.RegisterFanMode, value: int(ec.ModeManual)},
		{register: ec.RegisterFanDuty, value: ec.MinDuty},
	}, controller.writes)
}

func TestCooldownElapsedWarmStaysActive(t *testing.T) {
	// GIVEN
	config := testConfig()
	configuration.CurrentConfig = config
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 62})
	governor.state = StateCoolingDown
	governor.cooldownStart = time.Now().Add(-config.CooldownDuration - time.Second)

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateActive, governor.state)
	assert.Empty(t, controller.writes)
}

func TestDangerEventLimit(t *testing.T) {
	// GIVEN
	config := testConfig()
	config.MaxDangerEvents = 1
	configuration.CurrentConfig = config
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 96})

	// WHEN
	first := governor.tick(context.Background(), time.Now())
	second := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, first)
	assert.ErrorIs(t, second, ec.ErrUnrecoverable)
	assert.Equal(t, byte(ec.ModeAutomatic), controller.registers[ec.RegisterFanMode])
}

func TestHealthCheckFailureLimit(t *testing.T) {
	// GIVEN
	config := testConfig()
	config.MaxHealthCheckFailures = 1
	configuration.CurrentConfig = config
	controller := NewMockController()
	controller.available = false
	governor := createGovernor(t, controller, reading{value: 50})

	// WHEN
	first := governor.tick(context.Background(), time.Now())
	second := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, first)
	assert.ErrorIs(t, second, ec.ErrUnrecoverable)
}

func TestHealthCheckRecovers(t *testing.T) {
	// GIVEN
	config := testConfig()
	config.MaxHealthCheckFailures = 2
	configuration.CurrentConfig = config
	controller := NewMockController()
	controller.available = false
	governor := createGovernor(t, controller, reading{value: 50})

	// WHEN
	assert.NoError(t, governor.tick(context.Background(), time.Now()))
	controller.available = true
	assert.NoError(t, governor.tick(context.Background(), time.Now()))
	controller.available = false
	assert.NoError(t, governor.tick(context.Background(), time.Now()))

	// THEN
	// the counter resets on success, only consecutive failures count
	assert.Equal(t, 1, governor.healthFailures)
}

func TestShutdownRestoresAutomaticControlAndClearsState(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 50})
	err := governor.store.Save(runstate.RunState{State: "cooling_down", CooldownStart: time.Now()})
	assert.NoError(t, err)

	// WHEN
	governor.Shutdown("test")

	// THEN
	assert.Equal(t, byte(ec.ModeAutomatic), controller.registers[ec.RegisterFanMode])
	persisted, err := governor.store.Load()
	assert.NoError(t, err)
	assert.Equal(t, "", persisted.State)
}

func TestRestoreFromPersistedState(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 50})
	cooldownStart := time.Unix(time.Now().Unix(), 0)
	err := governor.store.Save(runstate.RunState{State: "cooling_down", CooldownStart: cooldownStart})
	assert.NoError(t, err)

	// WHEN
	governor.restore()

	// THEN
	assert.Equal(t, StateCoolingDown, governor.state)
	assert.True(t, governor.cooldownStart.Equal(cooldownStart))
}

func TestRestoreIgnoresUnknownState(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	governor := createGovernor(t, controller, reading{value: 50})
	err := governor.store.Save(runstate.RunState{State: "bogus"})
	assert.NoError(t, err)

	// WHEN
	governor.restore()

	// THEN
	assert.Equal(t, StateSilent, governor.state)
}

func TestCooldownWindowStartsWhenProtocolReturns(t *testing.T) {
	// GIVEN
	config := testConfig()
	// the protocol needs ~30 polls to reach recovery, longer than the
	// whole cool-down window
	config.CooldownDuration = 20 * time.Millisecond
	configuration.CurrentConfig = config
	controller := NewMockController()

	var readings []reading
	for i := 0; i < 31; i++ {
		readings = append(readings, reading{value: 85})
	}
	readings = append(readings, reading{value: 55})
	source := &ScriptedSource{readings: readings}
	store := runstate.NewStore(t.TempDir())
	governor := NewGovernor(controller, fan.NewActuator(controller), source, store, nil)

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateCoolingDown, governor.state)
	// the window must be open right after the tick, no matter how long
	// the protocol polled
	assert.True(t, governor.cooldownOpen(time.Now(), config.CooldownDuration))
}

func TestUnrecoverableWriteDuringEscalationIsFatal(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	controller.verifiedErr = fmt.Errorf("%w: register 21 is 0, expected 1", ec.ErrUnrecoverable)
	governor := createGovernor(t, controller, reading{value: 85})

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.ErrorIs(t, err, ec.ErrUnrecoverable)
}

func TestUnrecoverableWriteDuringDispatchIsFatal(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	controller.verifiedErr = fmt.Errorf("%w: register 21 is 1, expected 0", ec.ErrUnrecoverable)
	governor := createGovernor(t, controller, reading{value: 65})

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.ErrorIs(t, err, ec.ErrUnrecoverable)
}

func TestUnrecoverableWriteAboveCriticalIsFatal(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	controller.verifiedErr = fmt.Errorf("%w: register 21 is 1, expected 0", ec.ErrUnrecoverable)
	governor := createGovernor(t, controller, reading{value: 92})

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.ErrorIs(t, err, ec.ErrUnrecoverable)
	assert.Equal(t, StateEmergency, governor.state)
}

func TestTransientWriteFailureIsNotFatal(t *testing.T) {
	// GIVEN
	configuration.CurrentConfig = testConfig()
	controller := NewMockController()
	controller.verifiedErr = fmt.Errorf("%w: register 21 is 1, expected 0", ec.ErrVerificationFailed)
	governor := createGovernor(t, controller, reading{value: 65})

	// WHEN
	err := governor.tick(context.Background(), time.Now())

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, StateSilent, governor.state)
}

func TestTicksFor(t *testing.T) {
	assert.Equal(t, 30, ticksFor(90*time.Second, 3*time.Second))
	assert.Equal(t, 1, ticksFor(time.Second, 3*time.Second))
	assert.Equal(t, 1, ticksFor(time.Second, 0))
}
