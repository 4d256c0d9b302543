package governor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asecurityteam/rolling"
	"github.com/ecgovern/ecgovern/internal/configuration"
	"github.com/ecgovern/ecgovern/internal/ec"
	"github.com/ecgovern/ecgovern/internal/fan"
	"github.com/ecgovern/ecgovern/internal/journal"
	"github.com/ecgovern/ecgovern/internal/runstate"
	"github.com/ecgovern/ecgovern/internal/temperature"
	"github.com/ecgovern/ecgovern/internal/ui"
)

// Governor is the closed-loop thermal control engine. It owns the EC,
// the persisted run state and the journal; nothing else writes to them.
type Governor struct {
	controller ec.EmbeddedController
	actuator   *fan.Actuator
	source     temperature.Source
	store      *runstate.Store
	journal    journal.Journal

	state         State
	cooldownStart time.Time
	// retryPending marks a failed re-escalation inside an open
	// cool-down window. In-memory only, a restart starts a fresh
	// escalation anyway.
	retryPending bool

	lastTemperature int

	ticksSinceHealthCheck int
	ticksSinceStatusLog   int
	healthCheckTicks      int
	statusLogTicks        int

	healthFailures int
	dangerEvents   int
	emergencyCount int
	readFailures   int

	tempWindow    *rolling.PointPolicy
	shutdownRetry ec.RetryPolicy
}

func NewGovernor(
	controller ec.EmbeddedController,
	actuator *fan.Actuator,
	source temperature.Source,
	store *runstate.Store,
	eventJournal journal.Journal,
) *Governor {
	config := configuration.CurrentConfig

	return &Governor{
		controller:       controller,
		actuator:         actuator,
		source:           source,
		store:            store,
		journal:          eventJournal,
		state:            StateSilent,
		healthCheckTicks: ticksFor(config.HealthCheckInterval, config.TickRate),
		statusLogTicks:   ticksFor(config.StatusLogInterval, config.TickRate),
		tempWindow:       rolling.NewPointPolicy(rolling.NewWindow(config.TempRollingWindowSize)),
		shutdownRetry: ec.RetryPolicy{
			MaxAttempts: config.Reset.MaxAttempts,
			Backoff:     config.Reset.Backoff,
		},
	}
}

// ticksFor converts a wall-clock interval into a tick count. Tracking
// tick counters instead of comparing timestamps avoids skipped triggers
// when the loop's own work causes drift.
func ticksFor(interval time.Duration, tickRate time.Duration) int {
	if tickRate <= 0 {
		return 1
	}
	ticks := int(interval / tickRate)
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

func (g *Governor) restore() {
	persisted, err := g.store.Load()
	if err != nil {
		ui.Warning("Unable to load persisted run state, starting in state '%s': %v", g.state, err)
		return
	}
	if persisted.State == "" {
		// first run
		return
	}

	state, err := ParseState(persisted.State)
	if err != nil {
		ui.Warning("Ignoring persisted run state: %v", err)
		return
	}

	g.state = state
	g.cooldownStart = persisted.CooldownStart
	ui.Info("Restored thermal state '%s'", g.state)
}

// Run drives the control loop until the context is cancelled or a fatal
// hardware error occurs. Both exits force automatic mode and clear the
// persisted run state before returning.
func (g *Governor) Run(ctx context.Context) error {
	g.restore()

	tick := time.Tick(configuration.CurrentConfig.TickRate)
	for {
		select {
		case <-ctx.Done():
			g.Shutdown("received termination signal")
			return nil
		case <-tick:
			if err := g.tick(ctx, time.Now()); err != nil {
				g.Shutdown(err.Error())
				return err
			}
		}
	}
}

// tick runs one control loop iteration. A non-nil return value is fatal,
// the loop must not continue.
func (g *Governor) tick(ctx context.Context, now time.Time) error {
	config := configuration.CurrentConfig
	thresholds := config.Thresholds

	if err := g.healthCheck(config); err != nil {
		return err
	}

	temp, err := g.source.GetValue()
	if err != nil {
		// never guess 0°C here, a bogus "very cold" sample would
		// silence the fan. Keep the state and skip the tick.
		g.readFailures++
		ui.Warning("No temperature reading available, keeping state '%s': %v", g.state, err)
		g.publish(now)
		return nil
	}
	g.readFailures = 0
	g.lastTemperature = temp
	g.tempWindow.Append(float64(temp))

	previousState := g.state
	previousCooldown := g.cooldownStart

	switch {
	case temp > int(thresholds.Danger):
		if err := g.handleDanger(config, temp); err != nil {
			return err
		}
	case temp > int(thresholds.Critical):
		ui.Error("Temperature %d°C exceeds critical threshold %d°C, forcing EC automatic control", temp, thresholds.Critical)
		autoErr := g.forceAutomaticMode()
		g.state = StateEmergency
		g.closeCooldownWindow()
		g.notify(ui.UrgencyCritical, "Critical temperature",
			fmt.Sprintf("CPU at %d°C, fan control handed back to the EC", temp), "critical")
		if errors.Is(autoErr, ec.ErrUnrecoverable) {
			return autoErr
		}
	case temp > int(thresholds.Emergency):
		if err := g.escalate(ctx, config, temp, now); err != nil {
			return err
		}
	default:
		if err := g.dispatch(config, temp, now); err != nil {
			return err
		}
	}

	if g.state != previousState || !g.cooldownStart.Equal(previousCooldown) {
		g.persist(previousState, temp)
	}

	g.logStatus(temp)
	g.publish(now)
	return nil
}

func (g *Governor) healthCheck(config configuration.Configuration) error {
	g.ticksSinceHealthCheck++
	if g.ticksSinceHealthCheck < g.healthCheckTicks {
		return nil
	}
	g.ticksSinceHealthCheck = 0

	if g.controller.Available() {
		g.healthFailures = 0
		return nil
	}

	g.healthFailures++
	ui.Warning("EC register channel unavailable (%d consecutive health check failures)", g.healthFailures)
	if g.healthFailures > config.MaxHealthCheckFailures {
		return fmt.Errorf("%w: EC channel failed %d consecutive health checks", ec.ErrUnrecoverable, g.healthFailures)
	}
	return nil
}

// handleDanger bypasses the state machine entirely. The EC's own control
// law is the only thing left to trust at this temperature.
func (g *Governor) handleDanger(config configuration.Configuration, temp int) error {
	g.dangerEvents++
	ui.Error("Temperature %d°C exceeds danger threshold %d°C, forcing EC automatic control", temp, config.Thresholds.Danger)
	autoErr := g.forceAutomaticMode()
	g.journalEvent(journal.EventDanger, temp, "")
	g.notify(ui.UrgencyCritical, "Dangerous temperature",
		fmt.Sprintf("CPU at %d°C, hardware may be compromised", temp), "danger")

	if errors.Is(autoErr, ec.ErrUnrecoverable) {
		return autoErr
	}
	if g.dangerEvents > config.MaxDangerEvents {
		return fmt.Errorf("%w: %d overheat events above the danger threshold", ec.ErrUnrecoverable, g.dangerEvents)
	}
	return nil
}

func (g *Governor) escalate(ctx context.Context, config configuration.Configuration, temp int, now time.Time) error {
	reEscalation := g.state == StateCoolingDown && g.cooldownOpen(now, config.CooldownDuration)

	err := g.runEmergencyCooling(ctx, config, temp)
	switch {
	case err == nil:
		g.emergencyCount++
		g.state = StateCoolingDown
		// the protocol can poll for minutes, the quarantine clock
		// starts when it returns, not when the tick began
		g.cooldownStart = time.Now()
		g.retryPending = false
		ui.Info("Emergency cooling succeeded, opening %s cool-down window", config.CooldownDuration)
	case errors.Is(err, ec.ErrUnrecoverable):
		return err
	case reEscalation && errors.Is(err, ErrBudgetExhausted):
		// a failed retry inside an open window stays quarantined and
		// keeps the automatic mode enforcement going
		g.state = StateCoolingDown
		g.cooldownStart = time.Now()
		g.retryPending = true
		ui.Warning("Emergency cooling retry failed, staying in cool-down: %v", err)
	default:
		g.state = StateEmergency
		g.closeCooldownWindow()
		ui.Error("Emergency cooling failed: %v", err)
		g.notify(ui.UrgencyCritical, "Emergency cooling failed", err.Error(), "emergency_failed")
	}
	return nil
}

func (g *Governor) dispatch(config configuration.Configuration, temp int, now time.Time) error {
	thresholds := config.Thresholds
	lowerBound := int(thresholds.Upper) - thresholds.Hysteresis

	switch g.state {
	case StateSilent:
		if temp >= int(thresholds.Upper) {
			if err := g.actuator.EnterAuto(); err != nil {
				ui.Error("Unable to enable automatic fan control: %v", err)
				if errors.Is(err, ec.ErrUnrecoverable) {
					return err
				}
				return nil
			}
			ui.Info("Temperature %d°C reached %d°C, fan control active", temp, thresholds.Upper)
			g.state = StateActive
		}
	case StateActive:
		if temp < lowerBound {
			if err := g.actuator.FanOff(); err != nil {
				ui.Error("Unable to turn the fan off: %v", err)
				if errors.Is(err, ec.ErrUnrecoverable) {
					return err
				}
				return nil
			}
			ui.Info("Temperature %d°C dropped below %d°C, fan off", temp, lowerBound)
			g.state = StateSilent
		}
	case StateEmergency:
		if temp < int(thresholds.Critical)-10 {
			ui.Info("Temperature %d°C recovered from emergency, resuming automatic control", temp)
			g.state = StateActive
		}
	case StateCoolingDown:
		if g.cooldownOpen(now, config.CooldownDuration) {
			return g.reassertAutomaticMode()
		}

		g.closeCooldownWindow()
		g.retryPending = false
		if temp < lowerBound {
			err := g.actuator.FanOff()
			if err == nil {
				ui.Info("Cool-down window elapsed at %d°C, fan off", temp)
				g.state = StateSilent
				return nil
			}
			if errors.Is(err, ec.ErrUnrecoverable) {
				return err
			}
			ui.Error("Unable to turn the fan off after cool-down, staying on automatic control")
		}
		g.state = StateActive
	}
	return nil
}

func (g *Governor) cooldownOpen(now time.Time, duration time.Duration) bool {
	return !g.cooldownStart.IsZero() && now.Sub(g.cooldownStart) < duration
}

func (g *Governor) closeCooldownWindow() {
	g.cooldownStart = time.Time{}
}

func (g *Governor) cooldownRemaining(now time.Time, duration time.Duration) time.Duration {
	if !g.cooldownOpen(now, duration) {
		return 0
	}
	return g.cooldownStart.Add(duration).Sub(now)
}

// reassertAutomaticMode puts the mode register back to automatic if it
// drifted to manual while a cool-down window is open.
func (g *Governor) reassertAutomaticMode() error {
	mode, err := g.actuator.CurrentMode()
	if err != nil {
		ui.Warning("Unable to read fan mode during cool-down: %v", err)
		return nil
	}
	if mode == ec.ModeAutomatic {
		return nil
	}

	ui.Warning("Fan mode drifted to manual during cool-down, re-asserting automatic control")
	if err := g.actuator.EnterAuto(); err != nil {
		ui.Error("Unable to re-assert automatic fan control: %v", err)
		if errors.Is(err, ec.ErrUnrecoverable) {
			return err
		}
	}
	return nil
}

func (g *Governor) forceAutomaticMode() error {
	err := g.actuator.EnterAuto()
	if err != nil {
		ui.Error("Unable to force automatic fan control: %v", err)
	}
	return err
}

func (g *Governor) persist(previous State, temp int) {
	err := g.store.Save(runstate.RunState{
		State:         g.state.String(),
		CooldownStart: g.cooldownStart,
	})
	if err != nil {
		ui.Error("Unable to persist run state: %v", err)
	}

	if previous != g.state {
		g.journalEvent(journal.EventTransition, temp, fmt.Sprintf("%s -> %s", previous, g.state))
	}
}

func (g *Governor) journalEvent(eventType journal.EventType, temp int, detail string) {
	if g.journal == nil {
		return
	}
	err := g.journal.Record(journal.Event{
		Time:        time.Now(),
		Type:        eventType,
		Temperature: temp,
		Detail:      detail,
	})
	if err != nil {
		ui.Warning("Unable to journal %s event: %v", eventType, err)
	}
}

func (g *Governor) notify(urgency string, title string, text string, dedupKey string) {
	config := configuration.CurrentConfig.Notifications
	if !config.Enabled {
		return
	}
	ui.Notify(urgency, title, text, dedupKey, config.Cooldown)
}

func (g *Governor) logStatus(temp int) {
	g.ticksSinceStatusLog++
	if g.ticksSinceStatusLog < g.statusLogTicks {
		return
	}
	g.ticksSinceStatusLog = 0

	ui.Info("temperature=%d°C state=%s", temp, g.state)
	g.journalEvent(journal.EventSample, temp, "")
}

func (g *Governor) publish(now time.Time) {
	config := configuration.CurrentConfig

	status := Status{
		Time:              now,
		State:             g.state.String(),
		Temperature:       g.lastTemperature,
		TemperatureAvg:    g.tempWindow.Reduce(rolling.Avg),
		Mode:              "unknown",
		CooldownRemaining: g.cooldownRemaining(now, config.CooldownDuration),
		RetryPending:      g.retryPending,
		EmergencyCount:    g.emergencyCount,
		DangerCount:       g.dangerEvents,
		ReadFailures:      g.readFailures,
	}

	if mode, err := g.actuator.CurrentMode(); err == nil {
		status.Mode = fan.ModeName(mode)
	}
	if duty, err := g.actuator.CurrentDuty(); err == nil {
		status.Duty = duty
	}
	if rpm, err := g.actuator.CurrentRpm(); err == nil {
		status.Rpm = rpm
	}

	publishStatus(status)
}

// Shutdown forces automatic mode (bounded retries) and clears the
// persisted run state. It must leave the fan under the EC's own control
// law no matter what.
func (g *Governor) Shutdown(reason string) {
	ui.Info("Shutting down thermal governor: %s", reason)

	if err := g.shutdownRetry.Do(g.actuator.EnterAuto); err != nil {
		ui.Error("Unable to restore automatic fan control on shutdown: %v", err)
		g.notify(ui.UrgencyCritical, "Fan control shutdown",
			"Automatic fan control could not be restored, check your fan!", "shutdown")
	}
	if err := g.store.Clear(); err != nil {
		ui.Warning("Unable to clear persisted run state: %v", err)
	}
	g.journalEvent(journal.EventShutdown, g.lastTemperature, reason)
}
