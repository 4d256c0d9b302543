package governor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecgovern/ecgovern/internal/configuration"
	"github.com/ecgovern/ecgovern/internal/ec"
	"github.com/ecgovern/ecgovern/internal/journal"
	"github.com/ecgovern/ecgovern/internal/ui"
)

var (
	// ErrCriticalAbort means the temperature kept climbing past the
	// critical threshold while the fan was already at maximum duty.
	ErrCriticalAbort = errors.New("critical temperature reached during emergency cooling")

	// ErrBudgetExhausted means the recovery target was not reached
	// within the absolute time budget.
	ErrBudgetExhausted = errors.New("emergency cooling time budget exhausted")
)

// runEmergencyCooling pins the fan at maximum duty and polls until the
// temperature drops below the recovery target. Every exit path, success
// or not, leaves the EC in automatic mode: the hardware's own control
// law is the fallback of last resort.
func (g *Governor) runEmergencyCooling(ctx context.Context, config configuration.Configuration, temp int) error {
	thresholds := config.Thresholds

	ui.Warning("Temperature %d°C exceeds emergency threshold %d°C, forcing maximum fan duty", temp, thresholds.Emergency)
	g.notify(ui.UrgencyNormal, "Emergency cooling",
		fmt.Sprintf("CPU at %d°C, fan forced to maximum duty", temp), "emergency")
	g.journalEvent(journal.EventEmergencyStart, temp, "")

	if err := g.actuator.EnterManual(); err != nil {
		if autoErr := g.forceAutomaticMode(); errors.Is(autoErr, ec.ErrUnrecoverable) {
			return autoErr
		}
		return err
	}
	if err := g.actuator.ForceMaxDuty(); err != nil {
		if autoErr := g.forceAutomaticMode(); errors.Is(autoErr, ec.ErrUnrecoverable) {
			return autoErr
		}
		return err
	}

	deadline := time.Now().Add(config.Emergency.Budget)
	tick := time.Tick(config.Emergency.PollRate)

	for {
		select {
		case <-ctx.Done():
			if autoErr := g.forceAutomaticMode(); errors.Is(autoErr, ec.ErrUnrecoverable) {
				return autoErr
			}
			return ctx.Err()
		case <-tick:
			// the budget binds even when readings keep failing:
			// never leave the fan pinned at maximum duty forever
			if time.Now().After(deadline) {
				autoErr := g.forceAutomaticMode()
				g.journalEvent(journal.EventEmergencyFailure, g.lastTemperature, "time budget exhausted")
				if errors.Is(autoErr, ec.ErrUnrecoverable) {
					return autoErr
				}
				return ErrBudgetExhausted
			}

			current, err := g.source.GetValue()
			if err != nil {
				ui.Warning("No temperature reading during emergency cooling: %v", err)
				continue
			}
			g.lastTemperature = current

			if current > int(thresholds.Critical) {
				autoErr := g.forceAutomaticMode()
				g.journalEvent(journal.EventEmergencyFailure, current, "critical temperature")
				if errors.Is(autoErr, ec.ErrUnrecoverable) {
					return autoErr
				}
				return fmt.Errorf("%w: %d°C", ErrCriticalAbort, current)
			}
			if current < int(thresholds.Recovery) {
				if err := g.actuator.EnterAuto(); err != nil {
					return err
				}
				ui.Info("Emergency cooling succeeded, temperature recovered to %d°C", current)
				g.journalEvent(journal.EventEmergencySuccess, current, "")
				return nil
			}
		}
	}
}
