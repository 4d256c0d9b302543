package configuration

import (
	"errors"
	"fmt"
)

func Validate() error {
	return validateConfig(&CurrentConfig)
}

func validateConfig(config *Configuration) error {
	err := validateThresholds(config)
	if err != nil {
		return err
	}
	err = validateIntervals(config)
	if err != nil {
		return err
	}
	return validateRecovery(config)
}

func validateThresholds(config *Configuration) error {
	t := config.Thresholds

	// the governor relies on this ordering: recovery < upper <= emergency < critical < danger
	if t.Recovery >= t.Upper {
		return errors.New(fmt.Sprintf("Thresholds: recovery (%d) must be below upper (%d)", t.Recovery, t.Upper))
	}
	if t.Upper > t.Emergency {
		return errors.New(fmt.Sprintf("Thresholds: upper (%d) must not exceed emergency (%d)", t.Upper, t.Emergency))
	}
	if t.Emergency >= t.Critical {
		return errors.New(fmt.Sprintf("Thresholds: emergency (%d) must be below critical (%d)", t.Emergency, t.Critical))
	}
	if t.Critical >= t.Danger {
		return errors.New(fmt.Sprintf("Thresholds: critical (%d) must be below danger (%d)", t.Critical, t.Danger))
	}

	if t.Hysteresis <= 0 {
		return errors.New(fmt.Sprintf("Thresholds: hysteresis must be positive, got %d", t.Hysteresis))
	}
	if int(t.Upper)-t.Hysteresis <= 0 {
		return errors.New(fmt.Sprintf("Thresholds: hysteresis (%d) must be smaller than upper (%d)", t.Hysteresis, t.Upper))
	}

	return nil
}

func validateIntervals(config *Configuration) error {
	if config.TickRate <= 0 {
		return errors.New("TickRate must be positive")
	}
	if config.HealthCheckInterval < config.TickRate {
		return errors.New("HealthCheckInterval must not be shorter than TickRate")
	}
	if config.StatusLogInterval < config.TickRate {
		return errors.New("StatusLogInterval must not be shorter than TickRate")
	}
	if config.CooldownDuration <= 0 {
		return errors.New("CooldownDuration must be positive")
	}
	if config.TempRollingWindowSize <= 0 {
		return errors.New("TempRollingWindowSize must be positive")
	}
	return nil
}

func validateRecovery(config *Configuration) error {
	if config.Emergency.PollRate <= 0 {
		return errors.New("Emergency.PollRate must be positive")
	}
	if config.Emergency.Budget < config.Emergency.PollRate {
		return errors.New("Emergency.Budget must not be shorter than Emergency.PollRate")
	}
	if config.Reset.MaxAttempts < 1 {
		return errors.New("Reset.MaxAttempts must be at least 1")
	}
	if config.Reset.Backoff < 0 {
		return errors.New("Reset.Backoff must not be negative")
	}
	if config.MaxHealthCheckFailures < 1 {
		return errors.New("MaxHealthCheckFailures must be at least 1")
	}
	if config.MaxDangerEvents < 1 {
		return errors.New("MaxDangerEvents must be at least 1")
	}
	return nil
}
