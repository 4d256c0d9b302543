package fan

import (
	"fmt"

	"github.com/ecgovern/ecgovern/internal/ec"
)

// Actuator exposes semantic fan operations on top of the raw register
// interface. It adds no validation of its own, register errors surface
// verbatim.
type Actuator struct {
	Controller ec.EmbeddedController
}

func NewActuator(controller ec.EmbeddedController) *Actuator {
	return &Actuator{
		Controller: controller,
	}
}

// EnterAuto hands fan control back to the EC's own control law.
func (a *Actuator) EnterAuto() error {
	return a.Controller.WriteRegisterVerified(ec.RegisterFanMode, int(ec.ModeAutomatic))
}

// EnterManual switches the EC to a software-dictated fixed duty.
// A duty value must be set afterwards, the EC keeps whatever duty the
// register currently holds.
func (a *Actuator) EnterManual() error {
	return a.Controller.WriteRegisterVerified(ec.RegisterFanMode, int(ec.ModeManual))
}

func (a *Actuator) SetDuty(duty int) error {
	return a.Controller.WriteRegister(ec.RegisterFanDuty, duty)
}

// FanOff switches to manual mode and zeroes the duty. The two writes are
// not atomic as a pair: a crash in between leaves the mode bit manual
// with a stale duty value, which the cool-down re-assertion corrects.
func (a *Actuator) FanOff() error {
	if err := a.EnterManual(); err != nil {
		return err
	}
	return a.SetDuty(ec.MinDuty)
}

func (a *Actuator) ForceMaxDuty() error {
	return a.SetDuty(ec.MaxDuty)
}

func (a *Actuator) CurrentRpm() (int, error) {
	value, err := a.Controller.ReadRegister(ec.RegisterFanRpm)
	return int(value), err
}

// CurrentMode returns ec.ModeAutomatic or ec.ModeManual.
func (a *Actuator) CurrentMode() (byte, error) {
	return a.Controller.ReadRegister(ec.RegisterFanMode)
}

func (a *Actuator) CurrentDuty() (int, error) {
	value, err := a.Controller.ReadRegister(ec.RegisterFanDuty)
	return int(value), err
}

// ModeName returns a human readable name for a mode register value.
func ModeName(mode byte) string {
	switch mode {
	case ec.ModeAutomatic:
		return "auto"
	case ec.ModeManual:
		return "manual"
	default:
		return fmt.Sprintf("unknown(%d)", mode)
	}
}
