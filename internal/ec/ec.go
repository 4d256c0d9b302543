package ec

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/ecgovern/ecgovern/internal/ui"
	"github.com/ecgovern/ecgovern/internal/util"
	"golang.org/x/exp/slices"
)

const (
	// RegisterFanRpm holds the current fan speed as reported by the EC.
	RegisterFanRpm = 17
	// RegisterFanMode selects between the EC's own control law and a
	// software-dictated duty.
	RegisterFanMode = 21
	// RegisterFanDuty holds the commanded duty while in manual mode.
	RegisterFanDuty = 25

	ModeAutomatic byte = 0
	ModeManual    byte = 1

	MinDuty = 0
	MaxDuty = 50

	modprobeTimeout = 5 * time.Second
)

var (
	readableRegisters = []int{RegisterFanRpm, RegisterFanMode, RegisterFanDuty}
	writableRegisters = []int{RegisterFanMode, RegisterFanDuty}
)

type EmbeddedController interface {
	// ReadRegister returns the current value of a whitelisted register.
	ReadRegister(register int) (byte, error)

	// WriteRegister writes a validated value to a whitelisted register.
	// The write is durable immediately, there is no buffering.
	WriteRegister(register int, value int) error

	// WriteRegisterVerified writes like WriteRegister but reads the
	// register back afterwards. A mismatch triggers the bounded reset
	// retry path before giving up with ErrUnrecoverable.
	WriteRegisterVerified(register int, value int) error

	// Available reports whether the register channel is currently exposed.
	Available() bool

	// Reset unloads and reloads the kernel module backing the register
	// channel. Last-resort operation, bounded by the retry policy of
	// the caller.
	Reset() error
}

// SysfsEmbeddedController accesses EC registers through a seekable
// byte-addressable file as exposed by the ec_sys kernel module.
type SysfsEmbeddedController struct {
	ChannelPath string
	Module      string

	retry RetryPolicy

	// split for testing, both point at ChannelPath in production
	writePath string
	readPath  string

	reload func() error
}

func NewEmbeddedController(channelPath string, module string, retry RetryPolicy) *SysfsEmbeddedController {
	return newEmbeddedControllerAt(channelPath, channelPath, module, retry)
}

func newEmbeddedControllerAt(writePath string, readPath string, module string, retry RetryPolicy) *SysfsEmbeddedController {
	controller := &SysfsEmbeddedController{
		ChannelPath: writePath,
		Module:      module,
		retry:       retry,
		writePath:   writePath,
		readPath:    readPath,
	}
	controller.reload = controller.reloadModule
	return controller
}

func (c *SysfsEmbeddedController) ReadRegister(register int) (byte, error) {
	if !slices.Contains(readableRegisters, register) {
		return 0, fmt.Errorf("%w: register %d is not readable", ErrInvalidAddress, register)
	}

	file, err := os.OpenFile(c.readPath, os.O_RDONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrChannelUnavailable, c.readPath, err)
	}
	defer func() {
		_ = file.Close()
	}()

	if _, err = file.Seek(int64(register), io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: seek to register %d: %v", ErrChannelUnavailable, register, err)
	}

	buffer := make([]byte, 1)
	if _, err = io.ReadFull(file, buffer); err != nil {
		return 0, fmt.Errorf("%w: read register %d: %v", ErrChannelUnavailable, register, err)
	}

	return buffer[0], nil
}

func (c *SysfsEmbeddedController) WriteRegister(register int, value int) error {
	if !slices.Contains(writableRegisters, register) {
		return fmt.Errorf("%w: register %d is not writable", ErrInvalidAddress, register)
	}
	if value < 0 || value > 255 {
		return fmt.Errorf("%w: %d is not a byte value", ErrInvalidValue, value)
	}
	if register == RegisterFanDuty && value > MaxDuty {
		return fmt.Errorf("%w: duty %d exceeds safety limit %d", ErrInvalidValue, value, MaxDuty)
	}

	file, err := os.OpenFile(c.writePath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrChannelUnavailable, c.writePath, err)
	}
	defer func() {
		_ = file.Close()
	}()

	if _, err = file.Seek(int64(register), io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to register %d: %v", ErrChannelUnavailable, register, err)
	}

	if _, err = file.Write([]byte{byte(value)}); err != nil {
		return fmt.Errorf("%w: write register %d: %v", ErrChannelUnavailable, register, err)
	}

	return nil
}

func (c *SysfsEmbeddedController) WriteRegisterVerified(register int, value int) error {
	err := c.WriteRegister(register, value)
	if err != nil {
		return err
	}

	current, err := c.ReadRegister(register)
	if err != nil {
		return err
	}
	if current == byte(value) {
		return nil
	}

	ui.Warning("Write to EC register %d did not take effect (expected %d, read %d), resetting %s",
		register, value, current, c.Module)

	err = c.retry.Do(func() error {
		if resetErr := c.Reset(); resetErr != nil {
			return resetErr
		}
		if writeErr := c.WriteRegister(register, value); writeErr != nil {
			return writeErr
		}
		readBack, readErr := c.ReadRegister(register)
		if readErr != nil {
			return readErr
		}
		if readBack != byte(value) {
			return fmt.Errorf("%w: register %d is %d, expected %d",
				ErrVerificationFailed, register, readBack, value)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnrecoverable, err)
	}
	return nil
}

func (c *SysfsEmbeddedController) Available() bool {
	_, err := os.Stat(c.readPath)
	return err == nil
}

func (c *SysfsEmbeddedController) Reset() error {
	return c.reload()
}

func (c *SysfsEmbeddedController) reloadModule() error {
	modprobe, err := exec.LookPath("modprobe")
	if err != nil {
		return fmt.Errorf("modprobe not found: %w", err)
	}

	if _, err = util.SafeCmdExecution(modprobe, []string{"-r", c.Module}, modprobeTimeout); err != nil {
		return fmt.Errorf("unloading %s: %w", c.Module, err)
	}
	if _, err = util.SafeCmdExecution(modprobe, []string{c.Module, "write_support=1"}, modprobeTimeout); err != nil {
		return fmt.Errorf("loading %s: %w", c.Module, err)
	}

	return nil
}
