// Package watchdog provides the Linux /dev/watchdog backing for the
// safety supervisor. The kernel driver performs the corrective reset;
// this package only registers, feeds and disarms it.
package watchdog

import (
	"os"
	"sync"

	"github.com/openefi/ecud/internal/errors"
	"github.com/openefi/ecud/internal/logger"
	"github.com/openefi/ecud/internal/safety"
	"golang.org/x/sys/unix"
)

const msPerSecond = 1000

// Device is a hardware watchdog exposed through the Linux watchdog
// character device. It implements safety.WatchdogDevice.
type Device struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewDevice returns an unopened device for the given watchdog node,
// typically /dev/watchdog.
func NewDevice(path string) *Device {
	return &Device{path: path}
}

// Register opens the watchdog node and programs its timeout. The kernel
// interface works in whole seconds, so the timeout is rounded up. Opening
// the node arms the watchdog immediately.
func (d *Device) Register(timeoutMS uint32) (safety.WatchdogFeeder, error) {
	errFactory := errors.New()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file != nil {
		return nil, errFactory.New(errors.ErrAlreadyRunning)
	}

	file, err := os.OpenFile(d.path, os.O_WRONLY, 0)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrWatchdogInit, err)
	}

	timeoutSec := int((timeoutMS + msPerSecond - 1) / msPerSecond)
	if err := unix.IoctlSetPointerInt(int(file.Fd()), unix.WDIOC_SETTIMEOUT, timeoutSec); err != nil {
		file.Close()
		return nil, errFactory.Wrap(errors.ErrWatchdogInit, err)
	}

	d.file = file
	logger.Debug().
		Str("device", d.path).
		Int("timeout_s", timeoutSec).
		Msg("Hardware watchdog armed")

	return d, nil
}

// Feed resets the kernel watchdog timer. Any write counts as a keepalive.
func (d *Device) Feed() error {
	errFactory := errors.New()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return errFactory.WithMessage(errors.ErrWatchdogFeed, "device not registered")
	}

	if _, err := d.file.Write([]byte{0}); err != nil {
		return errFactory.Wrap(errors.ErrWatchdogFeed, err)
	}

	return nil
}

// Close disarms the watchdog with the magic-close sequence and releases
// the device node. Without the 'V' write the kernel would treat the close
// as a crash and reset the machine.
func (d *Device) Close() error {
	errFactory := errors.New()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return nil
	}

	if _, err := d.file.Write([]byte{'V'}); err != nil {
		d.file.Close()
		d.file = nil
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}

	err := d.file.Close()
	d.file = nil
	if err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}
