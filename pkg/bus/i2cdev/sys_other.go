//go:build !linux

package i2cdev

import (
	"errors"

	"github.com/itohio/goads/pkg/bus"
)

var errShort = errors.New("i2cdev: short transfer")

var errUnsupported = errors.New("i2cdev: only supported on linux")

var hostSyscalls = syscalls{
	open:     func(string) (int, error) { return -1, errUnsupported },
	setSlave: func(int, bus.Addr) error { return errUnsupported },
	write:    func(int, []byte) (int, error) { return 0, errUnsupported },
	read:     func(int, []byte) (int, error) { return 0, errUnsupported },
	close:    func(int) error { return nil },
}
