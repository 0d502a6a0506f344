//go:build linux

package i2cdev

import (
	"errors"

	"github.com/itohio/goads/pkg/bus"

	"golang.org/x/sys/unix"
)

// ioctlSlave is I2C_SLAVE from <linux/i2c-dev.h>.
const ioctlSlave = 0x0703

var errShort = errors.New("i2cdev: short transfer")

var hostSyscalls = syscalls{
	open: func(path string) (int, error) {
		return unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	},
	setSlave: func(fd int, addr bus.Addr) error {
		return unix.IoctlSetInt(fd, ioctlSlave, int(addr))
	},
	write: unix.Write,
	read:  unix.Read,
	close: unix.Close,
}
