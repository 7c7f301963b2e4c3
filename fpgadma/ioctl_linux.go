//go:build linux
// +build linux

package fpgadma

import (
	"os"
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ioctlBackend talks to the kernel driver through its character device
type ioctlBackend struct {
	path string
	fd   int
}

func openBackend(path string) (Backend, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &ioctlBackend{path: path, fd: fd}, nil
}

func (b *ioctlBackend) ioctl(name string, req uintptr, buf []byte) error {
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), req, uintptr(unsafe.Pointer(&buf[0])))
	runtime.KeepAlive(buf)
	if e != 0 {
		return errors.Wrapf(os.NewSyscallError("ioctl", e), "%s on %s", name, b.path)
	}
	return nil
}

func (b *ioctlBackend) SetRegister(r RegisterRequest) error {
	buf, _ := r.MarshalBinary()
	return b.ioctl("IOCTL_SET_DMA_REG", ioctlSetRegister, buf)
}

func (b *ioctlBackend) GetRegister(r *RegisterRequest) error {
	buf, _ := r.MarshalBinary()
	if err := b.ioctl("IOCTL_GET_DMA_REG", ioctlGetRegister, buf); err != nil {
		return err
	}
	return r.UnmarshalBinary(buf)
}

func (b *ioctlBackend) Limits() (Limits, error) {
	var l Limits
	buf := make([]byte, limitsSize)
	if err := b.ioctl("IOCTL_GLOBAL_DMA_CONFIGURATION_GET", ioctlGetLimits, buf); err != nil {
		return l, err
	}
	err := l.UnmarshalBinary(buf)
	return l, err
}

func (b *ioctlBackend) MemoryMap() (*MemoryMap, error) {
	buf := make([]byte, memoryMapSize)
	if err := b.ioctl("IOCTL_GLOBAL_MEM_MAP_GET", ioctlGetMemoryMap, buf); err != nil {
		return nil, err
	}
	m := new(MemoryMap)
	return m, m.UnmarshalBinary(buf)
}

func (b *ioctlBackend) SetNotificationHandles(h []int32) error {
	return b.ioctl("IOCTL_GLOBAL_EVENT_HANDLE_SET", ioctlSetHandles, encodeHandles(h))
}

func (b *ioctlBackend) NotificationHandles() (*HandleTable, error) {
	buf := make([]byte, handleTableSize)
	if err := b.ioctl("IOCTL_GLOBAL_EVENT_HANDLE_GET", ioctlGetHandles, buf); err != nil {
		return nil, err
	}
	t := new(HandleTable)
	return t, t.UnmarshalBinary(buf)
}

func (b *ioctlBackend) Status() (uint32, error) {
	buf := make([]byte, statusSize)
	if err := b.ioctl("IOCTL_GET_DMA_STATUS", ioctlGetStatus, buf); err != nil {
		return 0, err
	}
	return le.Uint32(buf), nil
}

func (b *ioctlBackend) Close() error {
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return errors.Wrapf(err, "close %s", b.path)
}
