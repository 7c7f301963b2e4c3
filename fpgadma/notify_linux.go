//go:build linux
// +build linux

package fpgadma

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// pollInterval bounds how long Wait sleeps in poll before looking at ctx
const pollInterval = 100 * time.Millisecond

type eventfds struct{}

func defaultPrimitives() Primitives { return eventfds{} }

func (eventfds) New() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK)
	return fd, errors.Wrap(err, "eventfd")
}

func (eventfds) Pending(fd int) (uint64, error) {
	var buf [8]byte
	_, err := unix.Read(fd, buf[:])
	switch err {
	case nil:
		return le.Uint64(buf[:]), nil
	case unix.EAGAIN:
		return 0, nil
	default:
		return 0, errors.Wrap(err, "read eventfd")
	}
}

func (e eventfds) Wait(ctx context.Context, fd int) (uint64, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		timeout := pollInterval
		if dl, ok := ctx.Deadline(); ok {
			if left := time.Until(dl); left < timeout {
				timeout = left
			}
		}
		if timeout < 0 {
			timeout = 0
		}
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, errors.Wrap(err, "poll eventfd")
		}
		if n == 0 {
			continue
		}
		v, err := e.Pending(fd)
		if err != nil || v != 0 {
			return v, err
		}
	}
}

func (eventfds) Close(fd int) error {
	return errors.Wrap(unix.Close(fd), "close eventfd")
}
