//go:build !linux
// +build !linux

package fpgadma

import (
	"context"

	"github.com/pkg/errors"
)

var errNoEventfd = errors.New("eventfd is only available on linux")

type eventfds struct{}

func defaultPrimitives() Primitives { return eventfds{} }

func (eventfds) New() (int, error) { return -1, errNoEventfd }
func (eventfds) Pending(int) (uint64, error) { return 0, errNoEventfd }
func (eventfds) Wait(context.Context, int) (uint64, error) { return 0, errNoEventfd }
func (eventfds) Close(int) error { return errNoEventfd }
