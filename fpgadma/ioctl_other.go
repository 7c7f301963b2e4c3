//go:build !linux
// +build !linux

package fpgadma

import "github.com/pkg/errors"

func openBackend(path string) (Backend, error) {
	return nil, errors.Errorf("open %s: the fpgadma driver is only available on linux", path)
}
