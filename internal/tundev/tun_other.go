//go:build !linux

package tundev

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
)

// Device is an allocated TUN interface.
type Device struct {
	*os.File
	Name string
}

// Open is unsupported outside Linux; TeaVPN's TUNSETIFF allocation
// path is Linux-specific, matching the original implementation's scope.
func Open(name string) (*Device, error) {
	return nil, errors.Errorf("tundev: TUN allocation is not supported on %s", runtime.GOOS)
}
