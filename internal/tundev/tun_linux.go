//go:build linux

// Package tundev allocates the TUN device node the relay core
// multiplexes alongside the listening socket and client connections
// (§6's "TUN-device allocation primitive"). The allocation is a single
// TUNSETIFF ioctl against /dev/net/tun, done here with
// golang.org/x/sys/unix rather than the unsafe syscall plumbing a
// hand-rolled version would need.
package tundev

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	ifNameSize = 16
	tunDevPath = "/dev/net/tun"
)

// ifReq mirrors struct ifreq's layout for the fields TUNSETIFF needs:
// a NUL-padded interface name followed by a flags word.
type ifReq struct {
	Name  [ifNameSize]byte
	Flags uint16
	pad   [22]byte
}

// Device is an allocated TUN interface: an open file descriptor plus
// the kernel-assigned interface name (which may differ from the
// requested name if the kernel had to disambiguate it).
type Device struct {
	*os.File
	Name string
}

// Open allocates a TUN device named name (IFF_TUN, no packet
// information header) and returns its file and resolved name.
func Open(name string) (*Device, error) {
	f, err := os.OpenFile(tunDevPath, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "tundev: open /dev/net/tun")
	}

	var req ifReq
	copy(req.Name[:], name)
	req.Flags = unix.IFF_TUN | unix.IFF_NO_PI

	if err := ioctl(f.Fd(), unix.TUNSETIFF, uintptr(unsafe.Pointer(&req))); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "tundev: TUNSETIFF")
	}

	return &Device{File: f, Name: nulTerminatedString(req.Name[:])}, nil
}

func ioctl(fd uintptr, request uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, request, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func nulTerminatedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
