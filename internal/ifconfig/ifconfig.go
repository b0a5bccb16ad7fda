// Package ifconfig drives the host's IP-configuration CLI on behalf of
// the server and client (§6 "TUN interface configuration"). The
// original C implementation builds each command line with
// escapeshellarg+sprintf+system(); internal/ifconfig gets the same
// defensive effect — no interpolated argument can break out of its own
// argv slot — by shelling out through exec.Command with a fixed argv
// instead of a constructed shell string.
package ifconfig

import (
	"fmt"
	"os/exec"
	"regexp"

	"github.com/pkg/errors"
)

// BringUp brings dev up with the configured MTU.
func BringUp(dev string, mtu int) error {
	return run("ip", "link", "set", "dev", dev, "mtu", fmt.Sprint(mtu), "up")
}

// AssignAddress assigns cidr (address/prefix) to dev with the given
// broadcast address.
func AssignAddress(dev, cidr, broadcast string) error {
	return run("ip", "addr", "add", cidr, "broadcast", broadcast, "dev", dev)
}

// Gateway is the current default route discovered via "ip route get",
// used by the client before installing its half-default override (§6,
// SPEC_FULL.md's client route installation ordering).
type Gateway struct {
	Addr string
	Dev  string
}

var routeGetPattern = regexp.MustCompile(`\svia\s+(\S+)\s+dev\s+(\S+)`)

// DiscoverGateway runs "ip route get <serverIP>" and parses the via/dev
// fields from its output, mirroring
// teavpn_tcp_client_init_iface's gateway-discovery step.
func DiscoverGateway(serverIP string) (Gateway, error) {
	out, err := exec.Command("ip", "route", "get", serverIP).CombinedOutput()
	if err != nil {
		return Gateway{}, errors.Wrapf(err, "ifconfig: ip route get %s: %s", serverIP, out)
	}
	m := routeGetPattern.FindSubmatch(out)
	if m == nil {
		return Gateway{}, errors.Errorf("ifconfig: could not parse gateway from %q", out)
	}
	return Gateway{Addr: string(m[1]), Dev: string(m[2])}, nil
}

// AddHostRoute installs a host route to serverIP via the discovered
// physical gateway, pinning the TCP connection to its current path
// before the half-default routes below could otherwise capture it.
func AddHostRoute(serverIP string, gw Gateway) error {
	return run("ip", "route", "add", serverIP+"/32", "via", gw.Addr, "dev", gw.Dev)
}

// AddHalfDefaultRoutes installs the two half-default routes
// (0.0.0.0/1, 128.0.0.0/1) via the VPN gateway, superseding the
// existing default route without removing it (§6).
func AddHalfDefaultRoutes(dev, vpnGateway string) error {
	if err := run("ip", "route", "add", "0.0.0.0/1", "via", vpnGateway, "dev", dev); err != nil {
		return err
	}
	return run("ip", "route", "add", "128.0.0.0/1", "via", vpnGateway, "dev", dev)
}

func run(argv0 string, args ...string) error {
	cmd := exec.Command(argv0, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "ifconfig: %s %v: %s", argv0, args, out)
	}
	return nil
}
