// Package config implements TeaVPN's line-oriented configuration file
// format: `key = value` pairs, `#` comments, blank lines ignored. The
// parsing semantics (trim, inline-comment stripping, error on a line
// with no `=`) follow the original C parser rather than the teacher's
// JSON config, per SPEC_FULL.md's AMBIENT STACK section.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Defaults named in the original CLI argument parser, carried here as
// the baseline a config file and CLI flags both layer on top of.
const (
	DefaultBindAddr  = "0.0.0.0"
	DefaultBindPort  = 55555
	DefaultDev       = "teavpn"
	DefaultMTU       = 1500
	DefaultInet4     = "5.5.0.1/16"
	DefaultThreads   = 8
	MinThreads       = 3
)

// Server holds every configuration key with server scope (§6), plus the
// keys shared by both roles.
type Server struct {
	Dev            string
	MTU            int
	Inet4          string
	Inet4Broadcast string
	BindAddr       string
	BindPort       int
	Threads        int
	DataDir        string
}

// Client holds every configuration key with client scope (§6), plus the
// keys shared by both roles.
type Client struct {
	Dev      string
	MTU      int
	Threads  int
	ServerIP string
	ServerPort int
	Username string
	Password string
}

// NewServer returns a Server populated with the documented defaults,
// before CLI flags or a config file override them.
func NewServer() *Server {
	return &Server{
		Dev:      DefaultDev,
		MTU:      DefaultMTU,
		Inet4:    DefaultInet4,
		BindAddr: DefaultBindAddr,
		BindPort: DefaultBindPort,
		Threads:  DefaultThreads,
	}
}

// NewClient returns a Client populated with the documented defaults.
func NewClient() *Client {
	return &Client{
		Dev:     DefaultDev,
		MTU:     DefaultMTU,
		Threads: DefaultThreads,
	}
}

// NormalizeThreads floors a requested thread count to MinThreads,
// matching §6's "worker count... min 3".
func NormalizeThreads(requested int) int {
	if requested < MinThreads {
		return MinThreads
	}
	return requested
}

// Parse reads key=value pairs from r and returns them as a map keyed
// by key; when a key repeats, the later line's value wins.
// Blank lines and lines whose first non-whitespace rune is '#' are
// skipped; an inline '#' strips the remainder of the line before the
// key/value split. A non-blank line without '=' is a parse error.
func Parse(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, errors.Errorf("config: line %d: missing '=' in %q", lineNo, line)
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" {
			return nil, errors.Errorf("config: line %d: empty key", lineNo)
		}
		out[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "config: scan")
	}
	return out, nil
}

// ParseFile opens path and parses it with Parse.
func ParseFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: open")
	}
	defer f.Close()
	return Parse(f)
}

// ApplyServer overlays kv onto s, recognizing the server-scoped and
// shared keys from §6. Unknown keys are ignored (the acceptor's config
// is additive across CLI flags, defaults, and file, by design) but a
// present key with an unparsable integer value is a fatal error.
func (s *Server) ApplyServer(kv map[string]string) error {
	if v, ok := kv["dev"]; ok {
		s.Dev = v
	}
	if v, ok := kv["mtu"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "config: mtu")
		}
		s.MTU = n
	}
	if v, ok := kv["inet4"]; ok {
		s.Inet4 = v
	}
	if v, ok := kv["inet4_broadcast"]; ok {
		s.Inet4Broadcast = v
	}
	if v, ok := kv["bind_addr"]; ok {
		s.BindAddr = v
	}
	if v, ok := kv["bind_port"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "config: bind_port")
		}
		s.BindPort = n
	}
	if v, ok := kv["threads"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "config: threads")
		}
		s.Threads = n
	}
	if v, ok := kv["data_dir"]; ok {
		s.DataDir = v
	}
	return nil
}

// ApplyClient overlays kv onto c, recognizing the client-scoped and
// shared keys from §6.
func (c *Client) ApplyClient(kv map[string]string) error {
	if v, ok := kv["dev"]; ok {
		c.Dev = v
	}
	if v, ok := kv["mtu"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "config: mtu")
		}
		c.MTU = n
	}
	if v, ok := kv["threads"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "config: threads")
		}
		c.Threads = n
	}
	if v, ok := kv["server_ip"]; ok {
		c.ServerIP = v
	}
	if v, ok := kv["server_port"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "config: server_port")
		}
		c.ServerPort = n
	}
	if v, ok := kv["username"]; ok {
		c.Username = v
	}
	if v, ok := kv["password"]; ok {
		c.Password = v
	}
	return nil
}

// Validate reports the first missing mandatory server field.
func (s *Server) Validate() error {
	if s.Inet4 == "" {
		return fmt.Errorf("config: server requires inet4")
	}
	if s.BindAddr == "" {
		return fmt.Errorf("config: server requires bind_addr")
	}
	return nil
}

// Validate reports the first missing mandatory client field.
func (c *Client) Validate() error {
	if c.ServerIP == "" {
		return fmt.Errorf("config: client requires server_ip")
	}
	if c.Username == "" {
		return fmt.Errorf("config: client requires username")
	}
	return nil
}
