// Package userstore implements the server's flat-file credential and
// address-lease lookup (§6 "User store"): for a username, the password
// and the leased private-IP record are each a single line read from its
// own file under data_dir/users/<username>/.
package userstore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Lease is the private-address record handed to a client after a
// successful handshake, parsed from the "<addr/prefix> <broadcast>" line.
type Lease struct {
	Addr      string
	Broadcast string
}

// Store resolves credential and lease lookups against data_dir.
type Store struct {
	dataDir string
}

// New returns a Store rooted at dataDir.
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

func (s *Store) userDir(username string) string {
	return filepath.Join(s.dataDir, "users", username)
}

// Password reads the single-line password file for username, trailing
// newline stripped. It is opened read-only for this one lookup, per §6.
func (s *Store) Password(username string) (string, error) {
	line, err := readSingleLine(filepath.Join(s.userDir(username), "password"))
	if err != nil {
		return "", errors.Wrapf(err, "userstore: password(%s)", username)
	}
	return line, nil
}

// CheckPassword compares candidate against the stored password in
// plaintext, matching §6's "plaintext comparison" (no hashing is
// specified; credential confidentiality is an explicit Non-goal).
func (s *Store) CheckPassword(username, candidate string) (bool, error) {
	want, err := s.Password(username)
	if err != nil {
		return false, err
	}
	return want == candidate, nil
}

// Lease reads and parses the single-line IP record for username.
func (s *Store) Lease(username string) (Lease, error) {
	line, err := readSingleLine(filepath.Join(s.userDir(username), "ip"))
	if err != nil {
		return Lease{}, errors.Wrapf(err, "userstore: lease(%s)", username)
	}
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Lease{}, errors.Errorf("userstore: malformed ip record for %s: %q", username, line)
	}
	return Lease{Addr: fields[0], Broadcast: fields[1]}, nil
}

func readSingleLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", errors.New("empty file")
	}
	return strings.TrimRight(scanner.Text(), "\r\n"), nil
}
