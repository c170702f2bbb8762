// Package credentials loads the coordinator's username/password table.
package credentials

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidFormat = errors.New("invalid credentials format")
	ErrFileNotFound  = errors.New("credentials file not found")
)

// Store is a read-only username -> password table. Passwords are compared
// as exact, case-sensitive strings.
type Store struct {
	passwords map[string]string
}

// NewStore builds a store from an in-memory table.
func NewStore(passwords map[string]string) *Store {
	m := make(map[string]string, len(passwords))
	for u, p := range passwords {
		m[u] = p
	}
	return &Store{passwords: m}
}

// Load reads a credentials file: one "username password" pair per line,
// blank lines and lines starting with '#' are skipped.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open credentials: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads credentials in the Load format from r.
func Parse(r io.Reader) (*Store, error) {
	passwords := make(map[string]string)

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, " ")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("%w at line %d: expected 'username password'", ErrInvalidFormat, lineNum)
		}
		passwords[parts[0]] = parts[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	return &Store{passwords: passwords}, nil
}

// Verify reports whether password matches the stored password for username.
// A stored value in bcrypt form ("$2a$...", "$2b$...", "$2y$...") is checked
// as a hash; anything else must match exactly.
func (s *Store) Verify(username, password string) bool {
	stored, ok := s.passwords[username]
	if !ok {
		return false
	}
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

func isBcrypt(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// HashPassword returns a bcrypt hash usable in a credentials file.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Store) Len() int {
	return len(s.passwords)
}
