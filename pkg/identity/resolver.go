// Package identity derives the stable device fingerprint used as the access
// registry key.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

const (
	installIDFile = "install_id"
	fingerprintNS = "deviceguard/v1"
)

// Resolver persists an install id under Dir and hashes it with coarse device
// attributes into a fingerprint.
type Resolver struct {
	Dir string
	// Attributes default to GOOS and GOARCH.
	Attributes []string
}

// DefaultDir returns $DEVICEGUARD_HOME or ~/.deviceguard.
func DefaultDir() (string, error) {
	if d := os.Getenv("DEVICEGUARD_HOME"); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".deviceguard"), nil
}

func NewResolver(dir string) *Resolver {
	return &Resolver{Dir: dir, Attributes: []string{runtime.GOOS, runtime.GOARCH}}
}

// Resolve returns the fingerprint, creating the install id on first use.
func (r *Resolver) Resolve() (string, error) {
	id, err := r.InstallID()
	if err != nil {
		return "", err
	}
	return Fingerprint(id, r.Attributes...), nil
}

// InstallID reads the persisted id or generates it. The file is published
// with a hard link, so concurrent first runs agree on a single fully written id.
func (r *Resolver) InstallID() (string, error) {
	path := filepath.Join(r.Dir, installIDFile)
	if id, err := readID(path); err == nil {
		return id, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := os.MkdirAll(r.Dir, 0o700); err != nil {
		return "", fmt.Errorf("create identity dir: %w", err)
	}
	tmp, err := os.CreateTemp(r.Dir, installIDFile+".*")
	if err != nil {
		return "", fmt.Errorf("create install id: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	id := uuid.NewString()
	if _, err := tmp.WriteString(id + "\n"); err != nil {
		tmp.Close() //nolint:errcheck
		return "", fmt.Errorf("write install id: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write install id: %w", err)
	}

	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return readID(path)
		}
		return "", fmt.Errorf("persist install id: %w", err)
	}
	return id, nil
}

func readID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(data))
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("corrupt install id in %s: %w", path, err)
	}
	return id, nil
}

// Fingerprint is hex(sha256(namespace | installID | attrs...)).
func Fingerprint(installID string, attrs ...string) string {
	parts := append([]string{fingerprintNS, installID}, attrs...)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
