package endpoint

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/ardnew/mpa/pkg"
)

// DefaultBase is the directory under which bare channel names are expanded,
// overridable via SetDefaultBase.
const DefaultBase = "/run/mpa/"

// MaxLocationLen bounds an expanded endpoint directory path (spec §4.1).
const MaxLocationLen = 64

// RequestFile, ControlFile, and InfoFile are the well-known node names
// inside every endpoint directory.
const (
	RequestFile = "request"
	ControlFile = "control"
	InfoFile    = "info"
)

var defaultBase = DefaultBase

// SetDefaultBase overrides the prefix bare channel names expand under.
// Intended for test isolation; production callers normally leave this at
// DefaultBase.
func SetDefaultBase(base string) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	defaultBase = base
}

// Expand turns a bare name ("imu0"), a bare name with trailing slash
// ("imu0/"), or an absolute path ("/run/mpa/imu0/") into a canonical
// directory path ending in "/". Bare names are prefixed with the
// configured default base. The result is bounded to MaxLocationLen bytes.
func Expand(name string) (string, error) {
	if name == "" {
		return "", errors.Wrap(pkg.ErrInvalidArg, "empty endpoint name")
	}

	var dir string
	if filepath.IsAbs(name) {
		dir = name
	} else {
		dir = defaultBase + name
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	if len(dir) > MaxLocationLen {
		return "", errors.Wrapf(pkg.ErrInvalidArg,
			"expanded endpoint path %q exceeds %d bytes", dir, MaxLocationLen)
	}
	return dir, nil
}

// MkdirAll creates dir and all missing ancestors, tolerating a directory
// that already exists.
func MkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(pkg.ErrFileIO, "create endpoint directory %q: %v", dir, err)
	}
	return nil
}

// RemoveAll best-effort recursively removes dir and everything under it.
func RemoveAll(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(pkg.ErrFileIO, "remove endpoint directory %q: %v", dir, err)
	}
	return nil
}

// Exists reports whether dir has a rendezvous FIFO, i.e. a server has
// published this endpoint.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, RequestFile))
	return err == nil
}

// IsType reports whether dir's descriptor names the given payload type.
func IsType(dir, wantType string) bool {
	desc, err := ReadDescriptor(dir)
	if err != nil {
		return false
	}
	return desc.Type == wantType
}
